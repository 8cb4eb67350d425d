// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madsci/workcell/internal/api"
	"github.com/madsci/workcell/internal/nodeclient"
	"github.com/madsci/workcell/internal/store/memory"
	"github.com/madsci/workcell/internal/workflowmgr"
	"github.com/madsci/workcell/pkg/madsci"
)

func newTestRouter(t *testing.T) (*api.Router, *memory.Backend) {
	t.Helper()
	b := memory.New()
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.SetWorkcellDefinition(context.Background(), &madsci.WorkcellDefinition{
		WorkcellID: "wc1",
		Name:       "test cell",
		Nodes:      map[string]madsci.NodeLink{},
	}))
	require.NoError(t, b.SetWorkcellStatus(context.Background(), &madsci.WorkcellStatus{}))

	mgr := workflowmgr.New(b, nil)
	r := api.New(b, mgr, func(url string) nodeclient.Client {
		return nodeclient.NewMockClient(madsci.NodeInfo{}, madsci.NodeStatus{})
	})
	return r, b
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestGetWorkcellDefinition(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/workcell", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var def madsci.WorkcellDefinition
	decodeJSON(t, rec, &def)
	assert.Equal(t, "wc1", def.WorkcellID)
}

func TestGetState(t *testing.T) {
	r, b := newTestRouter(t)
	require.NoError(t, b.SetNode(context.Background(), "ot2", &madsci.Node{NodeURL: "mock://ot2"}))

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var state api.WorkcellState
	decodeJSON(t, rec, &state)
	assert.Contains(t, state.Nodes, "ot2")
	assert.Equal(t, "wc1", state.Workcell.WorkcellID)
}

func TestCreateAndGetNode(t *testing.T) {
	r, _ := newTestRouter(t)
	body, err := json.Marshal(map[string]any{"name": "ot2", "url": "mock://ot2", "permanent": true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/node", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/node/ot2", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/workcell", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var def madsci.WorkcellDefinition
	decodeJSON(t, rec, &def)
	assert.Contains(t, def.Nodes, "ot2")
	assert.True(t, def.Nodes["ot2"].Permanent)
}

func TestGetNodeNotFoundReturns404(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/node/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowLifecycleEndpoints(t *testing.T) {
	r, b := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{NodeURL: "mock://ot2"}))

	wf := &madsci.Workflow{
		WorkflowID: "wf1",
		Steps:      []madsci.Step{{StepID: "s1", NodeName: "ot2"}},
		Status:     madsci.WorkflowStatus{Running: true},
	}
	require.NoError(t, b.SetActiveWorkflow(ctx, wf))

	req := httptest.NewRequest(http.MethodPost, "/workflow/wf1/pause", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got madsci.Workflow
	decodeJSON(t, rec, &got)
	assert.True(t, got.Status.Paused)

	req = httptest.NewRequest(http.MethodPost, "/workflow/wf1/resume", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/workflow/wf1/cancel", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &got)
	assert.True(t, got.Status.Cancelled)
}

func TestSubmitWorkflowCompilesAndEnqueues(t *testing.T) {
	r, b := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{
		NodeURL: "mock://ot2",
		Status:  &madsci.NodeStatus{},
		Info: &madsci.NodeInfo{
			NodeName: "ot2",
			Actions:  map[string]madsci.ActionSchema{"dispense": {Name: "dispense"}},
		},
	}))
	def, err := b.GetWorkcellDefinition(ctx)
	require.NoError(t, err)
	def.Nodes["ot2"] = madsci.NodeLink{NodeURL: "mock://ot2"}
	require.NoError(t, b.SetWorkcellDefinition(ctx, def))

	defID := "def1"
	require.NoError(t, b.SaveWorkflowDefinition(ctx, defID, &madsci.WorkflowDefinition{
		Name: "simple",
		Steps: []madsci.StepDefinition{
			{Name: "step1", NodeName: "ot2", ActionName: "dispense"},
		},
	}))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("definition_id", defID))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/workflow", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wf madsci.Workflow
	decodeJSON(t, rec, &wf)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, "ot2", wf.Steps[0].NodeName)

	queue, err := b.ListQueue(ctx)
	require.NoError(t, err)
	assert.Contains(t, queue, wf.WorkflowID)
}

func TestLocationLifecycleEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	body, err := json.Marshal(map[string]any{"location_id": "loc1", "name": "bench"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/location", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	lookupBody, err := json.Marshal(map[string]any{"lookup_val": "A1"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/location/loc1/add_lookup/ot2", bytes.NewReader(lookupBody))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var loc madsci.Location
	decodeJSON(t, rec, &loc)
	assert.Equal(t, "A1", loc.References["ot2"])

	attachBody, err := json.Marshal(map[string]any{"resource_id": "res1"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/location/loc1/attach_resource", bytes.NewReader(attachBody))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &loc)
	assert.Equal(t, "res1", loc.ResourceID)

	req = httptest.NewRequest(http.MethodDelete, "/location/loc1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/location/loc1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
