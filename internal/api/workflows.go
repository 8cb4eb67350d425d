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

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/madsci/workcell/internal/compiler"
	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

func (r *Router) handleActiveWorkflows(w http.ResponseWriter, req *http.Request) {
	wfs, err := r.store.ListActiveWorkflows(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wfs)
}

func (r *Router) handleArchivedWorkflows(w http.ResponseWriter, req *http.Request) {
	n := 0
	if raw := req.URL.Query().Get("number"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, &errors.ValidationError{Field: "number", Message: "must be an integer"})
			return
		}
		n = parsed
	}
	wfs, err := r.store.ListArchivedWorkflows(req.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wfs)
}

func (r *Router) handleQueue(w http.ResponseWriter, req *http.Request) {
	queue, err := r.store.ListQueue(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

// handleGetWorkflow looks in the active bucket first and falls back to
// archived, so a client polling a workflow across its terminal transition
// never sees a spurious 404.
func (r *Router) handleGetWorkflow(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	ctx := req.Context()

	wf, err := r.store.GetActiveWorkflow(ctx, id)
	if err == nil {
		writeJSON(w, http.StatusOK, wf)
		return
	}
	wf, err = r.store.GetArchivedWorkflow(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (r *Router) handlePause(w http.ResponseWriter, req *http.Request) {
	r.lifecycleOp(w, req, r.manager.Pause)
}

func (r *Router) handleResume(w http.ResponseWriter, req *http.Request) {
	r.lifecycleOp(w, req, r.manager.Resume)
}

func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) {
	r.lifecycleOp(w, req, r.manager.Cancel)
}

// lifecycleOp runs a no-argument workflow transition and replies with the
// workflow's new state, the common shape of pause/resume/cancel.
func (r *Router) lifecycleOp(w http.ResponseWriter, req *http.Request, op func(ctx context.Context, id string) error) {
	id := req.PathValue("id")
	if err := op(req.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	r.handleGetWorkflow(w, req)
}

func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	fromIndex := -1
	if raw := req.URL.Query().Get("index"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, &errors.ValidationError{Field: "index", Message: "must be an integer"})
			return
		}
		fromIndex = parsed
	}
	if err := r.manager.Retry(req.Context(), id, fromIndex); err != nil {
		writeError(w, err)
		return
	}
	r.handleGetWorkflow(w, req)
}

// handleSubmitWorkflow implements POST /workflow: a multipart form carrying
// the target definition id and JSON-encoded input_values/input_file_paths/
// ownership_info. File parts in the form are not read: uploaded files are
// neither staged nor registered, and steps get their files only from
// input_file_paths and the definition's own file defaults. Each
// input_file_paths entry is resolved through the optional Data Manager
// client, if one is wired via SetDataManager, so a reference naming an
// existing datapoint resolves to its backing path; with no client wired,
// every entry passes through unchanged.
func (r *Router) handleSubmitWorkflow(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	definitionID := req.FormValue("definition_id")
	if definitionID == "" {
		writeError(w, &errors.ValidationError{Field: "definition_id", Message: "definition_id is required"})
		return
	}

	inputValues, err := decodeFormJSONObject(req, "input_values")
	if err != nil {
		writeError(w, err)
		return
	}
	var inputFilePaths map[string]string
	if raw := req.FormValue("input_file_paths"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &inputFilePaths); err != nil {
			writeError(w, &errors.ValidationError{Field: "input_file_paths", Message: err.Error()})
			return
		}
	}
	if r.dataManager != nil {
		for name, ref := range inputFilePaths {
			resolved, err := r.dataManager.ResolveDatapoint(req.Context(), ref)
			if err != nil {
				r.logger.Warn("data manager could not resolve input file path",
					slog.String("name", name), slog.String("reference", ref), slog.Any("error", err))
				continue
			}
			inputFilePaths[name] = resolved
		}
	}
	var ownership madsci.OwnershipInfo
	if raw := req.FormValue("ownership_info"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ownership); err != nil {
			writeError(w, &errors.ValidationError{Field: "ownership_info", Message: err.Error()})
			return
		}
	}

	ctx := req.Context()
	def, err := r.store.GetWorkflowDefinition(ctx, definitionID)
	if err != nil {
		writeError(w, err)
		return
	}
	workcellDef, err := r.store.GetWorkcellDefinition(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	runtimeNodes, err := r.store.ListNodes(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	locations, err := r.store.ListLocations(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	wf, err := compiler.Compile(compiler.Input{
		Definition:     def,
		InputValues:    inputValues,
		InputFilePaths: inputFilePaths,
		Nodes:          workcellDef.Nodes,
		RuntimeNodes:   runtimeNodes,
		Locations:      locations,
		Transfers:      workcellDef.Transfers,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	wf.WorkflowID = madsci.NewID()
	wf.DefinitionID = definitionID
	wf.OwnershipInfo = ownership
	now := time.Now()
	wf.SubmittedTime = &now

	if err := r.store.SetActiveWorkflow(ctx, wf); err != nil {
		writeError(w, err)
		return
	}
	if err := r.store.EnqueueWorkflow(ctx, wf.WorkflowID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

func decodeFormJSONObject(req *http.Request, field string) (map[string]any, error) {
	raw := req.FormValue(field)
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &errors.ValidationError{Field: field, Message: err.Error()}
	}
	return out, nil
}
