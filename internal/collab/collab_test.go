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

package collab_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madsci/workcell/internal/collab"
	"github.com/madsci/workcell/pkg/httpclient"
)

func TestResourceManagerClientAddResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"resource_id": "res-1"})
	}))
	defer server.Close()

	client, err := collab.NewResourceManagerClient(server.URL, httpclient.DefaultConfig(), slog.Default())
	require.NoError(t, err)

	id, err := client.AddResource(context.Background(), map[string]any{"base_type": "pool"})
	require.NoError(t, err)
	assert.Equal(t, "res-1", id)
}

func TestResourceManagerClientNilIsNoop(t *testing.T) {
	client, err := collab.NewResourceManagerClient("", httpclient.DefaultConfig(), slog.Default())
	require.NoError(t, err)
	require.Nil(t, client)

	id, err := client.AddResource(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestEventManagerClientEmitSwallowsFailure(t *testing.T) {
	client, err := collab.NewEventManagerClient("http://127.0.0.1:1", httpclient.Config{
		Timeout:   httpclient.DefaultConfig().Timeout,
		UserAgent: "workcell-test/1.0",
	}, slog.Default())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		client.Emit(context.Background(), collab.Event{EventType: "workflow.start"})
	})
}

func TestEventManagerClientNilIsNoop(t *testing.T) {
	var client *collab.EventManagerClient
	assert.NotPanics(t, func() {
		client.Emit(context.Background(), collab.Event{EventType: "workcell.start"})
	})
}
