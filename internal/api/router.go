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

// Package api is the Ingress API, the only inbound HTTP surface spec.md
// names (§4.H, §6.1): a stdlib method-pattern ServeMux with one handler
// file per resource, wired directly to the state store, compiler,
// workflow manager, and node client factory.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/madsci/workcell/internal/collab"
	"github.com/madsci/workcell/internal/nodeclient"
	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/internal/workflowmgr"
	workcellerrors "github.com/madsci/workcell/pkg/errors"
)

// Router serves spec.md §6.1's REST surface.
type Router struct {
	mux         *http.ServeMux
	store       store.Store
	manager     *workflowmgr.Manager
	client      nodeclient.Factory
	dataManager *collab.DataManagerClient
	logger      *slog.Logger
}

// New builds a Router wired to the given state store, workflow manager,
// and node client factory (used for admin-command fan-out).
func New(s store.Store, manager *workflowmgr.Manager, client nodeclient.Factory) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		store:   s,
		manager: manager,
		client:  client,
		logger:  slog.Default().With(slog.String("component", "api")),
	}
	r.routes()
	return r
}

// SetDataManager wires an optional Data Manager client used to resolve
// input_file_paths datapoint references on workflow submission. Leaving it
// unset keeps every reference passed through unresolved, matching spec.md
// §6.2's "optional collaborator, skipped when unavailable".
func (r *Router) SetDataManager(client *collab.DataManagerClient) {
	r.dataManager = client
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /{$}", r.handleWorkcellDefinition)
	r.mux.HandleFunc("GET /workcell", r.handleWorkcellDefinition)
	r.mux.HandleFunc("GET /definition", r.handleWorkcellDefinition)
	r.mux.HandleFunc("GET /state", r.handleState)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	r.mux.HandleFunc("GET /nodes", r.handleListNodes)
	r.mux.HandleFunc("GET /node/{name}", r.handleGetNode)
	r.mux.HandleFunc("POST /node", r.handleCreateNode)

	r.mux.HandleFunc("POST /admin/{command}", r.handleAdminBroadcast)
	r.mux.HandleFunc("POST /admin/{command}/{node}", r.handleAdminNode)

	r.mux.HandleFunc("GET /workflows/active", r.handleActiveWorkflows)
	r.mux.HandleFunc("GET /workflows/archived", r.handleArchivedWorkflows)
	r.mux.HandleFunc("GET /workflows/queue", r.handleQueue)
	r.mux.HandleFunc("GET /workflow/{id}", r.handleGetWorkflow)
	r.mux.HandleFunc("POST /workflow/{id}/pause", r.handlePause)
	r.mux.HandleFunc("POST /workflow/{id}/resume", r.handleResume)
	r.mux.HandleFunc("POST /workflow/{id}/cancel", r.handleCancel)
	r.mux.HandleFunc("POST /workflow/{id}/retry", r.handleRetry)
	r.mux.HandleFunc("POST /workflow", r.handleSubmitWorkflow)

	r.mux.HandleFunc("POST /workflow_definition", r.handleRegisterDefinition)
	r.mux.HandleFunc("GET /workflow_definition/{id}", r.handleGetDefinition)

	r.mux.HandleFunc("GET /locations", r.handleListLocations)
	r.mux.HandleFunc("POST /location", r.handleCreateLocation)
	r.mux.HandleFunc("GET /location/{id}", r.handleGetLocation)
	r.mux.HandleFunc("DELETE /location/{id}", r.handleDeleteLocation)
	r.mux.HandleFunc("POST /location/{id}/add_lookup/{node}", r.handleAddLookup)
	r.mux.HandleFunc("POST /location/{id}/attach_resource", r.handleAttachResource)
}

// ServeHTTP implements http.Handler, logging every request the way the
// teacher's daemon router does.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	defer func() {
		r.logger.Info("request completed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}()
	r.mux.ServeHTTP(w, req)
}

// writeError maps a typed error to an HTTP status and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	var (
		validation  *workcellerrors.ValidationError
		notFound    *workcellerrors.NotFoundError
		noPath      *workcellerrors.NoTransferPathError
		noRepr      *workcellerrors.NoRepresentationError
		lockTimeout *workcellerrors.LockTimeoutError
		transient   *workcellerrors.TransientBackendError
		nodeDown    *workcellerrors.NodeUnavailableError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &noPath), errors.As(err, &noRepr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &lockTimeout):
		return http.StatusServiceUnavailable
	case errors.As(err, &nodeDown):
		return http.StatusConflict
	case errors.As(err, &transient):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
