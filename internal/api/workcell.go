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
	"net/http"

	"github.com/madsci/workcell/pkg/madsci"
)

// handleWorkcellDefinition serves GET /, /workcell, and /definition with the
// static workcell topology.
func (r *Router) handleWorkcellDefinition(w http.ResponseWriter, req *http.Request) {
	def, err := r.store.GetWorkcellDefinition(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// WorkcellState is the aggregate view GET /state returns: the workcell's
// own status alongside every other bucket an observer needs to reconstruct
// the full picture without issuing five separate requests.
type WorkcellState struct {
	Status    *madsci.WorkcellStatus      `json:"status"`
	Queue     []string                    `json:"queue"`
	Nodes     map[string]*madsci.Node     `json:"nodes"`
	Locations map[string]*madsci.Location `json:"locations"`
	Workcell  *madsci.WorkcellDefinition  `json:"workcell"`
}

func (r *Router) handleState(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	status, err := r.store.GetWorkcellStatus(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	queue, err := r.store.ListQueue(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	nodes, err := r.store.ListNodes(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	locations, err := r.store.ListLocations(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	def, err := r.store.GetWorkcellDefinition(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WorkcellState{
		Status:    status,
		Queue:     queue,
		Nodes:     nodes,
		Locations: locations,
		Workcell:  def,
	})
}
