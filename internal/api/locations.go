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
	"encoding/json"
	"net/http"

	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

func (r *Router) handleListLocations(w http.ResponseWriter, req *http.Request) {
	locs, err := r.store.ListLocations(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

type createLocationRequest struct {
	madsci.Location
	Permanent bool `json:"permanent,omitempty"`
}

// handleCreateLocation adds a location at runtime. Permanent additionally
// records the location in the workcell definition so it survives a restart.
func (r *Router) handleCreateLocation(w http.ResponseWriter, req *http.Request) {
	var body createLocationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	if body.LocationID == "" {
		body.LocationID = madsci.NewID()
	}

	ctx := req.Context()
	loc := body.Location
	if err := r.store.SetLocation(ctx, &loc); err != nil {
		writeError(w, err)
		return
	}

	if body.Permanent {
		def, err := r.store.GetWorkcellDefinition(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		def.Locations = append(def.Locations, madsci.LocationDefinition{
			LocationID:    loc.LocationID,
			Name:          loc.Name,
			References:    loc.References,
			DefaultArgs:   loc.DefaultArgs,
			NodeOverrides: loc.NodeOverrides,
		})
		if err := r.store.SetWorkcellDefinition(ctx, def); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, loc)
}

func (r *Router) handleGetLocation(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	loc, err := r.store.GetLocation(req.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (r *Router) handleDeleteLocation(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.store.DeleteLocation(req.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type addLookupRequest struct {
	LookupVal any `json:"lookup_val"`
}

// handleAddLookup records how a node refers to this location, the reference
// the Workflow Compiler resolves into a LocationArgument when a step runs
// on that node.
func (r *Router) handleAddLookup(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	node := req.PathValue("node")

	var body addLookupRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	var updated *madsci.Location
	err := r.store.UpdateLocation(req.Context(), id, func(loc *madsci.Location) error {
		if loc.References == nil {
			loc.References = map[string]any{}
		}
		loc.References[node] = body.LookupVal
		updated = loc
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type attachResourceRequest struct {
	ResourceID string `json:"resource_id"`
}

// handleAttachResource binds a resource id to a location directly. The
// Resource Manager is not consulted to validate or own the resource; the
// id is trusted as given.
func (r *Router) handleAttachResource(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	var body attachResourceRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	var updated *madsci.Location
	err := r.store.UpdateLocation(req.Context(), id, func(loc *madsci.Location) error {
		loc.ResourceID = body.ResourceID
		updated = loc
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
