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

// handleRegisterDefinition stores a WorkflowDefinition and returns the id it
// was registered under. Compilation against runtime state happens later, at
// submission time, not here: a definition may be registered long before any
// node it references comes online.
func (r *Router) handleRegisterDefinition(w http.ResponseWriter, req *http.Request) {
	var def madsci.WorkflowDefinition
	if err := json.NewDecoder(req.Body).Decode(&def); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	if len(def.Steps) == 0 {
		writeError(w, &errors.ValidationError{Field: "steps", Message: "a workflow definition needs at least one step"})
		return
	}

	id := madsci.NewID()
	if err := r.store.SaveWorkflowDefinition(req.Context(), id, &def); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"workflow_definition_id": id})
}

func (r *Router) handleGetDefinition(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	def, err := r.store.GetWorkflowDefinition(req.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}
