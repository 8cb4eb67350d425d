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

func (r *Router) handleListNodes(w http.ResponseWriter, req *http.Request) {
	nodes, err := r.store.ListNodes(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (r *Router) handleGetNode(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	node, err := r.store.GetNode(req.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type createNodeRequest struct {
	Name      string `json:"name"`
	NodeURL   string `json:"url"`
	Permanent bool   `json:"permanent,omitempty"`
}

// handleCreateNode adds a node to the workcell at runtime. When Permanent is
// set the link is also recorded in the workcell definition, so the node
// survives a restart; otherwise it lives only in the runtime nodes bucket
// until explicitly removed.
func (r *Router) handleCreateNode(w http.ResponseWriter, req *http.Request) {
	var body createNodeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	if body.Name == "" || body.NodeURL == "" {
		writeError(w, &errors.ValidationError{Field: "name/url", Message: "both name and url are required"})
		return
	}

	ctx := req.Context()
	node := &madsci.Node{NodeURL: body.NodeURL}
	if err := r.store.SetNode(ctx, body.Name, node); err != nil {
		writeError(w, err)
		return
	}

	if body.Permanent {
		def, err := r.store.GetWorkcellDefinition(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		if def.Nodes == nil {
			def.Nodes = map[string]madsci.NodeLink{}
		}
		def.Nodes[body.Name] = madsci.NodeLink{NodeURL: body.NodeURL, Permanent: true}
		if err := r.store.SetWorkcellDefinition(ctx, def); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, node)
}
