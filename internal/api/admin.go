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

	"github.com/madsci/workcell/internal/nodeclient"
)

// handleAdminBroadcast sends command to every node and reports each node's
// response. A single unreachable node never aborts the broadcast; its
// failure is reported alongside the others.
func (r *Router) handleAdminBroadcast(w http.ResponseWriter, req *http.Request) {
	command := req.PathValue("command")
	ctx := req.Context()

	nodes, err := r.store.ListNodes(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	responses := make(map[string]nodeclient.AdminCommandResponse, len(nodes))
	for name, node := range nodes {
		client := r.client(node.NodeURL)
		resp, err := client.SendAdminCommand(ctx, command)
		if err != nil {
			resp = nodeclient.AdminCommandResponse{Success: false}
		}
		responses[name] = resp
	}
	writeJSON(w, http.StatusOK, responses)
}

func (r *Router) handleAdminNode(w http.ResponseWriter, req *http.Request) {
	command := req.PathValue("command")
	name := req.PathValue("node")
	ctx := req.Context()

	node, err := r.store.GetNode(ctx, name)
	if err != nil {
		writeError(w, err)
		return
	}

	client := r.client(node.NodeURL)
	resp, err := client.SendAdminCommand(ctx, command)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
