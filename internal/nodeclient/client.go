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

// Package nodeclient defines the outbound contract the workcell engine
// needs from a node, and a REST transport implementing it. Any transport
// satisfying Client is acceptable to the rest of the engine.
package nodeclient

import (
	"context"

	"github.com/madsci/workcell/pkg/madsci"
)

// AdminCommandResponse is the result of sending an admin command to a node.
type AdminCommandResponse struct {
	Success bool          `json:"success"`
	Errors  []madsci.Error `json:"errors,omitempty"`
}

// Client is the six-method contract the core requires from a node: send an
// action, poll for its result, and query self-reported info/status/state.
// send_admin_command lets the workcell pause/resume/cancel a running step.
type Client interface {
	SendAction(ctx context.Context, req madsci.ActionRequest) (madsci.ActionResult, error)
	GetActionResult(ctx context.Context, actionID string) (madsci.ActionResult, error)
	GetInfo(ctx context.Context) (madsci.NodeInfo, error)
	GetStatus(ctx context.Context) (madsci.NodeStatus, error)
	GetState(ctx context.Context) (map[string]any, error)
	SendAdminCommand(ctx context.Context, command string) (AdminCommandResponse, error)
}

// Factory builds a Client for a node's URL. Production wiring uses
// NewRESTFactory; tests substitute a Factory that returns mocks.
type Factory func(nodeURL string) Client
