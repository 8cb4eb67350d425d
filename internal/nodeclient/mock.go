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

package nodeclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/madsci/workcell/pkg/madsci"
)

// MockClient implements Client for testing. It returns pre-configured
// ActionResults in order and records every request for assertions, the
// same queue-of-responses-plus-recorder shape the e2e harness uses for its
// mock LLM provider.
type MockClient struct {
	mu sync.Mutex

	Info   madsci.NodeInfo
	Status madsci.NodeStatus
	State  map[string]any

	actionResults map[string]madsci.ActionResult
	pollSequence  map[string][]madsci.ActionResult

	SentActions  []madsci.ActionRequest
	AdminCommands []string
}

// NewMockClient creates a mock node client with the given static info and
// status; both may be mutated afterward via the exported fields.
func NewMockClient(info madsci.NodeInfo, status madsci.NodeStatus) *MockClient {
	return &MockClient{
		Info:          info,
		Status:        status,
		actionResults: make(map[string]madsci.ActionResult),
		pollSequence:  make(map[string][]madsci.ActionResult),
	}
}

// QueueResult sets the result SendAction returns for the action with the
// given action ID; it stays set for later calls, and GetActionResult also
// returns it when no poll sequence is queued for that ID. If unset,
// SendAction synthesizes a succeeded result with empty data.
func (m *MockClient) QueueResult(actionID string, result madsci.ActionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionResults[actionID] = result
}

// QueuePollSequence sets the sequence of results GetActionResult returns
// for actionID across successive calls, simulating a node that reports
// running before reaching a terminal state.
func (m *MockClient) QueuePollSequence(actionID string, results ...madsci.ActionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollSequence[actionID] = results
}

func (m *MockClient) SendAction(ctx context.Context, req madsci.ActionRequest) (madsci.ActionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentActions = append(m.SentActions, req)

	if result, ok := m.actionResults[req.ActionID]; ok {
		return result, nil
	}
	return madsci.ActionResult{
		ActionID: req.ActionID,
		Status:   madsci.ActionStatusSucceeded,
		Data:     map[string]any{},
	}, nil
}

func (m *MockClient) GetActionResult(ctx context.Context, actionID string) (madsci.ActionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, ok := m.pollSequence[actionID]
	if !ok || len(seq) == 0 {
		if result, ok := m.actionResults[actionID]; ok {
			return result, nil
		}
		return madsci.ActionResult{}, fmt.Errorf("mock node client: no result configured for action %s", actionID)
	}

	next := seq[0]
	m.pollSequence[actionID] = seq[1:]
	return next, nil
}

func (m *MockClient) GetInfo(ctx context.Context) (madsci.NodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Info, nil
}

func (m *MockClient) GetStatus(ctx context.Context) (madsci.NodeStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status, nil
}

func (m *MockClient) GetState(ctx context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State, nil
}

func (m *MockClient) SendAdminCommand(ctx context.Context, command string) (AdminCommandResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdminCommands = append(m.AdminCommands, command)
	return AdminCommandResponse{Success: true}, nil
}

var _ Client = (*MockClient)(nil)
