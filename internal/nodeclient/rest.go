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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/httpclient"
	"github.com/madsci/workcell/pkg/madsci"
)

// RESTClient talks to a node over its REST surface, using the shared
// httpclient factory for timeout/retry/logging behavior.
type RESTClient struct {
	baseURL string
	http    *http.Client
}

// NewRESTClient builds a RESTClient for nodeURL using cfg for transport
// behavior (timeouts, retries). Node calls are not retried by default for
// non-idempotent send_action requests; callers that want retries on
// GET-style polls (get_action_result, get_info, get_status) can pass a cfg
// with RetryAttempts > 0, since those are safe to retry.
func NewRESTClient(nodeURL string, cfg httpclient.Config) (*RESTClient, error) {
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "building node http client")
	}
	return &RESTClient{baseURL: nodeURL, http: client}, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshaling node request")
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &nodeUnavailableError{nodeURL: c.baseURL, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &nodeUnavailableError{nodeURL: c.baseURL, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &nodeUnavailableError{
			nodeURL: c.baseURL,
			cause:   fmt.Errorf("http %d", resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// nodeUnavailableError adapts pkg/errors.NodeUnavailableError to
// carry the node URL rather than a resolved node name, which the caller
// (internal/dispatcher) doesn't always know at the transport layer.
type nodeUnavailableError struct {
	nodeURL string
	cause   error
}

func (e *nodeUnavailableError) Error() string {
	return fmt.Sprintf("node %s unavailable: %v", e.nodeURL, e.cause)
}

func (e *nodeUnavailableError) Unwrap() error { return e.cause }

func (c *RESTClient) SendAction(ctx context.Context, req madsci.ActionRequest) (madsci.ActionResult, error) {
	var result madsci.ActionResult
	err := c.do(ctx, http.MethodPost, "/action", req, &result)
	return result, err
}

func (c *RESTClient) GetActionResult(ctx context.Context, actionID string) (madsci.ActionResult, error) {
	var result madsci.ActionResult
	err := c.do(ctx, http.MethodGet, "/action/"+actionID, nil, &result)
	return result, err
}

func (c *RESTClient) GetInfo(ctx context.Context) (madsci.NodeInfo, error) {
	var info madsci.NodeInfo
	err := c.do(ctx, http.MethodGet, "/info", nil, &info)
	return info, err
}

func (c *RESTClient) GetStatus(ctx context.Context) (madsci.NodeStatus, error) {
	var status madsci.NodeStatus
	err := c.do(ctx, http.MethodGet, "/status", nil, &status)
	return status, err
}

func (c *RESTClient) GetState(ctx context.Context) (map[string]any, error) {
	var state map[string]any
	err := c.do(ctx, http.MethodGet, "/state", nil, &state)
	return state, err
}

func (c *RESTClient) SendAdminCommand(ctx context.Context, command string) (AdminCommandResponse, error) {
	var resp AdminCommandResponse
	err := c.do(ctx, http.MethodPost, "/admin/"+command, nil, &resp)
	return resp, err
}

var _ Client = (*RESTClient)(nil)
