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

	"github.com/madsci/workcell/pkg/httpclient"
	"github.com/madsci/workcell/pkg/madsci"
)

// NewRESTFactory returns a Factory that builds a RESTClient per node URL
// using cfg for transport behavior. Factory has no error return, so a
// construction failure (an invalid cfg, which NewRESTClient only rejects
// for malformed timeouts) yields a brokenClient that fails every call
// instead of panicking the scheduler's dispatch goroutine.
func NewRESTFactory(cfg httpclient.Config) Factory {
	return func(nodeURL string) Client {
		client, err := NewRESTClient(nodeURL, cfg)
		if err != nil {
			return brokenClient{err: err}
		}
		return client
	}
}

// brokenClient satisfies Client by failing every call with the error that
// prevented its construction.
type brokenClient struct {
	err error
}

func (b brokenClient) SendAction(context.Context, madsci.ActionRequest) (madsci.ActionResult, error) {
	return madsci.ActionResult{}, fmt.Errorf("node client unavailable: %w", b.err)
}

func (b brokenClient) GetActionResult(context.Context, string) (madsci.ActionResult, error) {
	return madsci.ActionResult{}, fmt.Errorf("node client unavailable: %w", b.err)
}

func (b brokenClient) GetInfo(context.Context) (madsci.NodeInfo, error) {
	return madsci.NodeInfo{}, fmt.Errorf("node client unavailable: %w", b.err)
}

func (b brokenClient) GetStatus(context.Context) (madsci.NodeStatus, error) {
	return madsci.NodeStatus{}, fmt.Errorf("node client unavailable: %w", b.err)
}

func (b brokenClient) GetState(context.Context) (map[string]any, error) {
	return nil, fmt.Errorf("node client unavailable: %w", b.err)
}

func (b brokenClient) SendAdminCommand(context.Context, string) (AdminCommandResponse, error) {
	return AdminCommandResponse{}, fmt.Errorf("node client unavailable: %w", b.err)
}
