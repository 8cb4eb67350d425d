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

// Package collab provides thin, optional outbound clients for the three
// collaborator managers the workcell may talk to: Resource, Data, and
// Event. Event emission is fire-and-forget: EventManagerClient.Emit logs
// failures as warnings and never returns them, the same swallow-and-log
// idiom the teacher's Slack/Jira/PagerDuty integrations use for webhook
// delivery. AddResource and ResolveDatapoint return their errors to the
// caller. A nil client of any of these types is always a valid, silent
// no-op.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/madsci/workcell/pkg/httpclient"
)

// ResourceManagerClient creates external resources at workcell
// initialization time, when a LocationDefinition embeds a resource
// definition and no resource_id is present yet.
type ResourceManagerClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewResourceManagerClient builds a client for the Resource Manager at
// baseURL. baseURL == "" is valid and yields a client whose calls always
// no-op (used when config.Collaborators.ResourceManagerURL is unset).
func NewResourceManagerClient(baseURL string, cfg httpclient.Config, logger *slog.Logger) (*ResourceManagerClient, error) {
	if baseURL == "" {
		return nil, nil
	}
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return &ResourceManagerClient{baseURL: baseURL, http: client, logger: logger}, nil
}

// AddResource creates a resource from definition and returns its assigned
// ID. A nil receiver returns an empty ID without error, so initialization
// code doesn't need to branch on whether a Resource Manager is configured.
func (c *ResourceManagerClient) AddResource(ctx context.Context, definition map[string]any) (string, error) {
	if c == nil {
		return "", nil
	}
	var out struct {
		ResourceID string `json:"resource_id"`
	}
	if err := c.post(ctx, "/resource", definition, &out); err != nil {
		return "", err
	}
	return out.ResourceID, nil
}

func (c *ResourceManagerClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("resource manager: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DataManagerClient registers uploaded files as datapoints and resolves
// input_file_paths that reference existing datapoints.
type DataManagerClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewDataManagerClient builds a client for the Data Manager at baseURL.
func NewDataManagerClient(baseURL string, cfg httpclient.Config, logger *slog.Logger) (*DataManagerClient, error) {
	if baseURL == "" {
		return nil, nil
	}
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return &DataManagerClient{baseURL: baseURL, http: client, logger: logger}, nil
}

// ResolveDatapoint returns the local path or URI a datapoint reference
// resolves to. A nil receiver returns the reference unchanged, treating it
// as already a usable path.
func (c *DataManagerClient) ResolveDatapoint(ctx context.Context, reference string) (string, error) {
	if c == nil {
		return reference, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/datapoint/"+reference, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("data manager: http %d", resp.StatusCode)
	}
	var out struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Path, nil
}

// EventManagerClient emits workcell and workflow lifecycle events.
// Emission failures are logged as warnings and never returned, since the
// core must never block on observability plumbing.
type EventManagerClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewEventManagerClient builds a client for the Event Manager at baseURL.
func NewEventManagerClient(baseURL string, cfg httpclient.Config, logger *slog.Logger) (*EventManagerClient, error) {
	if baseURL == "" {
		return nil, nil
	}
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return &EventManagerClient{baseURL: baseURL, http: client, logger: logger}, nil
}

// Event is one lifecycle notification: workcell start/stop, workflow
// create/start/complete/abort.
type Event struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"event_data,omitempty"`
}

// Emit sends event, swallowing and logging any failure. A nil receiver
// returns immediately without logging.
func (c *EventManagerClient) Emit(ctx context.Context, event Event) {
	if c == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Warn("failed to marshal event", slog.String("event_type", event.EventType), slog.Any("error", err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/event", bytes.NewReader(data))
	if err != nil {
		c.logger.Warn("failed to build event request", slog.String("event_type", event.EventType), slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("event manager unreachable", slog.String("event_type", event.EventType), slog.Any("error", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.Warn("event manager rejected event", slog.String("event_type", event.EventType), slog.Int("status", resp.StatusCode))
	}
}
