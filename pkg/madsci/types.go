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

// Package madsci holds the runtime entity types shared by every component of
// the workcell engine: definitions loaded at startup, the runtime records
// the state store owns, and the wire types exchanged with nodes.
package madsci

import "time"

// OwnershipInfo identifies who or what submitted a workflow or holds a
// reservation. It is threaded explicitly through the scheduler, dispatcher,
// and workflow manager rather than read from a package-level global.
type OwnershipInfo struct {
	UserID         string `json:"user_id,omitempty"`
	ExperimentID   string `json:"experiment_id,omitempty"`
	CampaignID     string `json:"campaign_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	NodeID         string `json:"node_id,omitempty"`
	WorkflowID     string `json:"workflow_id,omitempty"`
	StepID         string `json:"step_id,omitempty"`
}

// Check reports whether other is compatible with this ownership (equal on
// every field this OwnershipInfo sets).
func (o OwnershipInfo) Check(other OwnershipInfo) bool {
	if o.UserID != "" && o.UserID != other.UserID {
		return false
	}
	if o.ExperimentID != "" && o.ExperimentID != other.ExperimentID {
		return false
	}
	if o.CampaignID != "" && o.CampaignID != other.CampaignID {
		return false
	}
	if o.ProjectID != "" && o.ProjectID != other.ProjectID {
		return false
	}
	if o.NodeID != "" && o.NodeID != other.NodeID {
		return false
	}
	if o.WorkflowID != "" && o.WorkflowID != other.WorkflowID {
		return false
	}
	if o.StepID != "" && o.StepID != other.StepID {
		return false
	}
	return true
}

// Error is a single structured error message attached to a step result or
// node status.
type Error struct {
	Message   string    `json:"message"`
	LoggedAt  time.Time `json:"logged_at,omitempty"`
	ErrorType string    `json:"error_type,omitempty"`
}

// Reservation is a time-bounded ownership hold on a Node or Location.
type Reservation struct {
	OwnedBy OwnershipInfo `json:"owned_by"`
	Created time.Time     `json:"created"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
}

// Active reports whether the reservation window contains now.
func (r *Reservation) Active(now time.Time) bool {
	if r == nil {
		return false
	}
	return !now.Before(r.Start) && !now.After(r.End)
}

// WorkcellDefinition is the static topology of a workcell: nodes, locations,
// and tuning, loaded once at startup and mutable only via admin operations.
type WorkcellDefinition struct {
	WorkcellID string                  `json:"workcell_id"`
	Name       string                  `json:"name"`
	Nodes      map[string]NodeLink     `json:"nodes"`
	Locations  []LocationDefinition    `json:"locations"`
	Transfers  []TransferTemplate      `json:"transfer_templates,omitempty"`
	Config     WorkcellConfig          `json:"config"`
}

// NodeLink is a nodes-map entry: the node's URL and a Permanent flag. It
// does not embed a node definition.
type NodeLink struct {
	NodeURL    string `json:"node_url"`
	Permanent  bool   `json:"permanent,omitempty"`
}

// WorkcellConfig holds scheduler tuning and backend endpoints for one
// workcell.
type WorkcellConfig struct {
	SchedulerUpdateInterval float64 `json:"scheduler_update_interval,omitempty"`
	NodeUpdateInterval      float64 `json:"node_update_interval,omitempty"`
	ColdStartDelay          float64 `json:"cold_start_delay,omitempty"`
	HeartbeatInterval       float64 `json:"heartbeat_interval,omitempty"`
	StateLockTTL            float64 `json:"state_lock_ttl,omitempty"`
	ResourceManagerURL      string  `json:"resource_manager_url,omitempty"`
	DataManagerURL          string  `json:"data_manager_url,omitempty"`
	EventManagerURL         string  `json:"event_manager_url,omitempty"`
}

// WorkcellStatus is the singleton mutable status record for the workcell
// process itself (distinct from any individual Workflow's status).
type WorkcellStatus struct {
	Initializing bool   `json:"initializing"`
	ShuttingDown bool   `json:"shutdown"`
	Paused       bool   `json:"paused"`
	Errored      bool   `json:"errored"`
	Errors       []Error `json:"errors,omitempty"`
}

// NodeStatus mirrors the node's self-reported readiness.
type NodeStatus struct {
	Busy              bool            `json:"busy"`
	RunningActions    map[string]bool `json:"running_actions,omitempty"`
	Paused            bool            `json:"paused"`
	Locked            bool            `json:"locked"`
	Stopped           bool            `json:"stopped"`
	Errored           bool            `json:"errored"`
	Errors            []Error         `json:"errors,omitempty"`
	Initializing      bool            `json:"initializing"`
	WaitingForConfig  []string        `json:"waiting_for_config,omitempty"`
}

// Ready reports whether the node may accept a new action, per spec.md's
// node-ready predicate.
func (s *NodeStatus) Ready() bool {
	if s == nil {
		return false
	}
	if s.Busy || s.Locked || s.Stopped || s.Errored || s.Initializing || s.Paused {
		return false
	}
	return len(s.WaitingForConfig) == 0
}

// ActionSchema is the declared argument/file contract for one node action.
type ActionSchema struct {
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	RequiredArgs  []string            `json:"required_args,omitempty"`
	RequiredFiles []string            `json:"required_files,omitempty"`
	ArgTypes      map[string]string   `json:"arg_types,omitempty"`
}

// NodeInfo is the capability/action catalog a node reports about itself.
type NodeInfo struct {
	NodeName string                  `json:"node_name"`
	NodeType string                  `json:"node_type,omitempty"`
	Actions  map[string]ActionSchema `json:"actions"`
}

// Node is the runtime view of one interactive endpoint inside the workcell.
type Node struct {
	NodeURL     string         `json:"node_url"`
	Status      *NodeStatus    `json:"status,omitempty"`
	Info        *NodeInfo      `json:"info,omitempty"`
	State       map[string]any `json:"state,omitempty"`
	ReservedBy  *Reservation   `json:"reserved_by,omitempty"`
}

// Ready reports the full node-ready predicate from spec.md §3.1: info
// present, status ready, and not reserved by another owner.
func (n *Node) Ready(by OwnershipInfo, now time.Time) bool {
	if n == nil || n.Info == nil || !n.Status.Ready() {
		return false
	}
	if n.ReservedBy != nil && n.ReservedBy.Active(now) && !n.ReservedBy.OwnedBy.Check(by) {
		return false
	}
	return true
}

// LocationDefinition is the workcell-definition-time declaration of a
// location, before any runtime reservation state exists.
type LocationDefinition struct {
	LocationID         string                    `json:"location_id"`
	Name               string                    `json:"location_name"`
	References         map[string]any            `json:"references,omitempty"`
	ResourceDefinition map[string]any             `json:"resource_definition,omitempty"`
	DefaultArgs        map[string]any             `json:"default_args,omitempty"`
	NodeOverrides      map[string]map[string]any `json:"node_overrides,omitempty"`
}

// Location is the runtime record for a named position referenced by
// workflow steps.
type Location struct {
	LocationID  string         `json:"location_id"`
	Name        string         `json:"name"`
	References  map[string]any `json:"references,omitempty"`
	ResourceID  string         `json:"resource_id,omitempty"`
	Reservation *Reservation   `json:"reservation,omitempty"`

	// DefaultArgs are step-arg defaults applied whenever this location
	// participates in a step, regardless of which node executes it.
	DefaultArgs map[string]any `json:"default_args,omitempty"`

	// NodeOverrides are step-arg overrides keyed by node name, applied
	// only when that node executes the step touching this location.
	NodeOverrides map[string]map[string]any `json:"node_overrides,omitempty"`
}

// LocationArgument is a resolved, per-node location reference bound into a
// Step's args by the Workflow Compiler.
type LocationArgument struct {
	Location     any          `json:"location"`
	ResourceID   string       `json:"resource_id,omitempty"`
	LocationName string       `json:"location_name,omitempty"`
}

// TransferTemplate declares that a node can transfer between any two
// locations that both list it in their references.
type TransferTemplate struct {
	NodeName      string         `json:"node_name"`
	ActionName    string         `json:"action_name"`
	SourceArgName string         `json:"source_arg_name"`
	TargetArgName string         `json:"target_arg_name"`
	CostWeight    float64        `json:"cost_weight,omitempty"`
	DefaultArgs   map[string]any `json:"default_args,omitempty"`
}

// Weight returns CostWeight, defaulting to 1.0 when unset.
func (t TransferTemplate) Weight() float64 {
	if t.CostWeight == 0 {
		return 1.0
	}
	return t.CostWeight
}

// TransferEdge is a derived, non-persisted tuple: one hop of a transfer
// path, constructed by internal/transfer and never stored.
type TransferEdge struct {
	SourceLocationID string
	TargetLocationID string
	Template         TransferTemplate
	Cost             float64
}

// ParameterDefinition is one named, optionally-defaulted workflow input.
type ParameterDefinition struct {
	Name    string `json:"name"`
	Default any    `json:"default,omitempty"`
}

// StepDefinition is a workflow-definition-time step: node/action/location
// references by name, not yet resolved against runtime state.
type StepDefinition struct {
	Name       string            `json:"name"`
	NodeName   string            `json:"node_name,omitempty"`
	ActionName string            `json:"action_name"`
	Args       map[string]any    `json:"args,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
	Locations  map[string]string `json:"locations,omitempty"`
	Conditions []string          `json:"conditions,omitempty"`
	DataLabels map[string]string `json:"data_labels,omitempty"`
}

// WorkflowDefinition is the submitted blueprint for a run.
type WorkflowDefinition struct {
	Name       string                `json:"name"`
	Parameters []ParameterDefinition `json:"parameters,omitempty"`
	Steps      []StepDefinition      `json:"steps"`
}

// ActionStatus is the terminal or in-flight state of one dispatched action.
type ActionStatus string

const (
	ActionStatusNotStarted ActionStatus = "not_started"
	ActionStatusNotReady   ActionStatus = "not_ready"
	ActionStatusRunning    ActionStatus = "running"
	ActionStatusSucceeded  ActionStatus = "succeeded"
	ActionStatusFailed     ActionStatus = "failed"
	ActionStatusCancelled  ActionStatus = "cancelled"
	ActionStatusPaused     ActionStatus = "paused"
)

// Terminal reports whether the status ends a step's execution.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionStatusSucceeded, ActionStatusFailed, ActionStatusCancelled:
		return true
	default:
		return false
	}
}

// ActionRequest is the wire request sent to a node to perform one action.
type ActionRequest struct {
	ActionID   string            `json:"action_id"`
	ActionName string            `json:"action_name"`
	Args       map[string]any    `json:"args,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
}

// ActionResult is the wire response describing the outcome of one action.
type ActionResult struct {
	ActionID string            `json:"action_id"`
	Status   ActionStatus      `json:"status"`
	Errors   []Error           `json:"errors,omitempty"`
	Data     map[string]any    `json:"data,omitempty"`
	Files    map[string]string `json:"files,omitempty"`
}

// Step is one executable unit inside a Workflow run.
type Step struct {
	StepID       string                      `json:"step_id"`
	Name         string                      `json:"name"`
	NodeName     string                      `json:"node_name,omitempty"`
	ActionName   string                      `json:"action_name"`
	Args         map[string]any              `json:"args,omitempty"`
	Files        map[string]string           `json:"files,omitempty"`
	Locations    map[string]LocationArgument `json:"locations,omitempty"`
	Conditions   []string                    `json:"conditions,omitempty"`
	DataLabels   map[string]string           `json:"data_labels,omitempty"`
	LastActionID string                      `json:"last_action_id,omitempty"`
	Results      map[string]ActionResult     `json:"results,omitempty"`
	Status       ActionStatus                `json:"status,omitempty"`
	StartTime    *time.Time                  `json:"start_time,omitempty"`
	EndTime      *time.Time                  `json:"end_time,omitempty"`
}

// Result returns the terminal ActionResult for the step's most recent
// action, or nil if none has been recorded yet. This is the single-value
// view spec.md §3.1 describes; Results holds the full per-action history.
func (s *Step) Result() *ActionResult {
	if s.LastActionID == "" {
		return nil
	}
	r, ok := s.Results[s.LastActionID]
	if !ok {
		return nil
	}
	return &r
}

// SchedulerMetadata is the scheduler's working annotation on a Workflow,
// recomputed every tick rather than persisted as authoritative state.
type SchedulerMetadata struct {
	ReadyToRun bool     `json:"ready_to_run"`
	Priority   int      `json:"priority"`
	Reasons    []string `json:"reasons,omitempty"`
}

// WorkflowStatus tracks one run's position in the state machine described
// in spec.md §4.G.
type WorkflowStatus struct {
	CurrentStepIndex int        `json:"current_step_index"`
	Paused           bool       `json:"paused"`
	Completed        bool       `json:"completed"`
	Failed           bool       `json:"failed"`
	Cancelled        bool       `json:"cancelled"`
	Running          bool       `json:"running"`
	HasStarted       bool       `json:"has_started"`
	Description      string     `json:"description,omitempty"`
}

// Terminal reports whether the run has reached a final state.
func (s WorkflowStatus) Terminal() bool {
	return s.Completed || s.Failed || s.Cancelled
}

// Active reports whether the run is eligible for scheduling: not terminal
// and not paused.
func (s WorkflowStatus) Active() bool {
	return !s.Terminal() && !s.Paused
}

// Queued reports whether the run is active but not currently running.
func (s WorkflowStatus) Queued() bool {
	return s.Active() && !s.Running
}

// Reset clears a status back to a fresh, non-terminal state starting at
// stepIndex, the behavior retry(from_index) needs.
func (s *WorkflowStatus) Reset(stepIndex int) {
	s.CurrentStepIndex = stepIndex
	s.Paused = false
	s.Completed = false
	s.Failed = false
	s.Cancelled = false
	s.Running = false
	s.HasStarted = stepIndex > 0
	s.Description = ""
}

// Workflow is a materialized, executable run owned by the core.
type Workflow struct {
	WorkflowID         string              `json:"workflow_id"`
	DefinitionID       string              `json:"definition_id,omitempty"`
	DefinitionSnapshot WorkflowDefinition  `json:"definition_snapshot"`
	StepDefinitions    []StepDefinition    `json:"step_definitions,omitempty"`
	ParameterValues    map[string]any      `json:"parameter_values,omitempty"`
	Steps              []Step              `json:"steps"`
	Status             WorkflowStatus      `json:"status"`
	SchedulerMetadata  SchedulerMetadata   `json:"scheduler_metadata"`
	OwnershipInfo      OwnershipInfo       `json:"ownership_info"`
	SubmittedTime      *time.Time          `json:"submitted_time,omitempty"`
	StartTime          *time.Time          `json:"start_time,omitempty"`
	EndTime            *time.Time          `json:"end_time,omitempty"`
}

// CurrentStep returns a pointer to the step at CurrentStepIndex, or nil if
// the workflow has already advanced past its last step.
func (w *Workflow) CurrentStep() *Step {
	if w.Status.CurrentStepIndex < 0 || w.Status.CurrentStepIndex >= len(w.Steps) {
		return nil
	}
	return &w.Steps[w.Status.CurrentStepIndex]
}

// DatapointIDByLabel returns the published value for label across the
// workflow's steps, mirroring the original engine's
// get_datapoint_id_by_label lookup used for feed-forward parameters.
// step.data_labels maps a result data key to the globally unique label it
// is published under, so the search goes through that mapping rather than
// treating label as a direct result.data key.
func (w *Workflow) DatapointIDByLabel(label string) (any, bool) {
	for i := range w.Steps {
		step := &w.Steps[i]
		result := step.Result()
		if result == nil || result.Data == nil {
			continue
		}
		for dataKey, publishedLabel := range step.DataLabels {
			if publishedLabel != label {
				continue
			}
			if v, ok := result.Data[dataKey]; ok {
				return v, true
			}
		}
	}
	return nil, false
}
