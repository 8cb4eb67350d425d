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

// Package workflowmgr implements the lifecycle transitions spec.md §4.G
// exposes through the Ingress API: pause, resume, cancel, and
// retry(from_index). Every operation reacquires the state lock for its
// own read-mutate-write, the same discipline the scheduler and dispatcher
// use for any write to shared workflow state.
package workflowmgr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/madsci/workcell/internal/collab"
	"github.com/madsci/workcell/internal/nodeclient"
	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

const (
	AdminCommandPause  = "pause"
	AdminCommandResume = "resume"
	AdminCommandCancel = "cancel"
)

// Manager applies lifecycle transitions to workflows in the state store.
type Manager struct {
	store     store.Store
	newClient nodeclient.Factory
	events    *collab.EventManagerClient
	lockTTL   time.Duration
	owner     string
	logger    *slog.Logger
}

// New builds a Manager. newClient is used best-effort to notify the node
// currently executing a workflow's step; a nil client or a failed send
// never blocks the state transition, since the node may not support the
// admin command or may already be unreachable.
func New(s store.Store, newClient nodeclient.Factory) *Manager {
	return &Manager{
		store:     s,
		newClient: newClient,
		lockTTL:   10 * time.Second,
		owner:     "workflowmgr",
		logger:    slog.Default().With(slog.String("component", "workflowmgr")),
	}
}

// SetEventManager wires an optional Event Manager client. Emission is
// fire-and-forget: a nil client, or any emission failure, never affects the
// lifecycle transition it accompanies.
func (m *Manager) SetEventManager(client *collab.EventManagerClient) {
	m.events = client
}

// Pause sets status.paused on an active workflow and best-effort notifies
// its current step's node. No step is cancelled; a step already in
// flight on a node runs to completion.
func (m *Manager) Pause(ctx context.Context, workflowID string) error {
	lock, err := m.store.AcquireStateLock(ctx, m.owner, m.lockTTL)
	if err != nil {
		return &errors.LockTimeoutError{Owner: m.owner}
	}
	defer func() { _ = lock.Release(ctx) }()

	wf, err := m.store.GetActiveWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if !wf.Status.Active() {
		return fmt.Errorf("workflow %s is not active", workflowID)
	}

	wasRunning := wf.Status.Running
	wf.Status.Paused = true
	if err := m.store.SetActiveWorkflow(ctx, wf); err != nil {
		return err
	}
	if wasRunning {
		m.notifyCurrentNode(ctx, wf, AdminCommandPause)
	}
	m.emit(ctx, "workflow.paused", workflowID)
	return m.bumpChangeCounter(ctx)
}

// Resume clears status.paused, re-enqueues the workflow so the scheduler
// picks it back up, and best-effort notifies the current step's node.
func (m *Manager) Resume(ctx context.Context, workflowID string) error {
	lock, err := m.store.AcquireStateLock(ctx, m.owner, m.lockTTL)
	if err != nil {
		return &errors.LockTimeoutError{Owner: m.owner}
	}
	defer func() { _ = lock.Release(ctx) }()

	wf, err := m.store.GetActiveWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if !wf.Status.Paused {
		return fmt.Errorf("workflow %s is not paused", workflowID)
	}

	wf.Status.Paused = false
	if err := m.store.SetActiveWorkflow(ctx, wf); err != nil {
		return err
	}
	if err := m.store.EnqueueWorkflow(ctx, workflowID); err != nil {
		return err
	}
	m.notifyCurrentNode(ctx, wf, AdminCommandResume)
	m.emit(ctx, "workflow.resumed", workflowID)
	return m.bumpChangeCounter(ctx)
}

// Cancel marks the workflow cancelled, best-effort notifies the node
// executing its current step, and archives it.
func (m *Manager) Cancel(ctx context.Context, workflowID string) error {
	lock, err := m.store.AcquireStateLock(ctx, m.owner, m.lockTTL)
	if err != nil {
		return &errors.LockTimeoutError{Owner: m.owner}
	}
	defer func() { _ = lock.Release(ctx) }()

	wf, err := m.store.GetActiveWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	wasRunning := wf.Status.Running
	now := time.Now()
	wf.Status.Cancelled = true
	wf.Status.Running = false
	wf.EndTime = &now
	if wasRunning {
		m.notifyCurrentNode(ctx, wf, AdminCommandCancel)
	}
	m.emit(ctx, "workflow.cancelled", workflowID)
	return m.archiveAndBump(ctx, wf)
}

// Retry implements retry(from_index): only valid on a terminal (archived)
// workflow. It resets status to non-terminal starting at fromIndex,
// clears result/start_time/end_time on every step at or after fromIndex,
// removes the workflow from archived, and re-enqueues it as active.
// fromIndex < 0 retries from the index of the last step that has a
// recorded result, or 0 if none do.
func (m *Manager) Retry(ctx context.Context, workflowID string, fromIndex int) error {
	lock, err := m.store.AcquireStateLock(ctx, m.owner, m.lockTTL)
	if err != nil {
		return &errors.LockTimeoutError{Owner: m.owner}
	}
	defer func() { _ = lock.Release(ctx) }()

	wf, err := m.store.GetArchivedWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if !wf.Status.Terminal() {
		return fmt.Errorf("workflow %s is not terminal", workflowID)
	}

	if fromIndex < 0 {
		fromIndex = lastAttemptedIndex(wf)
	}
	if fromIndex < 0 || fromIndex > len(wf.Steps) {
		return fmt.Errorf("retry from_index %d out of range for %d steps", fromIndex, len(wf.Steps))
	}

	for i := fromIndex; i < len(wf.Steps); i++ {
		step := &wf.Steps[i]
		step.Results = nil
		step.LastActionID = ""
		step.Status = madsci.ActionStatusNotStarted
		step.StartTime = nil
		step.EndTime = nil
	}
	wf.Status.Reset(fromIndex)
	wf.EndTime = nil

	if err := m.store.UnarchiveWorkflow(ctx, wf); err != nil {
		return err
	}
	if err := m.store.EnqueueWorkflow(ctx, workflowID); err != nil {
		return err
	}
	m.emit(ctx, "workflow.retried", workflowID)
	return m.bumpChangeCounter(ctx)
}

// lastAttemptedIndex returns the index of the last step carrying a
// recorded result, the default retry point when from_index is unset.
func lastAttemptedIndex(wf *madsci.Workflow) int {
	for i := len(wf.Steps) - 1; i >= 0; i-- {
		if wf.Steps[i].Result() != nil {
			return i
		}
	}
	return 0
}

func (m *Manager) notifyCurrentNode(ctx context.Context, wf *madsci.Workflow, command string) {
	if m.newClient == nil {
		return
	}
	step := wf.CurrentStep()
	if step == nil || step.NodeName == "" {
		return
	}
	node, err := m.store.GetNode(ctx, step.NodeName)
	if err != nil {
		return
	}
	client := m.newClient(node.NodeURL)
	if _, err := client.SendAdminCommand(ctx, command); err != nil {
		m.logger.Warn("node did not accept admin command",
			slog.String("workflow_id", wf.WorkflowID),
			slog.String("node_name", step.NodeName),
			slog.String("command", command),
			slog.Any("error", err))
	}
}

func (m *Manager) emit(ctx context.Context, eventType, workflowID string) {
	if m.events == nil {
		return
	}
	m.events.Emit(ctx, collab.Event{
		EventType: eventType,
		Data:      map[string]any{"workflow_id": workflowID},
	})
}

func (m *Manager) archiveAndBump(ctx context.Context, wf *madsci.Workflow) error {
	if err := m.store.ArchiveWorkflow(ctx, wf); err != nil {
		return err
	}
	return m.bumpChangeCounter(ctx)
}

func (m *Manager) bumpChangeCounter(ctx context.Context) error {
	_, err := m.store.IncrementChangeCounter(ctx)
	return err
}
