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

// Package dispatcher executes one workflow's current step against its
// node and advances the workflow, per spec.md §4.F. The scheduler hands
// off a workflow and releases the state lock before Dispatch's node I/O
// begins; Dispatch reacquires the lock only to write the result back.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/madsci/workcell/internal/metrics"
	"github.com/madsci/workcell/internal/nodeclient"
	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/pkg/madsci"
)

// maxMessageLen caps how much of a node's error text is copied into a
// synthesized failed result.
const maxMessageLen = 2000

// Config tunes the dispatcher's polling behavior.
type Config struct {
	// PollInterval is how often GetActionResult is polled while a step
	// reports running.
	PollInterval time.Duration
	// Timeout bounds the total time spent polling one step before it is
	// treated as failed.
	Timeout time.Duration
	// StateLockTTL bounds how long the result-writeback lock is held.
	StateLockTTL time.Duration
	// Owner identifies this dispatcher's lock holder.
	Owner string
	// NewActionID generates the dispatcher-assigned action id for a fresh
	// send. Defaults to madsci.NewID; tests override it for determinism.
	NewActionID func() string
}

// DefaultConfig matches spec.md §4.F's suggested polling cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		Timeout:      10 * time.Minute,
		StateLockTTL: 10 * time.Second,
		Owner:        "dispatcher",
	}
}

// Dispatcher runs one step at a time against a node and writes the result
// back into the state store. It satisfies scheduler.Dispatcher.
type Dispatcher struct {
	store       store.Store
	newClient   nodeclient.Factory
	cfg         Config
	logger      *slog.Logger
	newActionID func() string
}

// New builds a Dispatcher. newClient builds a transport for a node's URL;
// production wiring passes nodeclient.NewRESTFactory's result, tests pass a factory
// returning nodeclient.MockClient.
func New(s store.Store, newClient nodeclient.Factory, cfg Config) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.StateLockTTL <= 0 {
		cfg.StateLockTTL = DefaultConfig().StateLockTTL
	}
	if cfg.Owner == "" {
		cfg.Owner = "dispatcher"
	}
	newActionID := cfg.NewActionID
	if newActionID == nil {
		newActionID = madsci.NewID
	}
	return &Dispatcher{
		store:       s,
		newClient:   newClient,
		cfg:         cfg,
		logger:      slog.Default().With(slog.String("component", "dispatcher")),
		newActionID: newActionID,
	}
}

// Dispatch runs the workflow's current step to completion (or failure) and
// writes the outcome back. It is meant to run in its own goroutine per
// spec.md §4.F; it does not hold the state lock while talking to the node.
func (d *Dispatcher) Dispatch(ctx context.Context, wf *madsci.Workflow) {
	start := time.Now()
	step := wf.CurrentStep()
	if step == nil {
		d.logger.Warn("dispatch called with no current step", slog.String("workflow_id", wf.WorkflowID))
		return
	}

	logger := d.logger.With(
		slog.String("workflow_id", wf.WorkflowID),
		slog.String("step_id", step.StepID),
		slog.String("node_name", step.NodeName),
	)

	node, err := d.store.GetNode(ctx, step.NodeName)
	if err != nil {
		logger.Error("failed to load node", slog.Any("error", err))
		metrics.NodeErrorsTotal.WithLabelValues(step.NodeName).Inc()
		d.writeResult(ctx, wf.WorkflowID, step.StepID, madsci.ActionResult{
			Status: madsci.ActionStatusFailed,
			Errors: []madsci.Error{{Message: truncate(err.Error()), ErrorType: "node_unavailable"}},
		})
		metrics.DispatchDuration.WithLabelValues(string(madsci.ActionStatusFailed)).Observe(time.Since(start).Seconds())
		return
	}

	client := d.newClient(node.NodeURL)

	actionID := step.LastActionID
	result, needsSend := d.recoverOrPrepare(ctx, client, actionID, logger)
	if needsSend {
		actionID = d.newActionID()
		if err := d.store.UpdateActiveWorkflow(ctx, wf.WorkflowID, func(w *madsci.Workflow) error {
			s := w.CurrentStep()
			if s == nil {
				return nil
			}
			s.LastActionID = actionID
			now := time.Now()
			s.StartTime = &now
			return nil
		}); err != nil {
			logger.Error("failed to persist action id before send", slog.Any("error", err))
		}

		sent, err := client.SendAction(ctx, madsci.ActionRequest{
			ActionID:   actionID,
			ActionName: step.ActionName,
			Args:       step.Args,
			Files:      step.Files,
		})
		if err != nil {
			metrics.NodeErrorsTotal.WithLabelValues(step.NodeName).Inc()
			result = madsci.ActionResult{
				ActionID: actionID,
				Status:   madsci.ActionStatusFailed,
				Errors:   []madsci.Error{{Message: truncate(err.Error()), ErrorType: "node_unavailable"}},
			}
		} else {
			result = sent
		}
	}

	if !result.Status.Terminal() && result.Status != madsci.ActionStatusNotReady {
		result = d.poll(ctx, client, actionID, step.NodeName, logger)
	}

	d.writeResult(ctx, wf.WorkflowID, step.StepID, result)
	metrics.DispatchDuration.WithLabelValues(string(result.Status)).Observe(time.Since(start).Seconds())
}

// recoverOrPrepare implements the idempotent-restart rule: if a step
// already carries an action_id from a prior dispatcher instance, the
// result is looked up before anything is resent.
func (d *Dispatcher) recoverOrPrepare(ctx context.Context, client nodeclient.Client, actionID string, logger *slog.Logger) (madsci.ActionResult, bool) {
	if actionID == "" {
		return madsci.ActionResult{}, true
	}
	result, err := client.GetActionResult(ctx, actionID)
	if err != nil {
		logger.Warn("no recoverable result for prior action id, resending", slog.String("action_id", actionID), slog.Any("error", err))
		return madsci.ActionResult{}, true
	}
	return result, false
}

// poll repeatedly queries the node for actionID's result until it reaches
// a terminal status, not_ready, or the dispatcher's timeout elapses.
func (d *Dispatcher) poll(ctx context.Context, client nodeclient.Client, actionID, nodeName string, logger *slog.Logger) madsci.ActionResult {
	deadline := time.Now().Add(d.cfg.Timeout)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return madsci.ActionResult{
				ActionID: actionID,
				Status:   madsci.ActionStatusFailed,
				Errors:   []madsci.Error{{Message: "dispatcher context cancelled while polling", ErrorType: "cancelled"}},
			}
		case <-ticker.C:
			result, err := client.GetActionResult(ctx, actionID)
			if err != nil {
				logger.Warn("poll failed", slog.Any("error", err))
				metrics.NodeErrorsTotal.WithLabelValues(nodeName).Inc()
				return madsci.ActionResult{
					ActionID: actionID,
					Status:   madsci.ActionStatusFailed,
					Errors:   []madsci.Error{{Message: truncate(err.Error()), ErrorType: "node_unavailable"}},
				}
			}
			if result.Status.Terminal() || result.Status == madsci.ActionStatusNotReady {
				return result
			}
			if time.Now().After(deadline) {
				return madsci.ActionResult{
					ActionID: actionID,
					Status:   madsci.ActionStatusFailed,
					Errors:   []madsci.Error{{Message: "dispatcher timed out waiting for terminal result", ErrorType: "dispatch_timeout"}},
				}
			}
		}
	}
}

// writeResult reacquires the state lock, records the result on the step,
// advances or archives the workflow, publishes data-label outputs, and
// bumps the change counter, per spec.md §4.F step 5-6.
func (d *Dispatcher) writeResult(ctx context.Context, workflowID, stepID string, result madsci.ActionResult) {
	lock, err := d.store.AcquireStateLock(ctx, d.cfg.Owner, d.cfg.StateLockTTL)
	if err != nil {
		d.logger.Error("failed to acquire state lock for result writeback", slog.Any("error", err))
		return
	}
	defer func() { _ = lock.Release(ctx) }()

	wf, err := d.store.GetActiveWorkflow(ctx, workflowID)
	if err != nil {
		d.logger.Error("failed to reload workflow for result writeback", slog.Any("error", err))
		return
	}

	step := findStep(wf, stepID)
	if step == nil {
		d.logger.Warn("step no longer present on workflow", slog.String("step_id", stepID))
		return
	}

	if result.ActionID == "" {
		result.ActionID = step.LastActionID
	}
	if step.Results == nil {
		step.Results = map[string]madsci.ActionResult{}
	}
	step.Results[result.ActionID] = result
	step.LastActionID = result.ActionID
	step.Status = result.Status
	now := time.Now()
	step.EndTime = &now

	// Data-label outputs are published implicitly: they live in
	// result.Data under step.DataLabels' keys, and madsci.Workflow's
	// DatapointIDByLabel looks a label up by scanning recorded results
	// through that same mapping, so there is nothing further to write here.
	// Later steps' args are sent as compiled: no labelled value is
	// substituted into them.

	switch result.Status {
	case madsci.ActionStatusSucceeded:
		wf.Status.CurrentStepIndex++
		if wf.Status.CurrentStepIndex >= len(wf.Steps) {
			wf.Status.Completed = true
			wf.Status.Running = false
			wf.EndTime = &now
			if err := d.store.ArchiveWorkflow(ctx, wf); err != nil {
				d.logger.Error("failed to archive completed workflow", slog.Any("error", err))
			}
		} else {
			wf.Status.Running = false
			if err := d.store.SetActiveWorkflow(ctx, wf); err != nil {
				d.logger.Error("failed to persist step advance", slog.Any("error", err))
			}
		}
	case madsci.ActionStatusFailed:
		wf.Status.Failed = true
		wf.Status.Running = false
		wf.EndTime = &now
		if err := d.store.ArchiveWorkflow(ctx, wf); err != nil {
			d.logger.Error("failed to archive failed workflow", slog.Any("error", err))
		}
	default: // not_ready, paused, cancelled short of a user cancel: leave in place
		wf.Status.Running = false
		if err := d.store.SetActiveWorkflow(ctx, wf); err != nil {
			d.logger.Error("failed to persist step result", slog.Any("error", err))
		}
	}

	if _, err := d.store.IncrementChangeCounter(ctx); err != nil {
		d.logger.Warn("failed to bump change counter", slog.Any("error", err))
	}
}

func findStep(wf *madsci.Workflow, stepID string) *madsci.Step {
	for i := range wf.Steps {
		if wf.Steps[i].StepID == stepID {
			return &wf.Steps[i]
		}
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen]
}
