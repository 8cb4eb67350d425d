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

// Package scheduler runs the tick loop that picks the next workflow step to
// dispatch: refresh the queue, evaluate eligibility under the state lock,
// then hand the single highest-priority eligible workflow to a Dispatcher
// and release the lock before any node I/O begins.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/madsci/workcell/internal/metrics"
	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/pkg/madsci"
)

// Dispatcher is the narrow capability the Scheduler hands eligible
// workflows to. internal/dispatcher.Dispatcher satisfies this.
type Dispatcher interface {
	Dispatch(ctx context.Context, workflow *madsci.Workflow)
}

// PriorityFunc ranks a ready-to-run workflow; higher runs first. The
// default is FIFO by submitted_time.
type PriorityFunc func(wf *madsci.Workflow) int64

// DefaultPriority implements FIFO: the earliest submitted workflow gets
// the highest priority value.
func DefaultPriority(wf *madsci.Workflow) int64 {
	if wf.SubmittedTime == nil {
		return 0
	}
	return -wf.SubmittedTime.UnixNano()
}

// Config tunes the scheduler loop.
type Config struct {
	TickInterval      time.Duration
	ColdStartDelay    time.Duration
	HeartbeatInterval time.Duration
	StateLockTTL      time.Duration
	Owner             string
	Priority          PriorityFunc
}

// DefaultConfig matches the workcell's default tuning constants.
func DefaultConfig() Config {
	return Config{
		TickInterval:      1 * time.Second,
		ColdStartDelay:    3 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		StateLockTTL:      10 * time.Second,
		Owner:             "scheduler",
		Priority:          DefaultPriority,
	}
}

// Scheduler is the single-threaded tick loop described in spec.md §4.E.
type Scheduler struct {
	store      store.Store
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Scheduler. cfg.Priority falls back to DefaultPriority when nil.
func New(s store.Store, dispatcher Dispatcher, cfg Config) *Scheduler {
	if cfg.Priority == nil {
		cfg.Priority = DefaultPriority
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.StateLockTTL <= 0 {
		cfg.StateLockTTL = DefaultConfig().StateLockTTL
	}
	if cfg.Owner == "" {
		cfg.Owner = "scheduler"
	}
	return &Scheduler{
		store:      s,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     slog.Default().With(slog.String("component", "scheduler")),
	}
}

// Start begins the tick loop in a background goroutine, sleeping
// cold_start_delay first so the Node Liveness Poller has a chance to
// populate node info.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	select {
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	case <-time.After(s.cfg.ColdStartDelay):
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-heartbeat.C:
			s.logger.Info("scheduler heartbeat")
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduling pass: acquire the state lock, refresh and
// evaluate the queue, dispatch the single highest-priority eligible
// workflow, and release the lock before any node I/O begins.
func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds()) }()

	lock, err := s.store.AcquireStateLock(ctx, s.cfg.Owner, s.cfg.StateLockTTL)
	if err != nil {
		s.logger.Warn("failed to acquire state lock", slog.Any("error", err))
		return
	}

	winner, err := s.selectEligibleWorkflow(ctx)
	if err != nil {
		s.logger.Error("failed to evaluate queue", slog.Any("error", err))
		_ = lock.Release(ctx)
		return
	}

	if winner != nil {
		if err := s.store.UpdateActiveWorkflow(ctx, winner.WorkflowID, func(wf *madsci.Workflow) error {
			wf.Status.Running = true
			wf.Status.HasStarted = true
			wf.SchedulerMetadata.ReadyToRun = false
			return nil
		}); err != nil {
			s.logger.Error("failed to mark workflow running", slog.Any("error", err))
			_ = lock.Release(ctx)
			return
		}
	}

	if err := lock.Release(ctx); err != nil {
		s.logger.Warn("failed to release state lock", slog.Any("error", err))
	}

	if winner != nil {
		go s.dispatcher.Dispatch(ctx, winner)
	}
}

// selectEligibleWorkflow refreshes the queue, evaluates eligibility for
// each queued workflow's current step, and returns the single
// highest-priority eligible workflow, or nil if none is eligible this
// tick. Must be called with the state lock held.
func (s *Scheduler) selectEligibleWorkflow(ctx context.Context) (*madsci.Workflow, error) {
	queue, err := s.store.ListQueue(ctx)
	if err != nil {
		return nil, err
	}
	metrics.QueueDepth.Set(float64(len(queue)))

	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	var best *madsci.Workflow
	var bestPriority int64

	for _, workflowID := range queue {
		wf, err := s.store.GetActiveWorkflow(ctx, workflowID)
		if err != nil {
			continue
		}
		if !wf.Status.Queued() {
			continue
		}

		eligible, reasons := s.evaluateEligibility(wf, nodes)
		wf.SchedulerMetadata.ReadyToRun = eligible
		wf.SchedulerMetadata.Reasons = reasons
		priority := s.cfg.Priority(wf)
		wf.SchedulerMetadata.Priority = int(priority)
		_ = s.store.SetActiveWorkflow(ctx, wf)

		if !eligible {
			continue
		}
		if best == nil || priority > bestPriority {
			best = wf
			bestPriority = priority
		}
	}

	return best, nil
}

// evaluateEligibility implements the node-ready and condition checks from
// spec.md §4.E.2 for a workflow's current step.
func (s *Scheduler) evaluateEligibility(wf *madsci.Workflow, nodes map[string]*madsci.Node) (bool, []string) {
	if wf.Status.CurrentStepIndex >= len(wf.Steps) {
		return false, []string{"no remaining steps"}
	}
	step := wf.Steps[wf.Status.CurrentStepIndex]

	node, ok := nodes[step.NodeName]
	if !ok {
		return false, []string{"target node does not exist"}
	}
	if !node.Ready(wf.OwnershipInfo, time.Now()) {
		return false, []string{"target node is not ready or reserved by another owner"}
	}

	for _, cond := range step.Conditions {
		ok, err := evaluateCondition(cond, wf)
		if err != nil {
			return false, []string{"condition evaluation error: " + err.Error()}
		}
		if !ok {
			return false, []string{"step condition not satisfied: " + cond}
		}
	}

	return true, nil
}
