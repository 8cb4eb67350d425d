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

// Package liveness runs the background loop that keeps each node's status
// and info in the state store current by periodically querying every
// configured node over its client.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/madsci/workcell/internal/metrics"
	"github.com/madsci/workcell/internal/nodeclient"
	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/pkg/madsci"
)

// Config tunes the poller.
type Config struct {
	// Interval is the time between poll sweeps.
	Interval time.Duration
	// RequestsPerSecond caps outbound node calls across the whole sweep,
	// so a large workcell doesn't open hundreds of sockets at once.
	RequestsPerSecond float64
}

// DefaultConfig returns conservative poll tuning.
func DefaultConfig() Config {
	return Config{
		Interval:          2 * time.Second,
		RequestsPerSecond: 20,
	}
}

// Poller periodically fetches info/status/state from every node in the
// store and writes the results back, marking nodes that fail to respond
// unavailable rather than leaving their last-known status stale.
type Poller struct {
	store   store.Store
	clients nodeclient.Factory
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Poller. clients builds a nodeclient.Client for a given
// node URL; in production this is nodeclient.NewRESTFactory's result, in tests a
// factory returning nodeclient.MockClient instances.
func New(s store.Store, clients nodeclient.Factory, cfg Config) *Poller {
	return &Poller{
		store:   s,
		clients: clients,
		cfg:     cfg,
		logger:  slog.Default().With(slog.String("component", "liveness")),
	}
}

// Start launches the poll loop in a goroutine. Safe to call once; a
// second call before Stop is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop signals the loop to exit and blocks until it has.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	<-p.doneCh
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	interval := p.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep fetches info/status/state for every node in parallel, bounded by
// a token-bucket limiter, and writes each result back independently so
// one slow or failing node never blocks the others.
func (p *Poller) sweep(ctx context.Context) {
	status, err := p.store.GetWorkcellStatus(ctx)
	if err == nil && status.ShuttingDown {
		return
	}

	nodes, err := p.store.ListNodes(ctx)
	if err != nil {
		p.logger.Warn("failed to list nodes", slog.Any("error", err))
		return
	}

	limiter := rate.NewLimiter(rate.Limit(p.cfg.RequestsPerSecond), 1)
	if p.cfg.RequestsPerSecond <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	var wg sync.WaitGroup
	var online atomic.Int64
	for name, node := range nodes {
		wg.Add(1)
		go func(name string, node *madsci.Node) {
			defer wg.Done()
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if p.pollOne(ctx, name, node) {
				online.Add(1)
			}
		}(name, node)
	}
	wg.Wait()
	metrics.NodesOnline.Set(float64(online.Load()))
}

// pollOne refreshes one node's info/status/state and reports whether the
// node responded.
func (p *Poller) pollOne(ctx context.Context, name string, node *madsci.Node) bool {
	logger := p.logger.With(slog.String("node", name))

	client := p.clients(node.NodeURL)

	info, err := client.GetInfo(ctx)
	if err != nil {
		logger.Warn("node unreachable, marking unavailable", slog.Any("error", err))
		metrics.NodeErrorsTotal.WithLabelValues(name).Inc()
		p.markUnavailable(ctx, name)
		return false
	}

	nodeStatus, err := client.GetStatus(ctx)
	if err != nil {
		logger.Warn("failed to fetch node status", slog.Any("error", err))
		metrics.NodeErrorsTotal.WithLabelValues(name).Inc()
		p.markUnavailable(ctx, name)
		return false
	}

	nodeState, stateErr := client.GetState(ctx)
	if stateErr != nil {
		logger.Debug("failed to fetch node state", slog.Any("error", stateErr))
	}

	if err := p.store.UpdateNode(ctx, name, func(n *madsci.Node) error {
		n.Info = &info
		n.Status = &nodeStatus
		if stateErr == nil {
			n.State = nodeState
		}
		return nil
	}); err != nil {
		logger.Warn("failed to persist node poll result", slog.Any("error", err))
		return false
	}
	return true
}

// markUnavailable flips the status sentinel a node carries when it could
// not be reached, without discarding its last-known info/state.
func (p *Poller) markUnavailable(ctx context.Context, name string) {
	_ = p.store.UpdateNode(ctx, name, func(n *madsci.Node) error {
		if n.Status == nil {
			n.Status = &madsci.NodeStatus{}
		}
		n.Status.Errored = true
		n.Status.Busy = false
		return nil
	})
}
