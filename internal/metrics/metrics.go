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

// Package metrics holds the Prometheus collectors the scheduler and
// dispatcher report against, exposed by the Ingress API's GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTickDuration measures one scheduler.tick pass, from
	// acquiring the state lock to handing off (or not) a winning workflow.
	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "workcell_scheduler_tick_duration_seconds",
		Help:    "Duration of one scheduler tick",
		Buckets: prometheus.DefBuckets,
	})

	// QueueDepth is the number of workflows in the queue at the end of the
	// most recent tick.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workcell_queue_depth",
		Help: "Number of workflows currently queued",
	})

	// DispatchDuration measures one Dispatcher.Dispatch call, from taking a
	// workflow off the scheduler's hand-off to writing its result back,
	// labeled by the step's terminal status.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workcell_dispatch_duration_seconds",
			Help:    "Duration of one step dispatch, from send through result writeback",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"status"},
	)

	// NodeErrorsTotal counts node-communication failures the dispatcher
	// and liveness poller observe, labeled by node name.
	NodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workcell_node_errors_total",
			Help: "Total node communication failures",
		},
		[]string{"node_name"},
	)

	// NodesOnline is the count of nodes the liveness poller currently
	// considers reachable.
	NodesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workcell_nodes_online",
		Help: "Number of nodes the liveness poller currently considers reachable",
	})
)
