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

// Package store provides the state store for a workcell: a single source
// of truth for mutable runtime state, plus the coarse advisory lock that
// serializes scheduler ticks and administrative writes.
//
// # Interface Hierarchy
//
// Like the controller's storage backend, store uses interface segregation
// so components can depend on the narrowest bucket they touch:
//
//   - DefinitionStore: workcell and workflow definitions
//   - NodeStore: the nodes bucket
//   - LocationStore: the locations bucket
//   - QueueStore: the workflow queue
//   - WorkflowStore: active and archived workflow runs
//   - LockProvider: the state lock
//
// Store composes all of these for full-featured implementations.
package store

import (
	"context"
	"io"
	"time"

	"github.com/madsci/workcell/pkg/madsci"
)

// DefinitionStore persists the workcell definition and the registry of
// submitted workflow definitions.
type DefinitionStore interface {
	// GetWorkcellDefinition returns the singleton workcell definition.
	GetWorkcellDefinition(ctx context.Context) (*madsci.WorkcellDefinition, error)

	// SetWorkcellDefinition replaces the singleton workcell definition.
	SetWorkcellDefinition(ctx context.Context, def *madsci.WorkcellDefinition) error

	// SaveWorkflowDefinition registers a definition under id, the
	// `/workflow_definition` registry spec.md §6.1 requires.
	SaveWorkflowDefinition(ctx context.Context, id string, def *madsci.WorkflowDefinition) error

	// GetWorkflowDefinition retrieves a previously registered definition.
	GetWorkflowDefinition(ctx context.Context, id string) (*madsci.WorkflowDefinition, error)
}

// StatusStore persists the workcell-level status singleton.
type StatusStore interface {
	GetWorkcellStatus(ctx context.Context) (*madsci.WorkcellStatus, error)
	SetWorkcellStatus(ctx context.Context, status *madsci.WorkcellStatus) error

	// UpdateWorkcellStatus reads, mutates via fn, and writes back under the
	// store's own locking, for callers that do not already hold the state lock.
	UpdateWorkcellStatus(ctx context.Context, fn func(*madsci.WorkcellStatus)) error
}

// NodeStore persists the nodes bucket, keyed by node name.
type NodeStore interface {
	GetNode(ctx context.Context, name string) (*madsci.Node, error)
	ListNodes(ctx context.Context) (map[string]*madsci.Node, error)
	SetNode(ctx context.Context, name string, node *madsci.Node) error
	DeleteNode(ctx context.Context, name string) error

	// UpdateNode reads, mutates via fn, and writes back under the store's
	// own locking. fn returning an error aborts the write.
	UpdateNode(ctx context.Context, name string, fn func(*madsci.Node) error) error
}

// LocationStore persists the locations bucket, keyed by location id.
type LocationStore interface {
	GetLocation(ctx context.Context, id string) (*madsci.Location, error)
	ListLocations(ctx context.Context) (map[string]*madsci.Location, error)
	SetLocation(ctx context.Context, loc *madsci.Location) error
	DeleteLocation(ctx context.Context, id string) error
	UpdateLocation(ctx context.Context, id string, fn func(*madsci.Location) error) error
}

// QueueStore persists the ordered workflow queue.
type QueueStore interface {
	// EnqueueWorkflow appends workflowID to the back of the queue.
	EnqueueWorkflow(ctx context.Context, workflowID string) error

	// ListQueue returns the queue in FIFO submission order.
	ListQueue(ctx context.Context) ([]string, error)

	// RemoveFromQueue removes workflowID from the queue, if present.
	RemoveFromQueue(ctx context.Context, workflowID string) error
}

// WorkflowStore persists workflow runs, both active and archived.
type WorkflowStore interface {
	GetActiveWorkflow(ctx context.Context, id string) (*madsci.Workflow, error)
	SetActiveWorkflow(ctx context.Context, wf *madsci.Workflow) error
	ListActiveWorkflows(ctx context.Context) (map[string]*madsci.Workflow, error)

	// UpdateActiveWorkflow reads, mutates via fn, and writes back. fn
	// returning an error aborts the write.
	UpdateActiveWorkflow(ctx context.Context, id string, fn func(*madsci.Workflow) error) error

	// ArchiveWorkflow atomically removes wf from the active bucket and the
	// queue and writes it to the archived bucket. This is the single path
	// every terminal transition goes through (completed, failed, cancelled).
	ArchiveWorkflow(ctx context.Context, wf *madsci.Workflow) error

	// UnarchiveWorkflow is the retry(from_index) counterpart: removes wf
	// from archived and re-enqueues it as active.
	UnarchiveWorkflow(ctx context.Context, wf *madsci.Workflow) error

	GetArchivedWorkflow(ctx context.Context, id string) (*madsci.Workflow, error)

	// ListArchivedWorkflows returns up to n of the most recently archived
	// workflows, or all of them if n <= 0.
	ListArchivedWorkflows(ctx context.Context, n int) (map[string]*madsci.Workflow, error)
}

// Lock is a held advisory lock. Release is idempotent.
type Lock interface {
	Release(ctx context.Context) error
}

// LockProvider grants the coarse advisory lock that serializes scheduler
// ticks and administrative writes.
type LockProvider interface {
	// AcquireStateLock blocks until the lock is acquired, ctx is done, or
	// the acquisition timeout elapses, whichever comes first. The lock
	// auto-releases after ttl even if Release is never called, so a
	// crashed holder can never deadlock the workcell.
	AcquireStateLock(ctx context.Context, owner string, ttl time.Duration) (Lock, error)
}

// ChangeCounterStore tracks the monotonic change counter observers use to
// detect missed updates.
type ChangeCounterStore interface {
	IncrementChangeCounter(ctx context.Context) (int64, error)
	ChangeCounter(ctx context.Context) (int64, error)
}

// Store is the full interface for workcell state storage, composing every
// segregated bucket interface plus io.Closer for lifecycle management.
type Store interface {
	DefinitionStore
	StatusStore
	NodeStore
	LocationStore
	QueueStore
	WorkflowStore
	LockProvider
	ChangeCounterStore
	io.Closer
}
