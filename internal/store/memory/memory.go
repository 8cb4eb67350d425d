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

// Package memory provides an in-process state store implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

// Compile-time interface assertion.
var _ store.Store = (*Backend)(nil)

// Backend is an in-process, map-backed state store. Every write is guarded
// by mu; the advisory state lock (AcquireStateLock) is a separate,
// coarser-grained mechanism layered on top, matching spec.md §3.2's
// distinction between the store's own internal consistency and the
// scheduler-visible advisory lock.
type Backend struct {
	mu sync.RWMutex

	def          *madsci.WorkcellDefinition
	status       *madsci.WorkcellStatus
	nodes        map[string]*madsci.Node
	locations    map[string]*madsci.Location
	workflowDefs map[string]*madsci.WorkflowDefinition

	queue    []string
	active   map[string]*madsci.Workflow
	archived map[string]*madsci.Workflow
	// archivedOrder tracks archival order so ListArchivedWorkflows(n) can
	// return the n most recently archived runs.
	archivedOrder []string

	changeCounter int64

	// lockSem is a capacity-1 semaphore implementing the leased advisory
	// lock, the same stop-channel-plus-timer shape as the teacher's
	// leader.Elector, generalized from cross-process Postgres advisory
	// locks to an in-process leased mutex.
	lockSem chan struct{}
}

// New creates a new in-memory state store.
func New() *Backend {
	return &Backend{
		nodes:        make(map[string]*madsci.Node),
		locations:    make(map[string]*madsci.Location),
		workflowDefs: make(map[string]*madsci.WorkflowDefinition),
		active:       make(map[string]*madsci.Workflow),
		archived:     make(map[string]*madsci.Workflow),
		status:       &madsci.WorkcellStatus{Initializing: true},
		lockSem:      make(chan struct{}, 1),
	}
}

// Close releases any resources held by the backend. The in-memory backend
// holds none.
func (b *Backend) Close() error { return nil }

// --- DefinitionStore ---

func (b *Backend) GetWorkcellDefinition(ctx context.Context) (*madsci.WorkcellDefinition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.def == nil {
		return nil, &errors.NotFoundError{Resource: "workcell_definition", ID: "singleton"}
	}
	return b.def, nil
}

func (b *Backend) SetWorkcellDefinition(ctx context.Context, def *madsci.WorkcellDefinition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.def = def
	return nil
}

func (b *Backend) SaveWorkflowDefinition(ctx context.Context, id string, def *madsci.WorkflowDefinition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workflowDefs[id] = def
	return nil
}

func (b *Backend) GetWorkflowDefinition(ctx context.Context, id string) (*madsci.WorkflowDefinition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	def, ok := b.workflowDefs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow_definition", ID: id}
	}
	return def, nil
}

// --- StatusStore ---

func (b *Backend) GetWorkcellStatus(ctx context.Context) (*madsci.WorkcellStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status, nil
}

func (b *Backend) SetWorkcellStatus(ctx context.Context, status *madsci.WorkcellStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	return nil
}

func (b *Backend) UpdateWorkcellStatus(ctx context.Context, fn func(*madsci.WorkcellStatus)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.status)
	return nil
}

// --- NodeStore ---

func (b *Backend) GetNode(ctx context.Context, name string) (*madsci.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	node, ok := b.nodes[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "node", ID: name}
	}
	return node, nil
}

func (b *Backend) ListNodes(ctx context.Context) (map[string]*madsci.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*madsci.Node, len(b.nodes))
	for k, v := range b.nodes {
		out[k] = v
	}
	return out, nil
}

func (b *Backend) SetNode(ctx context.Context, name string, node *madsci.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[name] = node
	return nil
}

func (b *Backend) DeleteNode(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, name)
	return nil
}

func (b *Backend) UpdateNode(ctx context.Context, name string, fn func(*madsci.Node) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	node, ok := b.nodes[name]
	if !ok {
		return &errors.NotFoundError{Resource: "node", ID: name}
	}
	return fn(node)
}

// --- LocationStore ---

func (b *Backend) GetLocation(ctx context.Context, id string) (*madsci.Location, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	loc, ok := b.locations[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "location", ID: id}
	}
	return loc, nil
}

func (b *Backend) ListLocations(ctx context.Context) (map[string]*madsci.Location, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*madsci.Location, len(b.locations))
	for k, v := range b.locations {
		out[k] = v
	}
	return out, nil
}

func (b *Backend) SetLocation(ctx context.Context, loc *madsci.Location) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locations[loc.LocationID] = loc
	return nil
}

func (b *Backend) DeleteLocation(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.locations, id)
	return nil
}

func (b *Backend) UpdateLocation(ctx context.Context, id string, fn func(*madsci.Location) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.locations[id]
	if !ok {
		return &errors.NotFoundError{Resource: "location", ID: id}
	}
	return fn(loc)
}

// --- QueueStore ---

func (b *Backend) EnqueueWorkflow(ctx context.Context, workflowID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, workflowID)
	return nil
}

func (b *Backend) ListQueue(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.queue))
	copy(out, b.queue)
	return out, nil
}

func (b *Backend) RemoveFromQueue(ctx context.Context, workflowID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeFromQueueLocked(workflowID)
	return nil
}

func (b *Backend) removeFromQueueLocked(workflowID string) {
	for i, id := range b.queue {
		if id == workflowID {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return
		}
	}
}

// --- WorkflowStore ---

func (b *Backend) GetActiveWorkflow(ctx context.Context, id string) (*madsci.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	wf, ok := b.active[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return wf, nil
}

func (b *Backend) SetActiveWorkflow(ctx context.Context, wf *madsci.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[wf.WorkflowID] = wf
	return nil
}

func (b *Backend) ListActiveWorkflows(ctx context.Context) (map[string]*madsci.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*madsci.Workflow, len(b.active))
	for k, v := range b.active {
		out[k] = v
	}
	return out, nil
}

func (b *Backend) UpdateActiveWorkflow(ctx context.Context, id string, fn func(*madsci.Workflow) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	wf, ok := b.active[id]
	if !ok {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return fn(wf)
}

func (b *Backend) ArchiveWorkflow(ctx context.Context, wf *madsci.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, wf.WorkflowID)
	b.removeFromQueueLocked(wf.WorkflowID)
	b.archived[wf.WorkflowID] = wf
	b.archivedOrder = append(b.archivedOrder, wf.WorkflowID)
	return nil
}

func (b *Backend) UnarchiveWorkflow(ctx context.Context, wf *madsci.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.archived, wf.WorkflowID)
	for i, id := range b.archivedOrder {
		if id == wf.WorkflowID {
			b.archivedOrder = append(b.archivedOrder[:i], b.archivedOrder[i+1:]...)
			break
		}
	}
	b.active[wf.WorkflowID] = wf
	b.queue = append(b.queue, wf.WorkflowID)
	return nil
}

func (b *Backend) GetArchivedWorkflow(ctx context.Context, id string) (*madsci.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	wf, ok := b.archived[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return wf, nil
}

func (b *Backend) ListArchivedWorkflows(ctx context.Context, n int) (map[string]*madsci.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := b.archivedOrder
	if n > 0 && len(ids) > n {
		ids = ids[len(ids)-n:]
	}
	out := make(map[string]*madsci.Workflow, len(ids))
	for _, id := range ids {
		out[id] = b.archived[id]
	}
	return out, nil
}

// --- ChangeCounterStore ---

func (b *Backend) IncrementChangeCounter(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changeCounter++
	return b.changeCounter, nil
}

func (b *Backend) ChangeCounter(ctx context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changeCounter, nil
}

// --- LockProvider ---

// AcquireStateLock blocks on a capacity-1 channel acting as the advisory
// lock's semaphore. The lease is enforced by a time.AfterFunc that forces
// release if the holder never calls Release, the same crash-safety
// guarantee the teacher's leader election gets from Postgres session
// expiry, reproduced here with a timer instead of a database session.
func (b *Backend) AcquireStateLock(ctx context.Context, owner string, ttl time.Duration) (store.Lock, error) {
	select {
	case b.lockSem <- struct{}{}:
	case <-ctx.Done():
		return nil, &errors.LockTimeoutError{Owner: owner}
	}

	lock := &memoryLock{backend: b}
	lock.timer = time.AfterFunc(ttl, func() {
		_ = lock.Release(context.Background())
	})
	return lock, nil
}

type memoryLock struct {
	backend *Backend
	timer   *time.Timer
	once    sync.Once
}

func (l *memoryLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.timer.Stop()
		<-l.backend.lockSem
	})
	return nil
}
