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

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madsci/workcell/internal/store/memory"
	"github.com/madsci/workcell/pkg/madsci"
)

func TestNodeCRUD(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	_, err := b.GetNode(ctx, "ot2")
	assert.Error(t, err)

	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{NodeURL: "http://ot2.local"}))
	node, err := b.GetNode(ctx, "ot2")
	require.NoError(t, err)
	assert.Equal(t, "http://ot2.local", node.NodeURL)

	require.NoError(t, b.UpdateNode(ctx, "ot2", func(n *madsci.Node) error {
		n.Status = &madsci.NodeStatus{Busy: true}
		return nil
	}))
	node, _ = b.GetNode(ctx, "ot2")
	assert.True(t, node.Status.Busy)

	require.NoError(t, b.DeleteNode(ctx, "ot2"))
	_, err = b.GetNode(ctx, "ot2")
	assert.Error(t, err)
}

func TestWorkflowQueueAndArchive(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	wf := &madsci.Workflow{WorkflowID: "wf1"}
	require.NoError(t, b.SetActiveWorkflow(ctx, wf))
	require.NoError(t, b.EnqueueWorkflow(ctx, wf.WorkflowID))

	queue, err := b.ListQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf1"}, queue)

	wf.Status.Completed = true
	require.NoError(t, b.ArchiveWorkflow(ctx, wf))

	_, err = b.GetActiveWorkflow(ctx, "wf1")
	assert.Error(t, err)

	queue, _ = b.ListQueue(ctx)
	assert.Empty(t, queue)

	archived, err := b.GetArchivedWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.True(t, archived.Status.Completed)
}

func TestUnarchiveWorkflowRestoresQueue(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	wf := &madsci.Workflow{WorkflowID: "wf1", Status: madsci.WorkflowStatus{Failed: true}}
	require.NoError(t, b.ArchiveWorkflow(ctx, wf))

	wf.Status.Reset(2)
	require.NoError(t, b.UnarchiveWorkflow(ctx, wf))

	_, err := b.GetArchivedWorkflow(ctx, "wf1")
	assert.Error(t, err)

	active, err := b.GetActiveWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Status.CurrentStepIndex)

	queue, _ := b.ListQueue(ctx)
	assert.Equal(t, []string{"wf1"}, queue)
}

func TestChangeCounterMonotonic(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	first, err := b.IncrementChangeCounter(ctx)
	require.NoError(t, err)
	second, err := b.IncrementChangeCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	current, err := b.ChangeCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, current)
}

func TestAcquireStateLockBlocksUntilReleased(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	lock, err := b.AcquireStateLock(ctx, "scheduler", time.Second)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := b.AcquireStateLock(context.Background(), "poller", time.Second)
		require.NoError(t, err)
		close(acquired)
		_ = second.Release(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatal("second acquisition should not succeed before release")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lock.Release(ctx))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquisition should succeed after release")
	}
}

func TestAcquireStateLockAutoReleasesAfterTTL(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	_, err := b.AcquireStateLock(ctx, "stuck-holder", 10*time.Millisecond)
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lock2, err := b.AcquireStateLock(ctx2, "next-holder", time.Second)
	require.NoError(t, err)
	_ = lock2.Release(context.Background())
}

func TestAcquireStateLockRespectsContextCancellation(t *testing.T) {
	b := memory.New()

	lock, err := b.AcquireStateLock(context.Background(), "holder", time.Minute)
	require.NoError(t, err)
	defer lock.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.AcquireStateLock(ctx, "waiter", time.Minute)
	assert.Error(t, err)
}
