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

package dispatcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madsci/workcell/internal/dispatcher"
	"github.com/madsci/workcell/internal/nodeclient"
	"github.com/madsci/workcell/internal/store/memory"
	"github.com/madsci/workcell/pkg/madsci"
)

func seedWorkflow(t *testing.T, b *memory.Backend, wf *madsci.Workflow) {
	t.Helper()
	require.NoError(t, b.SetActiveWorkflow(context.Background(), wf))
	require.NoError(t, b.EnqueueWorkflow(context.Background(), wf.WorkflowID))
}

func fixedIDConfig(id string) dispatcher.Config {
	cfg := dispatcher.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Timeout = time.Second
	cfg.NewActionID = func() string { return id }
	return cfg
}

func TestDispatchAdvancesOnSuccessAndArchivesAtLastStep(t *testing.T) {
	b := memory.New()
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{NodeURL: "mock://ot2"}))

	mock := nodeclient.NewMockClient(madsci.NodeInfo{NodeName: "ot2"}, madsci.NodeStatus{})
	mock.QueueResult("action-1", madsci.ActionResult{
		ActionID: "action-1",
		Status:   madsci.ActionStatusSucceeded,
		Data:     map[string]any{"volume": 42.0},
	})
	factory := func(url string) nodeclient.Client { return mock }

	wf := &madsci.Workflow{
		WorkflowID: "wf1",
		Steps: []madsci.Step{
			{StepID: "s1", NodeName: "ot2", ActionName: "dispense", DataLabels: map[string]string{"volume": "dispensed_volume"}},
		},
	}
	seedWorkflow(t, b, wf)

	d := dispatcher.New(b, factory, fixedIDConfig("action-1"))
	d.Dispatch(ctx, wf)

	require.Len(t, mock.SentActions, 1)
	assert.Equal(t, "dispense", mock.SentActions[0].ActionName)
	assert.Equal(t, "action-1", mock.SentActions[0].ActionID)

	_, err := b.GetActiveWorkflow(ctx, "wf1")
	assert.Error(t, err, "single-step workflow should be archived after its only step succeeds")

	archived, err := b.GetArchivedWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.True(t, archived.Status.Completed)
	assert.Equal(t, madsci.ActionStatusSucceeded, archived.Steps[0].Status)

	v, ok := archived.DatapointIDByLabel("dispensed_volume")
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestDispatchArchivesAsFailedOnFailedResult(t *testing.T) {
	b := memory.New()
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{NodeURL: "mock://ot2"}))

	mock := nodeclient.NewMockClient(madsci.NodeInfo{}, madsci.NodeStatus{})
	mock.QueueResult("action-2", madsci.ActionResult{
		ActionID: "action-2",
		Status:   madsci.ActionStatusFailed,
		Errors:   []madsci.Error{{Message: "syringe jam"}},
	})
	factory := func(url string) nodeclient.Client { return mock }

	wf := &madsci.Workflow{
		WorkflowID: "wf2",
		Steps:      []madsci.Step{{StepID: "s1", NodeName: "ot2", ActionName: "dispense"}},
	}
	seedWorkflow(t, b, wf)

	d := dispatcher.New(b, factory, fixedIDConfig("action-2"))
	d.Dispatch(ctx, wf)

	archived, err := b.GetArchivedWorkflow(ctx, "wf2")
	require.NoError(t, err)
	assert.True(t, archived.Status.Failed)
	assert.Equal(t, madsci.ActionStatusFailed, archived.Steps[0].Status)
}

func TestDispatchRecoversPersistedActionIDWithoutResending(t *testing.T) {
	b := memory.New()
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{NodeURL: "mock://ot2"}))

	mock := nodeclient.NewMockClient(madsci.NodeInfo{}, madsci.NodeStatus{})
	factory := func(url string) nodeclient.Client { return mock }

	mock.QueueResult("action-123", madsci.ActionResult{ActionID: "action-123", Status: madsci.ActionStatusSucceeded, Data: map[string]any{}})

	wf := &madsci.Workflow{
		WorkflowID: "wf3",
		Steps:      []madsci.Step{{StepID: "s1", NodeName: "ot2", ActionName: "dispense", LastActionID: "action-123"}},
	}
	seedWorkflow(t, b, wf)

	d := dispatcher.New(b, factory, dispatcher.Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second})
	d.Dispatch(ctx, wf)

	assert.Empty(t, mock.SentActions, "a persisted action id must be recovered via GetActionResult, not resent")

	archived, err := b.GetArchivedWorkflow(ctx, "wf3")
	require.NoError(t, err)
	assert.True(t, archived.Status.Completed)
}

func TestDispatchPollsUntilTerminal(t *testing.T) {
	b := memory.New()
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{NodeURL: "mock://ot2"}))

	mock := nodeclient.NewMockClient(madsci.NodeInfo{}, madsci.NodeStatus{})
	mock.QueueResult("action-4", madsci.ActionResult{ActionID: "action-4", Status: madsci.ActionStatusRunning})
	mock.QueuePollSequence("action-4",
		madsci.ActionResult{ActionID: "action-4", Status: madsci.ActionStatusRunning},
		madsci.ActionResult{ActionID: "action-4", Status: madsci.ActionStatusSucceeded, Data: map[string]any{}},
	)
	factory := func(url string) nodeclient.Client { return mock }

	wf := &madsci.Workflow{
		WorkflowID: "wf4",
		Steps:      []madsci.Step{{StepID: "s1", NodeName: "ot2", ActionName: "dispense"}},
	}
	seedWorkflow(t, b, wf)

	d := dispatcher.New(b, factory, fixedIDConfig("action-4"))
	d.Dispatch(ctx, wf)

	require.Len(t, mock.SentActions, 1)
	archived, err := b.GetArchivedWorkflow(ctx, "wf4")
	require.NoError(t, err)
	assert.True(t, archived.Status.Completed)
}

func TestDispatchLeavesNotReadyStepQueuedForNextTick(t *testing.T) {
	b := memory.New()
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	require.NoError(t, b.SetNode(ctx, "ot2", &madsci.Node{NodeURL: "mock://ot2"}))

	mock := nodeclient.NewMockClient(madsci.NodeInfo{}, madsci.NodeStatus{})
	mock.QueueResult("action-5", madsci.ActionResult{ActionID: "action-5", Status: madsci.ActionStatusNotReady})
	factory := func(url string) nodeclient.Client { return mock }

	wf := &madsci.Workflow{
		WorkflowID: "wf5",
		Steps:      []madsci.Step{{StepID: "s1", NodeName: "ot2", ActionName: "dispense"}},
	}
	seedWorkflow(t, b, wf)

	d := dispatcher.New(b, factory, fixedIDConfig("action-5"))
	d.Dispatch(ctx, wf)

	active, err := b.GetActiveWorkflow(ctx, "wf5")
	require.NoError(t, err)
	assert.False(t, active.Status.Completed)
	assert.False(t, active.Status.Failed)
	assert.Equal(t, madsci.ActionStatusNotReady, active.Steps[0].Status)
	assert.Equal(t, 0, active.Status.CurrentStepIndex)
}
