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

package madsci_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madsci/workcell/pkg/madsci"
)

func TestWorkflowDefinitionJSONRoundTrip(t *testing.T) {
	def := madsci.WorkflowDefinition{
		Name: "transfer-demo",
		Parameters: []madsci.ParameterDefinition{
			{Name: "plate_id", Default: "plate-1"},
		},
		Steps: []madsci.StepDefinition{
			{
				Name:       "transfer-plate",
				ActionName: "transfer",
				Locations:  map[string]string{"source": "bench1", "target": "bench2"},
			},
		},
	}

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var decoded madsci.WorkflowDefinition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, def, decoded)
}

func TestWorkflowJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	wf := madsci.Workflow{
		WorkflowID: madsci.NewID(),
		DefinitionSnapshot: madsci.WorkflowDefinition{
			Name:  "transfer-demo",
			Steps: []madsci.StepDefinition{{Name: "step1", ActionName: "transfer"}},
		},
		Steps: []madsci.Step{
			{
				StepID:     madsci.NewID(),
				Name:       "step1",
				ActionName: "transfer",
				Results: map[string]madsci.ActionResult{
					"a1": {ActionID: "a1", Status: madsci.ActionStatusSucceeded, Data: map[string]any{"plate": "p1"}},
				},
				LastActionID: "a1",
			},
		},
		Status:        madsci.WorkflowStatus{CurrentStepIndex: 1, Completed: true},
		SubmittedTime: &now,
	}

	data, err := json.Marshal(wf)
	require.NoError(t, err)

	var decoded madsci.Workflow
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, wf.WorkflowID, decoded.WorkflowID)
	assert.Equal(t, wf.Status, decoded.Status)
	assert.True(t, decoded.SubmittedTime.Equal(*wf.SubmittedTime))

	result := decoded.Steps[0].Result()
	require.NotNil(t, result)
	assert.Equal(t, madsci.ActionStatusSucceeded, result.Status)
	assert.Equal(t, "p1", result.Data["plate"])
}

func TestWorkflowStatusTransitions(t *testing.T) {
	s := madsci.WorkflowStatus{}
	assert.True(t, s.Active())
	assert.True(t, s.Queued())

	s.Running = true
	assert.True(t, s.Active())
	assert.False(t, s.Queued())

	s.Completed = true
	assert.True(t, s.Terminal())
	assert.False(t, s.Active())

	s.Reset(2)
	assert.False(t, s.Terminal())
	assert.Equal(t, 2, s.CurrentStepIndex)
	assert.True(t, s.HasStarted)
}

func TestNodeReady(t *testing.T) {
	now := time.Now()
	n := &madsci.Node{
		Info:   &madsci.NodeInfo{NodeName: "liquidhandler"},
		Status: &madsci.NodeStatus{},
	}
	owner := madsci.OwnershipInfo{UserID: "u1"}
	assert.True(t, n.Ready(owner, now))

	n.Status.Busy = true
	assert.False(t, n.Ready(owner, now))
	n.Status.Busy = false

	n.ReservedBy = &madsci.Reservation{
		OwnedBy: madsci.OwnershipInfo{UserID: "u2"},
		Start:   now.Add(-time.Minute),
		End:     now.Add(time.Minute),
	}
	assert.False(t, n.Ready(owner, now))
	assert.True(t, n.Ready(madsci.OwnershipInfo{UserID: "u2"}, now))
}

func TestTransferTemplateWeightDefault(t *testing.T) {
	tpl := madsci.TransferTemplate{NodeName: "ot2"}
	assert.Equal(t, 1.0, tpl.Weight())

	tpl.CostWeight = 2.5
	assert.Equal(t, 2.5, tpl.Weight())
}

func TestNewIDIsSortableAndUnique(t *testing.T) {
	a := madsci.NewID()
	b := madsci.NewID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
