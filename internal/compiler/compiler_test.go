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

package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madsci/workcell/internal/compiler"
	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

func benchLocations() map[string]*madsci.Location {
	return map[string]*madsci.Location{
		"loc-bench1": {
			LocationID:  "loc-bench1",
			Name:        "bench1",
			References:  map[string]any{"ot2": "deck1"},
			DefaultArgs: map[string]any{"speed": "slow"},
		},
		"loc-bench2": {
			LocationID: "loc-bench2",
			Name:       "bench2",
			References: map[string]any{"ot2": "deck2"},
			NodeOverrides: map[string]map[string]any{
				"ot2": {"speed": "fast"},
			},
		},
	}
}

func baseInput(steps []madsci.StepDefinition) compiler.Input {
	return compiler.Input{
		Definition: &madsci.WorkflowDefinition{Name: "demo", Steps: steps},
		Nodes: map[string]madsci.NodeLink{
			"ot2": {NodeURL: "http://ot2.local"},
		},
		RuntimeNodes: map[string]*madsci.Node{},
		Locations:    benchLocations(),
	}
}

func TestCompileSimpleStepBindsIDsAndQueuesNonTerminal(t *testing.T) {
	in := baseInput([]madsci.StepDefinition{
		{Name: "move_plate", NodeName: "ot2", ActionName: "transfer_plate", Args: map[string]any{"plate_id": "p1"}},
	})

	wf, err := compiler.Compile(in)
	require.NoError(t, err)

	assert.NotEmpty(t, wf.WorkflowID)
	require.Len(t, wf.Steps, 1)
	assert.NotEmpty(t, wf.Steps[0].StepID)
	assert.Equal(t, madsci.ActionStatusNotStarted, wf.Steps[0].Status)
	assert.False(t, wf.Status.Terminal())
	assert.False(t, wf.Status.Running)
	assert.NotNil(t, wf.SubmittedTime)
}

func TestCompileRejectsUnknownNode(t *testing.T) {
	in := baseInput([]madsci.StepDefinition{
		{Name: "s1", NodeName: "missing-node", ActionName: "noop"},
	})

	_, err := compiler.Compile(in)
	require.Error(t, err)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "node_name", verr.Field)
}

func TestCompileRejectsDuplicateDataLabels(t *testing.T) {
	in := baseInput([]madsci.StepDefinition{
		{Name: "s1", NodeName: "ot2", ActionName: "noop", DataLabels: map[string]string{"out": "result"}},
		{Name: "s2", NodeName: "ot2", ActionName: "noop", DataLabels: map[string]string{"out": "result"}},
	})

	_, err := compiler.Compile(in)
	require.Error(t, err)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "data_labels", verr.Field)
}

func TestCompileResolvesLocationRepresentations(t *testing.T) {
	in := baseInput([]madsci.StepDefinition{
		{
			Name: "read_plate", NodeName: "ot2", ActionName: "read",
			Locations: map[string]string{"plate": "bench1"},
		},
	})

	wf, err := compiler.Compile(in)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 1)
	locArg, ok := wf.Steps[0].Locations["plate"]
	require.True(t, ok)
	assert.Equal(t, "deck1", locArg.Location)
	assert.Equal(t, "bench1", locArg.LocationName)
}

func TestCompileFailsOnMissingLocationRepresentation(t *testing.T) {
	locations := benchLocations()
	locations["loc-bench3"] = &madsci.Location{LocationID: "loc-bench3", Name: "bench3", References: map[string]any{}}

	in := baseInput([]madsci.StepDefinition{
		{Name: "read_plate", NodeName: "ot2", ActionName: "read", Locations: map[string]string{"plate": "bench3"}},
	})
	in.Locations = locations

	_, err := compiler.Compile(in)
	require.Error(t, err)
	var noRep *errors.NoRepresentationError
	require.ErrorAs(t, err, &noRep)
	assert.Equal(t, "ot2", noRep.NodeName)
}

func TestCompileParameterBindingUsesDefaultAndRejectsUnknownInput(t *testing.T) {
	def := &madsci.WorkflowDefinition{
		Name:       "demo",
		Parameters: []madsci.ParameterDefinition{{Name: "volume", Default: 100.0}},
		Steps:      []madsci.StepDefinition{{Name: "s1", NodeName: "ot2", ActionName: "noop"}},
	}

	in := baseInput(def.Steps)
	in.Definition = def

	wf, err := compiler.Compile(in)
	require.NoError(t, err)
	assert.Equal(t, 100.0, wf.ParameterValues["volume"])

	in.InputValues = map[string]any{"bogus": 1}
	_, err = compiler.Compile(in)
	require.Error(t, err)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "input_values.bogus", verr.Field)
}

func TestCompileParameterBindingErrorsWithoutInputOrDefault(t *testing.T) {
	def := &madsci.WorkflowDefinition{
		Name:       "demo",
		Parameters: []madsci.ParameterDefinition{{Name: "volume"}},
		Steps:      []madsci.StepDefinition{{Name: "s1", NodeName: "ot2", ActionName: "noop"}},
	}
	in := baseInput(def.Steps)
	in.Definition = def

	_, err := compiler.Compile(in)
	require.Error(t, err)
}

func TestCompileExpandsDirectTransferAndMergesLocationArgs(t *testing.T) {
	locations := benchLocations()
	in := baseInput([]madsci.StepDefinition{
		{
			Name: "move", NodeName: "ot2", ActionName: compiler.TransferActionName,
			Locations: map[string]string{"source": "bench1", "target": "bench2"},
			Args:      map[string]any{"priority": "high"},
		},
	})
	in.Locations = locations
	in.Transfers = []madsci.TransferTemplate{
		{NodeName: "ot2", ActionName: "transfer_plate", SourceArgName: "from", TargetArgName: "to"},
	}

	wf, err := compiler.Compile(in)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 1)

	args := wf.Steps[0].Args
	assert.Equal(t, "bench1", args["from"])
	assert.Equal(t, "bench2", args["to"])
	assert.Equal(t, "fast", args["speed"], "bench2's per-node override for ot2 outranks bench1's default_args")
	assert.Equal(t, "high", args["priority"], "user args take highest precedence")
	assert.Equal(t, "transfer_plate", wf.Steps[0].ActionName)
}

func TestCompileExpandsMultiHopTransferWhenNoDirectTemplateMatches(t *testing.T) {
	locations := map[string]*madsci.Location{
		"loc-a": {LocationID: "loc-a", Name: "a", References: map[string]any{"arm": "slotA"}},
		"loc-b": {LocationID: "loc-b", Name: "b", References: map[string]any{"arm": "slotB", "cart": "dockB"}},
		"loc-c": {LocationID: "loc-c", Name: "c", References: map[string]any{"cart": "dockC"}},
	}
	in := baseInput([]madsci.StepDefinition{
		{
			Name: "move", ActionName: compiler.TransferActionName,
			Locations: map[string]string{"source": "a", "target": "c"},
		},
	})
	in.Locations = locations
	in.Transfers = []madsci.TransferTemplate{
		{NodeName: "arm", ActionName: "arm_move", SourceArgName: "from", TargetArgName: "to"},
		{NodeName: "cart", ActionName: "cart_move", SourceArgName: "from", TargetArgName: "to"},
	}
	in.Nodes = map[string]madsci.NodeLink{
		"arm":  {NodeURL: "http://arm.local"},
		"cart": {NodeURL: "http://cart.local"},
	}

	wf, err := compiler.Compile(in)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, "arm_move", wf.Steps[0].ActionName)
	assert.Equal(t, "cart_move", wf.Steps[1].ActionName)
}

func TestCompileFailsWithNoTransferPathError(t *testing.T) {
	locations := map[string]*madsci.Location{
		"loc-a": {LocationID: "loc-a", Name: "a", References: map[string]any{"arm": "slotA"}},
		"loc-b": {LocationID: "loc-b", Name: "b", References: map[string]any{"cart": "dockB"}},
	}
	in := baseInput([]madsci.StepDefinition{
		{Name: "move", ActionName: compiler.TransferActionName, Locations: map[string]string{"source": "a", "target": "b"}},
	})
	in.Locations = locations
	in.Transfers = nil

	_, err := compiler.Compile(in)
	require.Error(t, err)
	var noPath *errors.NoTransferPathError
	require.ErrorAs(t, err, &noPath)
}

func TestCompileValidatesRequiredArgsAgainstReportedNodeInfo(t *testing.T) {
	in := baseInput([]madsci.StepDefinition{
		{Name: "s1", NodeName: "ot2", ActionName: "aspirate"},
	})
	in.RuntimeNodes = map[string]*madsci.Node{
		"ot2": {
			Info: &madsci.NodeInfo{
				NodeName: "ot2",
				Actions: map[string]madsci.ActionSchema{
					"aspirate": {Name: "aspirate", RequiredArgs: []string{"volume"}},
				},
			},
		},
	}

	_, err := compiler.Compile(in)
	require.Error(t, err)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "args.volume", verr.Field)

	in.Definition.Steps[0].Args = map[string]any{"volume": 50.0}
	_, err = compiler.Compile(in)
	require.NoError(t, err)
}
