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

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/internal/store/memory"
	"github.com/madsci/workcell/pkg/madsci"
)

type stubResourceCreator struct {
	returnedID string
}

func (s *stubResourceCreator) AddResource(ctx context.Context, definition map[string]any) (string, error) {
	return s.returnedID, nil
}

func TestInitializeWorkcellCreatesNodesAndLocations(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	def := &madsci.WorkcellDefinition{
		WorkcellID: "wc1",
		Name:       "demo",
		Nodes: map[string]madsci.NodeLink{
			"ot2": {NodeURL: "http://ot2.local"},
		},
		Locations: []madsci.LocationDefinition{
			{LocationID: "loc1", Name: "bench1", References: map[string]any{"ot2": "slot1"}},
		},
	}

	require.NoError(t, store.InitializeWorkcell(ctx, b, def, nil))

	node, err := b.GetNode(ctx, "ot2")
	require.NoError(t, err)
	assert.Equal(t, "http://ot2.local", node.NodeURL)

	loc, err := b.GetLocation(ctx, "loc1")
	require.NoError(t, err)
	assert.Equal(t, "bench1", loc.Name)

	status, err := b.GetWorkcellStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Initializing)

	counter, err := b.ChangeCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter)
}

func TestInitializeWorkcellCreatesExternalResource(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	def := &madsci.WorkcellDefinition{
		WorkcellID: "wc1",
		Locations: []madsci.LocationDefinition{
			{
				LocationID:         "loc1",
				Name:               "bench1",
				ResourceDefinition: map[string]any{"base_type": "pool"},
			},
		},
	}

	require.NoError(t, store.InitializeWorkcell(ctx, b, def, &stubResourceCreator{returnedID: "res-1"}))

	loc, err := b.GetLocation(ctx, "loc1")
	require.NoError(t, err)
	assert.Equal(t, "res-1", loc.ResourceID)
}

func TestInitializeWorkcellCarriesLocationDefaultArgsAndOverrides(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	def := &madsci.WorkcellDefinition{
		WorkcellID: "wc1",
		Locations: []madsci.LocationDefinition{
			{
				LocationID:    "loc1",
				Name:          "bench1",
				References:    map[string]any{"ot2": "slot1"},
				DefaultArgs:   map[string]any{"speed": "slow"},
				NodeOverrides: map[string]map[string]any{"ot2": {"speed": "fast"}},
			},
		},
	}
	require.NoError(t, store.InitializeWorkcell(ctx, b, def, nil))

	loc, err := b.GetLocation(ctx, "loc1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"speed": "slow"}, loc.DefaultArgs)
	assert.Equal(t, "fast", loc.NodeOverrides["ot2"]["speed"])

	def.Locations[0].DefaultArgs = map[string]any{"speed": "medium"}
	def.Locations[0].NodeOverrides = map[string]map[string]any{"ot2": {"speed": "medium-fast"}}
	require.NoError(t, store.InitializeWorkcell(ctx, b, def, nil))

	loc, err = b.GetLocation(ctx, "loc1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"speed": "medium"}, loc.DefaultArgs, "re-init should refresh default args on an existing location")
	assert.Equal(t, "medium-fast", loc.NodeOverrides["ot2"]["speed"])
}

func TestInitializeWorkcellClearsStaleNodes(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	require.NoError(t, b.SetNode(ctx, "stale", &madsci.Node{NodeURL: "http://stale.local"}))

	require.NoError(t, store.InitializeWorkcell(ctx, b, &madsci.WorkcellDefinition{
		Nodes: map[string]madsci.NodeLink{"fresh": {NodeURL: "http://fresh.local"}},
	}, nil))

	_, err := b.GetNode(ctx, "stale")
	assert.Error(t, err)
	_, err = b.GetNode(ctx, "fresh")
	assert.NoError(t, err)
}
