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

package store

import (
	"context"

	"github.com/madsci/workcell/pkg/madsci"
)

// ResourceCreator is the narrow capability InitializeWorkcell needs from
// internal/collab.ResourceManagerClient — satisfied by a nil client too.
type ResourceCreator interface {
	AddResource(ctx context.Context, definition map[string]any) (string, error)
}

// InitializeWorkcell performs the atomic startup sequence spec.md §4.A
// describes: clear nodes, recreate them from the definition, merge
// locations, optionally create external resources for locations that
// embed a resource definition, then mark the workcell no longer
// initializing and bump the change counter. Callers must hold the state
// lock around this call.
func InitializeWorkcell(ctx context.Context, s Store, def *madsci.WorkcellDefinition, resources ResourceCreator) error {
	if err := s.SetWorkcellDefinition(ctx, def); err != nil {
		return err
	}

	existing, err := s.ListNodes(ctx)
	if err != nil {
		return err
	}
	for name := range existing {
		if err := s.DeleteNode(ctx, name); err != nil {
			return err
		}
	}
	for name, link := range def.Nodes {
		if err := s.SetNode(ctx, name, &madsci.Node{NodeURL: link.NodeURL}); err != nil {
			return err
		}
	}

	for _, locDef := range def.Locations {
		loc, err := s.GetLocation(ctx, locDef.LocationID)
		if err != nil {
			loc = &madsci.Location{
				LocationID:    locDef.LocationID,
				Name:          locDef.Name,
				References:    locDef.References,
				DefaultArgs:   locDef.DefaultArgs,
				NodeOverrides: locDef.NodeOverrides,
			}
		} else {
			loc.Name = locDef.Name
			loc.DefaultArgs = locDef.DefaultArgs
			loc.NodeOverrides = locDef.NodeOverrides
			if locDef.References != nil {
				if loc.References == nil {
					loc.References = map[string]any{}
				}
				for k, v := range locDef.References {
					loc.References[k] = v
				}
			}
		}

		if locDef.ResourceDefinition != nil && loc.ResourceID == "" && resources != nil {
			resourceID, err := resources.AddResource(ctx, locDef.ResourceDefinition)
			if err != nil {
				return err
			}
			loc.ResourceID = resourceID
		}

		if err := s.SetLocation(ctx, loc); err != nil {
			return err
		}
	}

	if err := s.UpdateWorkcellStatus(ctx, func(status *madsci.WorkcellStatus) {
		status.Initializing = false
	}); err != nil {
		return err
	}
	_, err = s.IncrementChangeCounter(ctx)
	return err
}
