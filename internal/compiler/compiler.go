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

// Package compiler turns a WorkflowDefinition plus caller inputs into a
// validated, ready-to-queue Workflow: parameter binding, transfer-step
// expansion against the transfer graph, node/action/location validation,
// per-step parameter merge, and instantiation.
package compiler

import (
	"fmt"
	"time"

	"github.com/madsci/workcell/internal/transfer"
	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

// TransferActionName is the well-known action name that marks a step for
// transfer-graph expansion.
const TransferActionName = "transfer"

const (
	sourceLocationLabel = "source"
	targetLocationLabel = "target"
)

// Input bundles everything the compiler needs from the current workcell
// snapshot; the caller (Ingress API handler) assembles it from the state
// store under a read of the current definition and runtime state.
type Input struct {
	Definition     *madsci.WorkflowDefinition
	InputValues    map[string]any
	InputFilePaths map[string]string
	Nodes          map[string]madsci.NodeLink
	RuntimeNodes   map[string]*madsci.Node
	Locations      map[string]*madsci.Location
	Transfers      []madsci.TransferTemplate
}

// Compile runs the five-stage pipeline and returns a Workflow ready for the
// Scheduler's queue, or a typed compilation error.
func Compile(in Input) (*madsci.Workflow, error) {
	paramValues, err := bindParameters(in.Definition.Parameters, in.InputValues)
	if err != nil {
		return nil, err
	}

	expanded, err := expandTransfers(in.Definition.Steps, in.Locations, in.Transfers)
	if err != nil {
		return nil, err
	}

	steps := make([]madsci.Step, 0, len(expanded))
	defs := make([]madsci.StepDefinition, 0, len(expanded))
	seenLabels := make(map[string]bool)

	for _, es := range expanded {
		stepDef := es.Def
		defs = append(defs, stepDef)

		if err := validateStep(stepDef, stepDef.Args, in.Nodes, in.RuntimeNodes); err != nil {
			return nil, err
		}

		for _, label := range stepDef.DataLabels {
			if seenLabels[label] {
				return nil, &errors.ValidationError{
					Field:      "data_labels",
					Message:    fmt.Sprintf("duplicate data label %q", label),
					Suggestion: "data labels must be unique across the whole workflow",
				}
			}
			seenLabels[label] = true
		}

		locationArgs, err := resolveLocations(stepDef, in.Locations)
		if err != nil {
			return nil, err
		}

		args := mergeArgs(combineMaps(stepDef.Args, es.TemplateDefaults), es.Source, es.Dest, stepDef.NodeName, es.UserArgs)

		steps = append(steps, madsci.Step{
			StepID:     madsci.NewID(),
			Name:       stepDef.Name,
			NodeName:   stepDef.NodeName,
			ActionName: stepDef.ActionName,
			Args:       args,
			Files:      resolveFiles(stepDef.Files, in.InputFilePaths),
			Locations:  locationArgs,
			Conditions: stepDef.Conditions,
			DataLabels: stepDef.DataLabels,
			Status:     madsci.ActionStatusNotStarted,
		})
	}

	now := time.Now().UTC()
	wf := &madsci.Workflow{
		WorkflowID:         madsci.NewID(),
		DefinitionSnapshot: *in.Definition,
		StepDefinitions:    defs,
		ParameterValues:    paramValues,
		Steps:              steps,
		SubmittedTime:      &now,
	}
	return wf, nil
}

// bindParameters resolves every declared parameter against inputValues,
// falling back to its default, and rejects any inputValues key the
// definition doesn't declare.
func bindParameters(params []madsci.ParameterDefinition, inputValues map[string]any) (map[string]any, error) {
	declared := make(map[string]bool, len(params))
	bound := make(map[string]any, len(params))

	for _, p := range params {
		declared[p.Name] = true
		if v, ok := inputValues[p.Name]; ok {
			bound[p.Name] = v
			continue
		}
		if p.Default != nil {
			bound[p.Name] = p.Default
			continue
		}
		return nil, &errors.ValidationError{
			Field:      "parameters." + p.Name,
			Message:    fmt.Sprintf("parameter %q has no input value and no default", p.Name),
			Suggestion: "supply it in input_values or declare a default",
		}
	}

	for name := range inputValues {
		if !declared[name] {
			return nil, &errors.ValidationError{
				Field:      "input_values." + name,
				Message:    fmt.Sprintf("input value %q does not match any declared parameter", name),
				Suggestion: "remove it or declare a matching parameter",
			}
		}
	}

	return bound, nil
}

// expandedStep carries one post-expansion step definition plus the inputs
// its §4.D.4 parameter merge needs: the template defaults and the
// source/destination Locations belonging to the specific hop it covers
// (for a non-transfer step, both are nil and UserArgs is just step.Args).
type expandedStep struct {
	Def              madsci.StepDefinition
	TemplateDefaults map[string]any
	Source           *madsci.Location
	Dest             *madsci.Location
	UserArgs         map[string]any
}

// expandTransfers walks the step list and replaces every transfer-marker
// step with its expanded sequence, leaving every other step untouched.
func expandTransfers(steps []madsci.StepDefinition, locations map[string]*madsci.Location, templates []madsci.TransferTemplate) ([]expandedStep, error) {
	out := make([]expandedStep, 0, len(steps))

	for _, step := range steps {
		if step.ActionName != TransferActionName {
			out = append(out, expandedStep{Def: step, UserArgs: step.Args})
			continue
		}

		sourceName, ok := step.Locations[sourceLocationLabel]
		if !ok {
			return nil, &errors.ValidationError{
				Field:      "locations." + sourceLocationLabel,
				Message:    fmt.Sprintf("transfer step %q has no source location", step.Name),
				Suggestion: "set locations.source to a declared location name",
			}
		}
		destName, ok := step.Locations[targetLocationLabel]
		if !ok {
			return nil, &errors.ValidationError{
				Field:      "locations." + targetLocationLabel,
				Message:    fmt.Sprintf("transfer step %q has no target location", step.Name),
				Suggestion: "set locations.target to a declared location name",
			}
		}

		sourceID, ok := findLocationIDByName(locations, sourceName)
		if !ok {
			return nil, &errors.ValidationError{Field: "locations.source", Message: fmt.Sprintf("no location named %q", sourceName)}
		}
		destID, ok := findLocationIDByName(locations, destName)
		if !ok {
			return nil, &errors.ValidationError{Field: "locations.target", Message: fmt.Sprintf("no location named %q", destName)}
		}

		if step.NodeName != "" {
			if tpl, ok := transfer.CanTransferDirect(locations, templates, step.NodeName, sourceID, destID); ok {
				bound := step
				bound.ActionName = tpl.ActionName
				bound.Args = bindTransferArgs(tpl, sourceName, destName)
				out = append(out, expandedStep{
					Def:              bound,
					TemplateDefaults: tpl.DefaultArgs,
					Source:           locations[sourceID],
					Dest:             locations[destID],
					UserArgs:         step.Args,
				})
				continue
			}
		}

		graph := transfer.Build(locations, templates)
		path, err := graph.ShortestPath(sourceID, destID)
		if err != nil {
			return nil, &errors.NoTransferPathError{SourceLocationID: sourceID, TargetLocationID: destID}
		}

		locationNames := make(map[string]string, len(locations))
		for id, loc := range locations {
			locationNames[id] = loc.Name
		}

		hops := transfer.ExpandPath(path, locationNames)
		for i, hop := range hops {
			edge := path[i]
			out = append(out, expandedStep{
				Def:              hop,
				TemplateDefaults: edge.Template.DefaultArgs,
				Source:           locations[edge.SourceLocationID],
				Dest:             locations[edge.TargetLocationID],
				UserArgs:         step.Args,
			})
		}
	}

	return out, nil
}

// bindTransferArgs binds a template's source/target arg names to the
// direct-transfer step's location names, the same binding ExpandPath does
// per hop.
func bindTransferArgs(tpl madsci.TransferTemplate, sourceName, destName string) map[string]any {
	args := map[string]any{}
	if tpl.SourceArgName != "" {
		args[tpl.SourceArgName] = sourceName
	}
	if tpl.TargetArgName != "" {
		args[tpl.TargetArgName] = destName
	}
	return args
}

// combineMaps layers b over a into a fresh map, treated together as one
// "template defaults" precedence layer below any location-level merge.
func combineMaps(a, b map[string]any) map[string]any {
	merged := map[string]any{}
	layer(merged, a)
	layer(merged, b)
	return merged
}

func resolveFiles(declared map[string]string, inputFilePaths map[string]string) map[string]string {
	if len(declared) == 0 {
		return nil
	}
	resolved := make(map[string]string, len(declared))
	for label, uriOrDefault := range declared {
		if uri, ok := inputFilePaths[label]; ok {
			resolved[label] = uri
			continue
		}
		resolved[label] = uriOrDefault
	}
	return resolved
}
