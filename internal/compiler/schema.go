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

package compiler

import (
	"fmt"

	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

// validateStep checks a step against the workcell topology: the node must
// exist in the definition, and — if the node has reported its info — the
// action must be one it advertises, with every required arg/file present.
func validateStep(step madsci.StepDefinition, boundArgs map[string]any, nodes map[string]madsci.NodeLink, runtimeNodes map[string]*madsci.Node) error {
	if step.NodeName == "" {
		return &errors.ValidationError{
			Field:      "node_name",
			Message:    fmt.Sprintf("step %q does not specify a node", step.Name),
			Suggestion: "set node_name to a node declared in the workcell definition",
		}
	}

	if _, ok := nodes[step.NodeName]; !ok {
		return &errors.ValidationError{
			Field:      "node_name",
			Message:    fmt.Sprintf("step %q references unknown node %q", step.Name, step.NodeName),
			Suggestion: "check the workcell definition's node list",
		}
	}

	runtimeNode, hasRuntime := runtimeNodes[step.NodeName]
	if !hasRuntime || runtimeNode.Info == nil {
		// The node hasn't reported its action catalog yet; schema
		// validation is deferred to dispatch time.
		return nil
	}

	action, ok := runtimeNode.Info.Actions[step.ActionName]
	if !ok {
		return &errors.ValidationError{
			Field:      "action_name",
			Message:    fmt.Sprintf("node %q does not advertise action %q", step.NodeName, step.ActionName),
			Suggestion: "check the node's reported info.actions",
		}
	}

	for _, required := range action.RequiredArgs {
		if _, ok := boundArgs[required]; !ok {
			return &errors.ValidationError{
				Field:      "args." + required,
				Message:    fmt.Sprintf("step %q is missing required arg %q for action %q", step.Name, required, step.ActionName),
				Suggestion: "supply the arg via step args",
			}
		}
	}

	for _, required := range action.RequiredFiles {
		if _, ok := step.Files[required]; !ok {
			return &errors.ValidationError{
				Field:      "files." + required,
				Message:    fmt.Sprintf("step %q is missing required file %q for action %q", step.Name, required, step.ActionName),
				Suggestion: "supply the file via input_file_paths",
			}
		}
	}

	if err := validateArgTypes(step, boundArgs, action); err != nil {
		return err
	}

	return nil
}

// validateArgTypes checks bound arg values against the action's declared
// arg_types where present. Recognized type names: string, int, float,
// bool, object, array — matching the JSON-native kinds a node can declare
// without importing a full JSON Schema validator for this narrow check.
func validateArgTypes(step madsci.StepDefinition, boundArgs map[string]any, action madsci.ActionSchema) error {
	for name, wantType := range action.ArgTypes {
		value, ok := boundArgs[name]
		if !ok {
			continue
		}
		if !argMatchesType(value, wantType) {
			return &errors.ValidationError{
				Field:      "args." + name,
				Message:    fmt.Sprintf("step %q arg %q does not match declared type %q", step.Name, name, wantType),
				Suggestion: "check the action's declared arg_types",
			}
		}
	}
	return nil
}

func argMatchesType(value any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "int":
		switch value.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case "float", "number":
		switch value.(type) {
		case float32, float64, int, int64:
			return true
		}
		return false
	case "bool", "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

// resolveLocations replaces every locations[label] name with the target
// node's per-node representation, per spec.md §4.D.3.
func resolveLocations(step madsci.StepDefinition, locations map[string]*madsci.Location) (map[string]madsci.LocationArgument, error) {
	if len(step.Locations) == 0 {
		return nil, nil
	}

	resolved := make(map[string]madsci.LocationArgument, len(step.Locations))
	for label, locationName := range step.Locations {
		loc, err := findLocationByName(locations, locationName)
		if err != nil {
			return nil, err
		}
		representation, ok := loc.References[step.NodeName]
		if !ok {
			return nil, &errors.NoRepresentationError{LocationID: loc.LocationID, NodeName: step.NodeName}
		}
		resolved[label] = madsci.LocationArgument{
			Location:     representation,
			ResourceID:   loc.ResourceID,
			LocationName: loc.Name,
		}
	}
	return resolved, nil
}

func findLocationByName(locations map[string]*madsci.Location, name string) (*madsci.Location, error) {
	for _, loc := range locations {
		if loc.Name == name {
			return loc, nil
		}
	}
	return nil, &errors.ValidationError{
		Field:      "locations",
		Message:    fmt.Sprintf("no location named %q", name),
		Suggestion: "check the workcell's location definitions",
	}
}

func findLocationIDByName(locations map[string]*madsci.Location, name string) (string, bool) {
	for _, loc := range locations {
		if loc.Name == name {
			return loc.LocationID, true
		}
	}
	return "", false
}
