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

package scheduler

import (
	"github.com/madsci/workcell/pkg/expression"
	"github.com/madsci/workcell/pkg/madsci"
)

// conditionEvaluator caches compiled step-condition expressions across
// ticks; expr programs are safe for concurrent Run calls once compiled.
var conditionEvaluator = expression.New()

// evaluateCondition runs one step condition expression against a context
// exposing the workflow's parameter values and prior steps' published
// data, per spec.md §4.E.2. Conditions that need external resource/location
// queries are out of scope here; the scheduler only evaluates over data it
// already has cached from the last poll.
func evaluateCondition(expr string, wf *madsci.Workflow) (bool, error) {
	ctx := map[string]any{
		"parameters": wf.ParameterValues,
		"steps":      stepContext(wf),
	}
	return conditionEvaluator.Evaluate(expr, ctx)
}

// stepContext exposes each prior step's terminal result, keyed by name, so
// a condition can reference e.g. `steps.dispense.data.volume > 0`.
func stepContext(wf *madsci.Workflow) map[string]any {
	out := make(map[string]any, len(wf.Steps))
	for _, step := range wf.Steps {
		result := step.Result()
		entry := map[string]any{"status": string(step.Status)}
		if result != nil {
			entry["data"] = result.Data
		}
		out[step.Name] = entry
	}
	return out
}
