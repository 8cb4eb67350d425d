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

import "github.com/madsci/workcell/pkg/madsci"

// mergeArgs layers step args in the precedence order spec.md §4.D.4
// requires: template defaults, then source-location default args, then
// destination-location default args, then source-location per-node
// overrides, then destination-location per-node overrides, then the
// user-supplied step args. Each later layer overwrites keys the earlier
// ones set; layers never remove keys they don't mention.
func mergeArgs(templateDefaults map[string]any, source, dest *madsci.Location, nodeName string, userArgs map[string]any) map[string]any {
	merged := map[string]any{}

	layer(merged, templateDefaults)
	if source != nil {
		layer(merged, source.DefaultArgs)
	}
	if dest != nil {
		layer(merged, dest.DefaultArgs)
	}
	if source != nil {
		layer(merged, source.NodeOverrides[nodeName])
	}
	if dest != nil {
		layer(merged, dest.NodeOverrides[nodeName])
	}
	layer(merged, userArgs)

	return merged
}

func layer(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
