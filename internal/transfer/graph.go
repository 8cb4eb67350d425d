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

// Package transfer builds the cost-weighted transfer digraph from the
// current set of Locations and TransferTemplates, and answers
// shortest-path queries over it with Dijkstra's algorithm.
package transfer

import (
	"container/heap"
	"errors"

	"github.com/madsci/workcell/pkg/madsci"
)

// ErrNoPath is returned when no sequence of transfers connects source to
// destination.
var ErrNoPath = errors.New("no transfer path")

// Graph is the rebuildable transfer digraph for one workcell.
type Graph struct {
	// edges maps a source location id to every outbound edge from it.
	edges map[string][]madsci.TransferEdge
}

// Build constructs the graph from the current locations and templates.
// Construction rule (per the engine's topology spec): for every pair of
// distinct locations (s, d) and every template t, emit an edge s -> d with
// cost t.Weight() iff t.NodeName is a key in both s.References and
// d.References. Multiple templates emitting the same (s, d) are all kept;
// pathfinding picks the cheapest per hop.
func Build(locations map[string]*madsci.Location, templates []madsci.TransferTemplate) *Graph {
	g := &Graph{edges: make(map[string][]madsci.TransferEdge)}

	for sourceID, source := range locations {
		for destID, dest := range locations {
			if sourceID == destID {
				continue
			}
			for _, tpl := range templates {
				if _, ok := source.References[tpl.NodeName]; !ok {
					continue
				}
				if _, ok := dest.References[tpl.NodeName]; !ok {
					continue
				}
				g.edges[sourceID] = append(g.edges[sourceID], madsci.TransferEdge{
					SourceLocationID: sourceID,
					TargetLocationID: destID,
					Template:         tpl,
					Cost:             tpl.Weight(),
				})
			}
		}
	}
	return g
}

// CanTransferDirect reports whether a single template lets node directly
// move between source and destination, the compiler's fast path for a step
// whose node_name is already fixed.
func CanTransferDirect(locations map[string]*madsci.Location, templates []madsci.TransferTemplate, nodeName, sourceID, destID string) (madsci.TransferTemplate, bool) {
	source, sOK := locations[sourceID]
	dest, dOK := locations[destID]
	if !sOK || !dOK {
		return madsci.TransferTemplate{}, false
	}
	if _, ok := source.References[nodeName]; !ok {
		return madsci.TransferTemplate{}, false
	}
	if _, ok := dest.References[nodeName]; !ok {
		return madsci.TransferTemplate{}, false
	}
	for _, tpl := range templates {
		if tpl.NodeName == nodeName {
			return tpl, true
		}
	}
	return madsci.TransferTemplate{}, false
}

// pathState is one entry in the priority queue: the cumulative cost, hop
// count, and path reaching a given location, used both to order the heap
// and to break ties deterministically once a location is settled.
type pathState struct {
	locationID string
	cost       float64
	hops       int
	path       []madsci.TransferEdge
}

// frontier is a container/heap priority queue ordered by the tie-break
// rule: lower cost first; for equal cost, fewer hops; for equal cost and
// hops, the lexicographically smaller last-edge template node name. This
// is the idiomatic stdlib approach to Dijkstra absent a graph library
// anywhere in the dependency surface this engine draws from.
type frontier []pathState

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	if f[i].hops != f[j].hops {
		return f[i].hops < f[j].hops
	}
	return lastNodeName(f[i].path) < lastNodeName(f[j].path)
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(pathState)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

func lastNodeName(path []madsci.TransferEdge) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1].Template.NodeName
}

// ShortestPath runs Dijkstra from sourceID to destID and returns the
// ordered sequence of edges forming the cheapest path. Returns an empty,
// non-nil slice iff sourceID == destID. Returns ErrNoPath if no path
// exists.
func (g *Graph) ShortestPath(sourceID, destID string) ([]madsci.TransferEdge, error) {
	if sourceID == destID {
		return []madsci.TransferEdge{}, nil
	}

	best := map[string]pathState{
		sourceID: {locationID: sourceID, cost: 0, hops: 0, path: nil},
	}

	pq := &frontier{best[sourceID]}
	heap.Init(pq)

	visited := make(map[string]bool)

	for pq.Len() > 0 {
		current := heap.Pop(pq).(pathState)
		if visited[current.locationID] {
			continue
		}
		visited[current.locationID] = true

		if current.locationID == destID {
			return current.path, nil
		}

		for _, edge := range g.edges[current.locationID] {
			if visited[edge.TargetLocationID] {
				continue
			}
			candidate := pathState{
				locationID: edge.TargetLocationID,
				cost:       current.cost + edge.Cost,
				hops:       current.hops + 1,
				path:       append(append([]madsci.TransferEdge{}, current.path...), edge),
			}
			existing, ok := best[edge.TargetLocationID]
			if ok && !isBetter(candidate, existing) {
				continue
			}
			best[edge.TargetLocationID] = candidate
			heap.Push(pq, candidate)
		}
	}

	return nil, ErrNoPath
}

// isBetter reports whether candidate wins over existing under the
// tie-break rule: lower cost; then fewer hops; then lexicographically
// smaller last template node name.
func isBetter(candidate, existing pathState) bool {
	if candidate.cost != existing.cost {
		return candidate.cost < existing.cost
	}
	if candidate.hops != existing.hops {
		return candidate.hops < existing.hops
	}
	return lastNodeName(candidate.path) < lastNodeName(existing.path)
}

// ExpandPath converts a path of edges into the StepDefinition sequence the
// Workflow Compiler consumes: step i targets path[i].Template.NodeName
// with the template's action, binding source_arg_name and target_arg_name
// to the hop's location names. Args hold only those two bindings;
// parameter merge happens in the compiler.
func ExpandPath(path []madsci.TransferEdge, locationNames map[string]string) []madsci.StepDefinition {
	steps := make([]madsci.StepDefinition, 0, len(path))
	for i, edge := range path {
		args := map[string]any{}
		if edge.Template.SourceArgName != "" {
			args[edge.Template.SourceArgName] = locationNames[edge.SourceLocationID]
		}
		if edge.Template.TargetArgName != "" {
			args[edge.Template.TargetArgName] = locationNames[edge.TargetLocationID]
		}
		steps = append(steps, madsci.StepDefinition{
			Name:       transferStepName(i, edge),
			NodeName:   edge.Template.NodeName,
			ActionName: edge.Template.ActionName,
			Args:       args,
		})
	}
	return steps
}

func transferStepName(index int, edge madsci.TransferEdge) string {
	return edge.Template.NodeName + "-transfer-" + itoa(index)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
