package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/dpgraph/internal/protocol"
)

// CycleError reports computation graph components that reference
// themselves, directly or transitively.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = fmt.Sprint(id)
	}
	return "computation graph has a cycle: " + strings.Join(parts, " -> ")
}

// checkDAG verifies that every argument names a component in the graph and
// that no component reaches itself. Nodes are built from existing nodes, so
// a failure here means the graph was corrupted after construction.
func checkDAG(graph map[NodeID]protocol.Component) error {
	ids := slices.Sorted(maps.Keys(graph))
	edges := make(map[NodeID][]NodeID, len(graph))
	for _, id := range ids {
		comp := graph[id]
		for _, name := range slices.Sorted(maps.Keys(comp.Arguments)) {
			arg := comp.Arguments[name]
			if _, ok := graph[arg]; !ok {
				return fmt.Errorf("component %d argument %q references missing component %d", id, name, arg)
			}
			edges[id] = append(edges[id], arg)
		}
	}

	for _, scc := range tarjanSCC(ids, edges) {
		if len(scc) > 1 || slices.Contains(edges[scc[0]], scc[0]) {
			slices.Sort(scc)
			return &CycleError{Path: append(scc, scc[0])}
		}
	}
	return nil
}

// tarjanSCC returns the strongly connected components of the graph.
func tarjanSCC(ids []NodeID, edges map[NodeID][]NodeID) [][]NodeID {
	var (
		index   = 0
		stack   []NodeID
		indices = make(map[NodeID]int)
		lowlink = make(map[NodeID]int)
		onStack = make(map[NodeID]bool)
		sccs    [][]NodeID
	)

	var strongConnect func(NodeID)
	strongConnect = func(v NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, id := range ids {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return sccs
}
