package graph

import (
	"context"
	"slices"
)

// Prune removes nodes that can never contribute to a future release: a
// releasable node with no known value, or a non-releasable node. Only
// nodes without live dependents are candidates, so removal sweeps from the
// sinks towards the sources, visiting each node at most once. Nodes the
// engine reports no properties for count as non-releasable.
//
// Removed nodes are detached: they keep their ids, which are never reused,
// and using them as arguments fails with DETACHED_COMPONENT. Prune returns
// the number of nodes removed.
func (a *Analysis) Prune(ctx context.Context) (int, error) {
	props, err := a.Properties(ctx)
	if err != nil {
		return 0, err
	}

	dependents := make(map[NodeID]int, len(a.order))
	for _, id := range a.order {
		for _, arg := range a.nodes[id].args {
			dependents[arg.id]++
		}
	}

	var work []NodeID
	for _, id := range a.order {
		if dependents[id] == 0 {
			work = append(work, id)
		}
	}

	visited := make(map[NodeID]bool, len(a.order))
	removed := make(map[NodeID]bool)
	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		n := a.nodes[id]
		p, ok := props[id]
		_, known := a.releases[id]
		if ok && p.Releasable && known {
			continue
		}

		removed[id] = true
		n.detached = true
		delete(a.nodes, id)
		delete(a.releases, id)
		for _, arg := range n.args {
			dependents[arg.id]--
			if dependents[arg.id] == 0 {
				work = append(work, arg.id)
			}
		}
	}

	if len(removed) == 0 {
		return 0, nil
	}
	a.order = slices.DeleteFunc(a.order, func(id NodeID) bool { return removed[id] })
	a.props = nil
	a.logger.Info("graph pruned", "removed", len(removed), "remaining", len(a.order))
	return len(removed), nil
}
