package executor

import "github.com/macroforge/macroforge/internal/types"

// ResolveDependencies filters a node's dependency id list down to ids that
// still exist among blueprintNodes. DeleteNode is local (spec §3 Macro
// Node lifecycle) so a dependent can carry a dangling id after its
// dependency is deleted directly; this is where that gets filtered out
// rather than at delete time.
func ResolveDependencies(node *types.MacroNode, blueprintNodes []*types.MacroNode) []*types.MacroNode {
	byID := make(map[string]*types.MacroNode, len(blueprintNodes))
	for _, n := range blueprintNodes {
		byID[n.ID] = n
	}
	live := make([]*types.MacroNode, 0, len(node.Dependencies))
	for _, id := range node.Dependencies {
		if dep, ok := byID[id]; ok {
			live = append(live, dep)
		}
	}
	return live
}

// dependenciesSatisfied reports whether every live dependency of node is
// done or skipped (spec §3 invariant ii, §4.6.1 step 2).
func dependenciesSatisfied(node *types.MacroNode, blueprintNodes []*types.MacroNode) bool {
	for _, dep := range ResolveDependencies(node, blueprintNodes) {
		if dep.Status != types.NodeDone && dep.Status != types.NodeSkipped {
			return false
		}
	}
	return true
}

// dependenciesTerminallyFailed reports whether any live dependency of node
// is in a terminal-failure state (failed or blocked), which forbids
// enqueuing the node at all (spec §4.6.1 precondition).
func dependenciesTerminallyFailed(node *types.MacroNode, blueprintNodes []*types.MacroNode) bool {
	for _, dep := range ResolveDependencies(node, blueprintNodes) {
		if dep.Status == types.NodeFailed || dep.Status == types.NodeBlocked {
			return true
		}
	}
	return false
}

// dependentsOf returns every node in blueprintNodes whose (live) dependency
// list includes nodeID, in blueprint order.
func dependentsOf(nodeID string, blueprintNodes []*types.MacroNode) []*types.MacroNode {
	var out []*types.MacroNode
	for _, n := range blueprintNodes {
		for _, d := range n.Dependencies {
			if d == nodeID {
				out = append(out, n)
				break
			}
		}
	}
	return out
}
