package executor

import (
	"testing"

	"github.com/macroforge/macroforge/internal/types"
)

func node(id string, status types.NodeStatus, deps ...string) *types.MacroNode {
	return &types.MacroNode{ID: id, Status: status, Dependencies: deps}
}

func TestResolveDependenciesFiltersDanglingIDs(t *testing.T) {
	all := []*types.MacroNode{node("a", types.NodeDone)}
	n := node("b", types.NodePending, "a", "deleted-id")

	live := ResolveDependencies(n, all)
	if len(live) != 1 || live[0].ID != "a" {
		t.Errorf("expected only 'a' to resolve, got %+v", live)
	}
}

func TestDependenciesSatisfiedRequiresDoneOrSkipped(t *testing.T) {
	all := []*types.MacroNode{node("a", types.NodeDone), node("b", types.NodeSkipped), node("c", types.NodeRunning)}

	if !dependenciesSatisfied(node("x", types.NodePending, "a", "b"), all) {
		t.Error("expected done+skipped deps to satisfy")
	}
	if dependenciesSatisfied(node("x", types.NodePending, "a", "c"), all) {
		t.Error("expected a running dep to not satisfy")
	}
}

func TestDependenciesSatisfiedIgnoresDanglingDeps(t *testing.T) {
	all := []*types.MacroNode{node("a", types.NodeDone)}
	if !dependenciesSatisfied(node("x", types.NodePending, "a", "gone"), all) {
		t.Error("expected a dangling dependency id to be treated as already resolved")
	}
}

func TestDependenciesTerminallyFailedDetectsFailedAndBlocked(t *testing.T) {
	all := []*types.MacroNode{node("a", types.NodeFailed)}
	if !dependenciesTerminallyFailed(node("x", types.NodePending, "a"), all) {
		t.Error("expected failed dependency to be terminal")
	}

	all = []*types.MacroNode{node("a", types.NodeBlocked)}
	if !dependenciesTerminallyFailed(node("x", types.NodePending, "a"), all) {
		t.Error("expected blocked dependency to be terminal")
	}

	all = []*types.MacroNode{node("a", types.NodeRunning)}
	if dependenciesTerminallyFailed(node("x", types.NodePending, "a"), all) {
		t.Error("expected running dependency to not be terminal")
	}
}

func TestDependentsOfReturnsInBlueprintOrder(t *testing.T) {
	all := []*types.MacroNode{
		node("a", types.NodeDone),
		node("b", types.NodePending, "a"),
		node("c", types.NodePending),
		node("d", types.NodePending, "a"),
	}
	deps := dependentsOf("a", all)
	if len(deps) != 2 || deps[0].ID != "b" || deps[1].ID != "d" {
		t.Errorf("expected [b, d] in order, got %+v", deps)
	}
}
