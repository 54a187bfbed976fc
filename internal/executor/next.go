package executor

import (
	"context"

	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

// Next implements spec §4.6.7: the first node (in order ascending) whose
// status is pending/queued and whose live dependencies are all done/skipped.
// If none qualifies but every node is done/skipped, the blueprint is marked
// done. Otherwise nil is returned with no side effect.
func (e *Executor) Next(blueprintID string) (*types.MacroNode, error) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		return nil, err
	}

	allSettled := true
	for _, n := range bp.Nodes {
		if n.Status != types.NodeDone && n.Status != types.NodeSkipped {
			allSettled = false
		}
		if (n.Status == types.NodePending || n.Status == types.NodeQueued) && dependenciesSatisfied(n, bp.Nodes) {
			return n, nil
		}
	}

	if allSettled && len(bp.Nodes) > 0 {
		done := types.BlueprintDone
		if err := e.Store.UpdateBlueprint(blueprintID, store.BlueprintPatch{Status: &done}, e.nowFn()); err != nil {
			return nil, err
		}
		e.publishBlueprintStatus(blueprintID, types.BlueprintDone)
	}
	return nil, nil
}

// RunAll implements spec §4.6.7: every node whose deps are already in
// {done, skipped, pending, queued} is pre-marked queued so the UI reflects
// the intended plan immediately, then Next is driven in a loop until it
// returns nil (blueprint finished) or a run fails. On failure the
// not-yet-started pre-queued nodes revert to pending and the blueprint is
// marked failed.
func (e *Executor) RunAll(blueprintID string) error {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		return err
	}

	now := e.nowFn()
	var preQueued []string
	for _, n := range bp.Nodes {
		if n.Status != types.NodePending && n.Status != types.NodeQueued {
			continue
		}
		if !eligibleForPlan(n, bp.Nodes) {
			continue
		}
		if n.Status == types.NodePending {
			queued := types.NodeQueued
			if err := e.Store.UpdateNode(n.ID, store.NodePatch{Status: &queued}, now); err != nil {
				return err
			}
			preQueued = append(preQueued, n.ID)
		}
	}

	for {
		node, err := e.Next(blueprintID)
		if err != nil {
			e.revertPreQueued(blueprintID, preQueued)
			return err
		}
		if node == nil {
			return nil
		}

		future, err := e.Run(blueprintID, node.ID)
		if err != nil {
			e.revertPreQueued(blueprintID, preQueued)
			e.markFailed(blueprintID)
			return err
		}
		if _, err := future.Await(context.Background()); err != nil {
			e.revertPreQueued(blueprintID, preQueued)
			e.markFailed(blueprintID)
			return err
		}

		fresh, err := e.Store.GetNode(node.ID)
		if err != nil {
			e.revertPreQueued(blueprintID, preQueued)
			e.markFailed(blueprintID)
			return err
		}
		if fresh.Status == types.NodeFailed {
			e.revertPreQueued(blueprintID, preQueued)
			e.markFailed(blueprintID)
			return nil
		}
	}
}

// eligibleForPlan reports whether node belongs in a runAll plan: its
// dependencies are every one either already settled or themselves part of
// the plan (pending/queued), i.e. not failed/blocked.
func eligibleForPlan(node *types.MacroNode, blueprintNodes []*types.MacroNode) bool {
	for _, dep := range ResolveDependencies(node, blueprintNodes) {
		switch dep.Status {
		case types.NodeDone, types.NodeSkipped, types.NodePending, types.NodeQueued:
		default:
			return false
		}
	}
	return true
}

// Unqueue cancels a queued-but-not-started node's task and reverts it to
// pending (spec §5 "a queued-but-not-started task may be removed"). It
// refuses to touch a node that is already running (spec §7 Conflict
// "attempt to unqueue a running node").
func (e *Executor) Unqueue(blueprintID, nodeID string) error {
	node, err := e.Store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node.Status == types.NodeRunning {
		return ErrConflict
	}
	if node.Status != types.NodeQueued {
		return nil
	}
	e.Queue.Remove(blueprintID, nodeID)

	pending := types.NodePending
	if err := e.Store.UpdateNode(nodeID, store.NodePatch{Status: &pending}, e.nowFn()); err != nil {
		return err
	}
	e.publishNodeStatus(blueprintID, nodeID, types.NodePending)
	return nil
}

func (e *Executor) revertPreQueued(blueprintID string, nodeIDs []string) {
	now := e.nowFn()
	for _, id := range nodeIDs {
		node, err := e.Store.GetNode(id)
		if err != nil || node.Status != types.NodeQueued {
			continue
		}
		pending := types.NodePending
		_ = e.Store.UpdateNode(id, store.NodePatch{Status: &pending}, now)
		e.publishNodeStatus(blueprintID, id, types.NodePending)
	}
}

func (e *Executor) markFailed(blueprintID string) {
	failed := types.BlueprintFailed
	if err := e.Store.UpdateBlueprint(blueprintID, store.BlueprintPatch{Status: &failed}, e.nowFn()); err != nil {
		logf("EXECUTOR", "runAll: failed to mark blueprint %s failed: %v", blueprintID, err)
		return
	}
	e.publishBlueprintStatus(blueprintID, types.BlueprintFailed)
}
