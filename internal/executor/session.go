package executor

import (
	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

// RecoverSession is the manual counterpart to the Poller's automatic
// session-file detection (spec §4.6.1 step 7): an operator who knows which
// session log belongs to a stuck node's execution can point the execution
// at it directly. It refuses to adopt a session already claimed by a
// different execution (spec §5, §7 Conflict).
func (e *Executor) RecoverSession(blueprintID, nodeID, sessionID string) error {
	node, err := e.Store.GetNode(nodeID)
	if err != nil {
		return err
	}

	executions, err := e.Store.ListExecutionsForNode(nodeID)
	if err != nil {
		return err
	}
	var target *types.NodeExecution
	for _, ex := range executions {
		if ex.Status == types.ExecRunning {
			target = ex
			break
		}
	}
	if target == nil {
		return store.ErrNotFound
	}

	if owner, err := e.Store.GetExecutionBySessionID(sessionID); err == nil && owner.ID != target.ID {
		return ErrConflict
	}

	if err := e.Store.UpdateExecution(target.ID, store.ExecutionPatch{SessionID: &sessionID}); err != nil {
		return err
	}

	logf("EXECUTOR", "manually recovered session %s for node %s (execution %s)", sessionID, node.ID, target.ID)
	return nil
}
