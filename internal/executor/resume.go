package executor

import (
	"context"
	"fmt"

	"github.com/macroforge/macroforge/internal/queue"
	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

// ErrNoSession is returned by ResumeSession when none of the node's
// executions has a known sessionId to resume.
var ErrNoSession = fmt.Errorf("executor: node has no resumable session")

// ResumeSession implements spec §4.6.8: resuming a failed execution's
// agent session with a fixed continuation prompt. A new execution row of
// type continuation is created and reconciled with the same rules as a
// fresh run (§4.6.2).
func (e *Executor) ResumeSession(blueprintID, nodeID string) (*queue.Future, error) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		return nil, err
	}
	node := findNode(bp, nodeID)
	if node == nil {
		return nil, store.ErrNotFound
	}

	sessionID := latestSessionID(node)
	if sessionID == "" {
		return nil, ErrNoSession
	}

	now := e.nowFn()
	queuedStatus := types.NodeQueued
	if err := e.Store.UpdateNode(nodeID, store.NodePatch{Status: &queuedStatus}, now); err != nil {
		return nil, err
	}
	e.publishNodeStatus(blueprintID, nodeID, types.NodeQueued)

	future := e.Queue.Enqueue(blueprintID, queue.TaskRun, &nodeID, func(ctx context.Context) (interface{}, error) {
		e.resumeNodeTask(ctx, blueprintID, nodeID, sessionID)
		return nil, nil
	})
	return future, nil
}

func (e *Executor) resumeNodeTask(ctx context.Context, blueprintID, nodeID, resumeSessionID string) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		logf("EXECUTOR", "resume: failed to re-fetch blueprint %s: %v", blueprintID, err)
		return
	}
	node := findNode(bp, nodeID)
	if node == nil {
		logf("EXECUTOR", "resume: node %s vanished from blueprint %s", nodeID, blueprintID)
		return
	}

	executionID := e.idGen()
	startedAt := e.nowFn()
	execution := &types.NodeExecution{
		ID: executionID, NodeID: nodeID, BlueprintID: blueprintID,
		Type: types.ExecutionContinuation, Status: types.ExecRunning, StartedAt: startedAt,
	}
	if err := e.Store.CreateExecution(execution); err != nil {
		logf("EXECUTOR", "resume: failed to create execution for node %s: %v", nodeID, err)
		return
	}

	running := types.NodeRunning
	_ = e.Store.UpdateNode(nodeID, store.NodePatch{Status: &running}, startedAt)
	e.publishNodeStatus(blueprintID, nodeID, types.NodeRunning)

	prompt := e.continuationPrompt(bp, node, executionID)
	e.executeAndReconcile(ctx, bp, node, execution, prompt, resumeSessionID)
}

// latestSessionID returns the sessionId of node's most recent execution
// that has one, or "" if none has one.
func latestSessionID(node *types.MacroNode) string {
	var latest *types.NodeExecution
	for _, ex := range node.Executions {
		if ex.SessionID == "" {
			continue
		}
		if latest == nil || ex.StartedAt.After(latest.StartedAt) {
			latest = ex
		}
	}
	if latest == nil {
		return ""
	}
	return latest.SessionID
}
