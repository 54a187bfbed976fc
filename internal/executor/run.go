package executor

import (
	"context"
	"fmt"

	"github.com/macroforge/macroforge/internal/queue"
	"github.com/macroforge/macroforge/internal/runner"
	"github.com/macroforge/macroforge/internal/sessionreader"
	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

// ErrPrecondition is returned when Run/Retry is called on a node that
// cannot legally be run in its current state (spec §7 Precondition).
var ErrPrecondition = fmt.Errorf("executor: node is not in a runnable state")

// Run enqueues node for execution (spec §4.6.1). The synchronous
// precondition check happens here, outside the queue; the authoritative
// re-check of dependency state happens again inside the task once it
// actually runs, since blueprint state may have changed while queued.
func (e *Executor) Run(blueprintID, nodeID string) (*queue.Future, error) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		return nil, err
	}
	node := findNode(bp, nodeID)
	if node == nil {
		return nil, store.ErrNotFound
	}
	if node.Status != types.NodePending && node.Status != types.NodeFailed && node.Status != types.NodeQueued {
		return nil, ErrPrecondition
	}
	if dependenciesTerminallyFailed(node, bp.Nodes) {
		return nil, ErrPrecondition
	}

	now := e.nowFn()
	status := types.NodeQueued
	if err := e.Store.UpdateNode(nodeID, store.NodePatch{Status: &status}, now); err != nil {
		return nil, err
	}
	e.publishNodeStatus(blueprintID, nodeID, types.NodeQueued)

	future := e.Queue.Enqueue(blueprintID, queue.TaskRun, &nodeID, func(ctx context.Context) (interface{}, error) {
		e.runNodeTask(ctx, blueprintID, nodeID)
		return nil, nil
	})
	return future, nil
}

// runNodeTask is the queue-drained body of a run/retry. It re-fetches the
// blueprint (state may have changed since enqueue), re-verifies
// dependencies, spawns the agent, and reconciles the outcome.
func (e *Executor) runNodeTask(ctx context.Context, blueprintID, nodeID string) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		logf("EXECUTOR", "run: failed to re-fetch blueprint %s: %v", blueprintID, err)
		return
	}
	node := findNode(bp, nodeID)
	if node == nil {
		logf("EXECUTOR", "run: node %s vanished from blueprint %s", nodeID, blueprintID)
		return
	}
	if !dependenciesSatisfied(node, bp.Nodes) {
		e.finishNode(nodeID, types.NodeFailed, "dependency is no longer done/skipped at run time")
		return
	}

	inputArtifacts := e.collectInputArtifacts(node, bp.Nodes)

	execType := types.ExecutionPrimary
	if hasFailedExecution(node) {
		execType = types.ExecutionRetry
	}

	executionID := e.idGen()
	startedAt := e.nowFn()
	execution := &types.NodeExecution{
		ID: executionID, NodeID: nodeID, BlueprintID: blueprintID,
		Type: execType, Status: types.ExecRunning, StartedAt: startedAt,
	}
	if err := e.Store.CreateExecution(execution); err != nil {
		logf("EXECUTOR", "run: failed to create execution for node %s: %v", nodeID, err)
		return
	}

	running := types.NodeRunning
	_ = e.Store.UpdateNode(nodeID, store.NodePatch{Status: &running}, startedAt)
	e.publishNodeStatus(blueprintID, nodeID, types.NodeRunning)

	prompt := e.buildPrompt(bp, node, inputArtifacts, executionID)
	e.executeAndReconcile(ctx, bp, node, execution, prompt, "")
}

// executeAndReconcile spawns the agent, runs the session-detection poller
// concurrently, and reconciles the outcome once the process exits.
func (e *Executor) executeAndReconcile(ctx context.Context, bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, prompt, resumeSessionID string) {
	agent, ok := e.AgentTypes[node.AgentType]
	if !ok {
		reason := types.FailureError
		e.finishExecution(execution.ID, types.ExecFailed, &reason, strPtr("no agent type registered: "+node.AgentType))
		e.finishNode(node.ID, types.NodeFailed, "no agent type registered: "+node.AgentType)
		return
	}

	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()

	if reader := sessionreader.For(node.AgentType); reader != nil && bp.ProjectCwd != "" {
		dir := reader.SessionsDir(bp.ProjectCwd)
		go runSessionPoller(pollCtx, dir, execution.StartedAt, func(sessionID string) {
			e.adoptSession(execution.ID, sessionID)
		})
	}

	stdout, runErr := runner.Run(ctx, runner.Spec{
		Binary:          agent.BinaryPath,
		Prompt:          prompt,
		Cwd:             bp.ProjectCwd,
		ResumeSessionID: resumeSessionID,
		ArgsTemplate: func(promptFile, resume string) []string {
			return buildArgs(agent.ArgsTemplate, promptFile, resume)
		},
		OnPID: func(pid int) {
			_ = e.Store.UpdateExecution(execution.ID, store.ExecutionPatch{CliPID: ptrToPtr(&pid)})
		},
	})
	stopPoll()

	if reader := sessionreader.For(node.AgentType); reader != nil && bp.ProjectCwd != "" {
		if fresh, err := e.Store.GetExecution(execution.ID); err == nil && fresh.SessionID == "" {
			dir := reader.SessionsDir(bp.ProjectCwd)
			if id := pollForNewSession(dir, execution.StartedAt); id != "" {
				e.adoptSession(execution.ID, id)
			}
		}
	}

	fresh, err := e.Store.GetExecution(execution.ID)
	if err != nil {
		logf("EXECUTOR", "run: failed to re-read execution %s: %v", execution.ID, err)
		fresh = execution
	}

	e.reconcile(ctx, bp, node, fresh, stdout, runErr)
}

// adoptSession claims sessionID for executionID, refusing to adopt one
// already owned by a different execution (spec §5 "a single PID and a
// single session-log file may be referenced by at most one execution at a
// time").
func (e *Executor) adoptSession(executionID, sessionID string) {
	if owner, err := e.Store.GetExecutionBySessionID(sessionID); err == nil && owner.ID != executionID {
		logf("EXECUTOR", "refusing to adopt session %s: already owned by execution %s", sessionID, owner.ID)
		return
	}
	if err := e.Store.UpdateExecution(executionID, store.ExecutionPatch{SessionID: &sessionID}); err != nil {
		logf("EXECUTOR", "failed to adopt session %s for execution %s: %v", sessionID, executionID, err)
	}
}

// collectInputArtifacts gathers the latest output artifact of each live
// dependency (spec §4.6.1 step 3).
func (e *Executor) collectInputArtifacts(node *types.MacroNode, blueprintNodes []*types.MacroNode) []*types.Artifact {
	var artifacts []*types.Artifact
	for _, dep := range ResolveDependencies(node, blueprintNodes) {
		outputs, err := e.Store.ListArtifactsForNode(dep.ID, store.ArtifactDirectionOutput)
		if err != nil || len(outputs) == 0 {
			continue
		}
		artifacts = append(artifacts, outputs[len(outputs)-1])
	}
	return artifacts
}

func hasFailedExecution(node *types.MacroNode) bool {
	for _, ex := range node.Executions {
		if ex.Status == types.ExecFailed {
			return true
		}
	}
	return false
}

func findNode(bp *types.Blueprint, nodeID string) *types.MacroNode {
	for _, n := range bp.Nodes {
		if n.ID == nodeID {
			return n
		}
	}
	return nil
}
