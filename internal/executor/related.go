package executor

import (
	"context"
	"fmt"

	"github.com/macroforge/macroforge/internal/queue"
	"github.com/macroforge/macroforge/internal/runner"
	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

// ErrNotDone is returned by the manual related-session operations, which
// (unlike the automatic post-completion evaluation) check that the node
// has reached types.NodeDone before queueing anything.
var ErrNotDone = fmt.Errorf("executor: node is not done")

// ErrConflict is returned by operations the spec's error taxonomy (§7)
// classifies as Conflict: unqueuing an already-running node, or adopting a
// session already owned by a different execution.
var ErrConflict = fmt.Errorf("executor: conflict")

// Evaluate implements the user-triggered ".../evaluate" route: the same
// verdict-and-mutation flow as the automatic post-completion evaluation
// (spec §4.6.6), run again on demand against a node that already finished.
func (e *Executor) Evaluate(blueprintID, nodeID string) (*queue.Future, error) {
	return e.queueRelated(blueprintID, nodeID, queue.TaskEnrich, types.RelatedEvaluate, e.evaluationPrompt)
}

// Reevaluate is Evaluate run after the caller has made some other change
// (e.g. edited the node's description) that makes the prior verdict stale.
func (e *Executor) Reevaluate(blueprintID, nodeID string) (*queue.Future, error) {
	return e.queueRelated(blueprintID, nodeID, queue.TaskReevaluate, types.RelatedReevaluate, e.evaluationPrompt)
}

// ReevaluateAll queues a Reevaluate for every done node in the blueprint.
func (e *Executor) ReevaluateAll(blueprintID string) ([]*queue.Future, error) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		return nil, err
	}
	var futures []*queue.Future
	for _, n := range bp.Nodes {
		if n.Status != types.NodeDone {
			continue
		}
		f, err := e.Reevaluate(blueprintID, n.ID)
		if err != nil {
			continue
		}
		futures = append(futures, f)
	}
	return futures, nil
}

// Split asks the agent to break a done node's work into finer-grained
// sibling nodes, expressed as ADD_SIBLING mutations.
func (e *Executor) Split(blueprintID, nodeID string) (*queue.Future, error) {
	return e.queueRelated(blueprintID, nodeID, queue.TaskSplit, types.RelatedSplit, e.splitPrompt)
}

// SmartDependencies asks the agent to review whether a done node's declared
// dependencies are still the right ones, surfacing any correction as
// INSERT_BETWEEN/ADD_SIBLING mutations the same way evaluation does.
func (e *Executor) SmartDependencies(blueprintID, nodeID string) (*queue.Future, error) {
	return e.queueRelated(blueprintID, nodeID, queue.TaskSmartDeps, types.RelatedSmartDeps, e.smartDepsPrompt)
}

// queueRelated enqueues a related-session agent call behind the
// blueprint's FIFO (so it never overlaps a run/retry of the same
// blueprint), and applies whatever graph mutations the verdict carries.
func (e *Executor) queueRelated(blueprintID, nodeID string, taskType queue.TaskType, relType types.RelatedSessionType, promptFn func(bp *types.Blueprint, node *types.MacroNode, requestID string) string) (*queue.Future, error) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		return nil, err
	}
	node := findNode(bp, nodeID)
	if node == nil {
		return nil, store.ErrNotFound
	}
	if node.Status != types.NodeDone {
		return nil, ErrNotDone
	}

	future := e.Queue.Enqueue(blueprintID, taskType, &nodeID, func(ctx context.Context) (interface{}, error) {
		e.runRelatedSession(ctx, blueprintID, nodeID, relType, promptFn)
		return nil, nil
	})
	return future, nil
}

func (e *Executor) runRelatedSession(ctx context.Context, blueprintID, nodeID string, relType types.RelatedSessionType, promptFn func(bp *types.Blueprint, node *types.MacroNode, requestID string) string) {
	bp, err := e.Store.GetBlueprint(blueprintID)
	if err != nil {
		logf("EXECUTOR", "related session: failed to re-fetch blueprint %s: %v", blueprintID, err)
		return
	}
	node := findNode(bp, nodeID)
	if node == nil {
		logf("EXECUTOR", "related session: node %s vanished from blueprint %s", nodeID, blueprintID)
		return
	}
	agent, ok := e.AgentTypes[node.AgentType]
	if !ok {
		logf("EXECUTOR", "related session: no agent type %q registered for node %s", node.AgentType, nodeID)
		return
	}

	requestID := e.idGen()
	e.Callbacks.Register(requestID)

	relatedID := e.idGen()
	now := e.nowFn()
	if err := e.Store.CreateRelatedSession(&types.RelatedSession{
		ID: relatedID, NodeID: nodeID, BlueprintID: blueprintID, Type: relType, StartedAt: now,
	}); err != nil {
		logf("EXECUTOR", "related session: failed to record session for node %s: %v", nodeID, err)
	}

	prompt := promptFn(bp, node, requestID)
	wait, cleanup, err := runner.RunDetached(runner.Spec{
		Binary: agent.BinaryPath,
		Prompt: prompt,
		Cwd:    bp.ProjectCwd,
		ArgsTemplate: func(promptFile, resumeSessionID string) []string {
			return buildArgs(agent.ArgsTemplate, promptFile, resumeSessionID)
		},
	})
	if err != nil {
		logf("EXECUTOR", "related session: failed to spawn agent for node %s: %v", nodeID, err)
		e.Callbacks.Reject(requestID, err)
		_ = e.Store.CompleteRelatedSession(relatedID, e.nowFn())
		return
	}
	defer cleanup()
	go func() { _ = wait() }()

	val, err := e.Callbacks.Await(requestID)
	_ = e.Store.CompleteRelatedSession(relatedID, e.nowFn())
	if err != nil {
		logf("EXECUTOR", "related session: no verdict for node %s: %v", nodeID, err)
		return
	}

	result, ok := val.(EvaluationResult)
	if !ok {
		logf("EXECUTOR", "related session: malformed verdict for node %s", nodeID)
		return
	}
	if err := e.applyGraphMutations(bp, node, result); err != nil {
		logf("EXECUTOR", "related session: mutation apply failed for node %s: %v", nodeID, err)
	}
}

func (e *Executor) splitPrompt(bp *types.Blueprint, node *types.MacroNode, requestID string) string {
	return fmt.Sprintf(`Node "%s" in blueprint "%s" is done. Decide whether its remaining follow-up work
should be split into finer-grained sibling nodes.

Node description: %s

If no split is warranted, POST:
  curl -s -X POST "%s/enrichment-callback/%s?auth=%s" -d '{"status":"COMPLETE"}'
Otherwise, POST one ADD_SIBLING mutation per new node:
  curl -s -X POST "%s/enrichment-callback/%s?auth=%s" \
    -d '{"status":"NEEDS_REFINEMENT","mutations":[{"action":"ADD_SIBLING","new_node":{"title":"...","description":"..."}}]}'
`, node.Title, bp.Title, node.Description, e.BaseURL, requestID, e.AuthToken, e.BaseURL, requestID, e.AuthToken)
}

func (e *Executor) smartDepsPrompt(bp *types.Blueprint, node *types.MacroNode, requestID string) string {
	return fmt.Sprintf(`Node "%s" in blueprint "%s" is done. Review whether any downstream node is
missing a dependency on work this node actually produced.

Node description: %s

If dependencies look correct, POST:
  curl -s -X POST "%s/enrichment-callback/%s?auth=%s" -d '{"status":"COMPLETE"}'
Otherwise, describe the missing link as an INSERT_BETWEEN mutation:
  curl -s -X POST "%s/enrichment-callback/%s?auth=%s" \
    -d '{"status":"NEEDS_REFINEMENT","mutations":[{"action":"INSERT_BETWEEN","new_node":{"title":"...","description":"..."}}]}'
`, node.Title, bp.Title, node.Description, e.BaseURL, requestID, e.AuthToken, e.BaseURL, requestID, e.AuthToken)
}
