package recovery

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/macroforge/macroforge/internal/sessionreader"
	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

// finalizeSilentlyCompleted marks a dead-process-but-finished execution
// done, marks its node done, and attempts to recover a handoff artifact
// from the last substantive assistant message in its session transcript
// (spec §4.7.1). Artifact recovery failures are swallowed: a successful
// node must not be re-failed because its own transcript couldn't be read.
func (s *Supervisor) finalizeSilentlyCompleted(executionID, nodeID, blueprintID string, reader sessionreader.Reader, projectCwd, sessionID string) {
	now := s.nowFn()
	done := types.ExecDone
	if err := s.Store.UpdateExecution(executionID, store.ExecutionPatch{Status: &done, CompletedAt: ptrTime(now)}); err != nil {
		log.Printf("[RECOVERY] failed to finalize execution %s as silently-completed: %v", executionID, err)
		return
	}
	doneNode := types.NodeDone
	if err := s.Store.UpdateNode(nodeID, store.NodePatch{Status: &doneNode}, now); err != nil {
		log.Printf("[RECOVERY] failed to finalize node %s as done: %v", nodeID, err)
	}

	content := lastAssistantMessage(reader, projectCwd, sessionID)
	if content == "" {
		return
	}
	if err := s.generateRecoveryArtifact(nodeID, blueprintID, content); err != nil {
		log.Printf("[RECOVERY] failed to generate handoff artifact for recovered node %s: %v", nodeID, err)
	}
}

// finalizeTrulyDead marks an execution and its node failed: the process is
// gone and left no session trace to recover from.
func (s *Supervisor) finalizeTrulyDead(executionID, nodeID string) {
	now := s.nowFn()
	failed := types.ExecFailed
	if err := s.Store.UpdateExecution(executionID, store.ExecutionPatch{Status: &failed, CompletedAt: ptrTime(now)}); err != nil {
		log.Printf("[RECOVERY] failed to finalize execution %s as truly-dead: %v", executionID, err)
		return
	}
	failedNode := types.NodeFailed
	reason := "recovery: process ended without a detectable session"
	if err := s.Store.UpdateNode(nodeID, store.NodePatch{Status: &failedNode, Error: &reason}, now); err != nil {
		log.Printf("[RECOVERY] failed to finalize node %s as failed: %v", nodeID, err)
	}
}

// lastAssistantMessage parses sessionID's transcript and returns the
// content of its last non-empty assistant turn, or "" if the log is
// missing, unparseable, or has no assistant content at all.
func lastAssistantMessage(reader sessionreader.Reader, projectCwd, sessionID string) string {
	if reader == nil || sessionID == "" {
		return ""
	}
	path := reader.SessionsDir(projectCwd) + "/" + sessionID + ".jsonl"
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	timeline, err := reader.Parse(path, raw)
	if err != nil {
		return ""
	}
	for i := len(timeline) - 1; i >= 0; i-- {
		node := timeline[i]
		if node.Kind == sessionreader.KindAssistant && strings.TrimSpace(node.Content) != "" {
			return node.Content
		}
	}
	return ""
}

// generateRecoveryArtifact fans a recovered handoff summary out to every
// dependent of nodeID, or a single null-target artifact when there are
// none (same shape as a normal completion, spec §4.6.5 / §3).
func (s *Supervisor) generateRecoveryArtifact(nodeID, blueprintID, content string) error {
	bp, err := s.Store.GetBlueprint(blueprintID)
	if err != nil {
		return err
	}
	now := s.nowFn()
	dependents := dependentsOf(nodeID, bp.Nodes)
	if len(dependents) == 0 {
		return s.Store.CreateArtifact(&types.Artifact{
			ID: s.idGen(), BlueprintID: blueprintID, SourceNodeID: nodeID,
			Type: types.ArtifactHandoffSummary, Content: content, CreatedAt: now,
		})
	}
	for _, dep := range dependents {
		target := dep.ID
		if err := s.Store.CreateArtifact(&types.Artifact{
			ID: s.idGen(), BlueprintID: blueprintID, SourceNodeID: nodeID, TargetNodeID: &target,
			Type: types.ArtifactHandoffSummary, Content: content, CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// dependentsOf returns every node in blueprintNodes whose dependency list
// includes nodeID, in blueprint order. Mirrors internal/executor's
// unexported helper of the same name; duplicated rather than imported
// since the two packages classify dependents for unrelated reasons
// (reconciliation fan-out vs. crash-recovery artifact fan-out) and
// exporting it would widen the Executor's public surface for a single
// cross-package caller.
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

// ptrTime adapts a plain time.Time into the Store's double-pointer patch
// shape for a nullable column (non-nil outer, non-nil inner = set).
func ptrTime(t time.Time) **time.Time {
	p := &t
	return &p
}
