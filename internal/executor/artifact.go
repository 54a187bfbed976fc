package executor

import (
	"context"
	"regexp"
	"strings"

	"github.com/macroforge/macroforge/internal/runner"
	"github.com/macroforge/macroforge/internal/types"
)

var taskCompleteMarkers = regexp.MustCompile(`(?s)===TASK_COMPLETE===(.*?)===END_TASK===`)

const reshapeInstructions = `Reshape the following raw task output into exactly this form, nothing else:

**What was done:**
<one or two sentences>

**Files changed:**
<bullet list, or "none">

**Decisions:**
<bullet list of notable decisions, or "none">

Raw output:
`

// summaryFromStdout extracts the handoff text from stdout per the priority
// order used by both reconciliation's success path and artifact generation:
// marker-bounded block first, else the last 2000 characters.
func summaryFromStdout(stdout string) string {
	if m := taskCompleteMarkers.FindStringSubmatch(stdout); m != nil {
		return strings.TrimSpace(m[1])
	}
	if len(stdout) > 2000 {
		return stdout[len(stdout)-2000:]
	}
	return stdout
}

// generateHandoffArtifacts fans out artifacts for a completed (or blocked)
// node per spec §4.6.5 / §3: one per dependent with targetNodeId set, or a
// single null-target artifact when there are no dependents. The raw
// content (task summary callback, else marker-bounded summary, else
// stdout tail) is reshaped into the canonical form via a second, short
// agent call before being persisted.
func (e *Executor) generateHandoffArtifacts(ctx context.Context, bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, stdout string) error {
	raw := execution.TaskSummary
	if raw == "" {
		raw = summaryFromStdout(stdout)
	}

	content := e.reshapeSummary(ctx, bp, node, raw)

	dependents := dependentsOf(node.ID, bp.Nodes)
	now := e.nowFn()
	if len(dependents) == 0 {
		return e.Store.CreateArtifact(&types.Artifact{
			ID:           e.idGen(),
			BlueprintID:  bp.ID,
			SourceNodeID: node.ID,
			Type:         types.ArtifactHandoffSummary,
			Content:      content,
			CreatedAt:    now,
		})
	}
	for _, dep := range dependents {
		target := dep.ID
		if err := e.Store.CreateArtifact(&types.Artifact{
			ID:           e.idGen(),
			BlueprintID:  bp.ID,
			SourceNodeID: node.ID,
			TargetNodeID: &target,
			Type:         types.ArtifactHandoffSummary,
			Content:      content,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// reshapeSummary runs a short agent call to fit raw into the canonical
// handoff shape. Failures fall back to the raw text unreshaped: artifact
// generation must never fail a node that otherwise completed.
func (e *Executor) reshapeSummary(ctx context.Context, bp *types.Blueprint, node *types.MacroNode, raw string) string {
	agent, ok := e.AgentTypes[node.AgentType]
	if !ok {
		return raw
	}
	prompt := reshapeInstructions + raw
	out, err := runner.Run(ctx, runner.Spec{
		Binary: agent.BinaryPath,
		Prompt: prompt,
		Cwd:    bp.ProjectCwd,
		ArgsTemplate: func(promptFile, resumeSessionID string) []string {
			return buildArgs(agent.ArgsTemplate, promptFile, resumeSessionID)
		},
	})
	if err != nil || strings.TrimSpace(out) == "" {
		logf("EXECUTOR", "reshape call failed for node %s, using raw summary: %v", node.ID, err)
		return raw
	}
	return out
}
