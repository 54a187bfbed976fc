package executor

import (
	"fmt"
	"strings"

	"github.com/macroforge/macroforge/internal/types"
)

// buildPrompt composes a node's run prompt per spec §4.6.4: step position,
// blueprint context, each dependency's handoff summary in reading order,
// the node's own fields, the working directory, and a fixed instruction
// block telling the agent how to report back.
func (e *Executor) buildPrompt(bp *types.Blueprint, node *types.MacroNode, inputArtifacts []*types.Artifact, executionID string) string {
	position, total := nodePosition(bp, node)

	var b strings.Builder
	fmt.Fprintf(&b, "Step %d of %d in blueprint \"%s\".\n\n", position, total, bp.Title)
	if bp.Description != "" {
		fmt.Fprintf(&b, "Blueprint goal: %s\n\n", bp.Description)
	}

	if len(inputArtifacts) > 0 {
		b.WriteString("Handoff from dependencies:\n")
		for _, a := range inputArtifacts {
			fmt.Fprintf(&b, "---\n%s\n", a.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Your task: %s\n", node.Title)
	if node.Description != "" {
		fmt.Fprintf(&b, "%s\n", node.Description)
	}
	if node.Prompt != "" {
		fmt.Fprintf(&b, "\n%s\n", node.Prompt)
	}
	if bp.ProjectCwd != "" {
		fmt.Fprintf(&b, "\nWorking directory: %s\n", bp.ProjectCwd)
	}

	b.WriteString("\n" + e.instructionBlock(bp.ID, executionID))
	return b.String()
}

// instructionBlock is the fixed text every node prompt carries: do not ask
// for confirmation, how to call back, and the required final action.
func (e *Executor) instructionBlock(blueprintID, executionID string) string {
	base := fmt.Sprintf("%s/blueprints/%s/executions/%s", e.BaseURL, blueprintID, executionID)
	return fmt.Sprintf(`Do not ask for confirmation before proceeding; make your own decisions and keep working.

If you encounter a blocker (a missing dependency, an unclear requirement, an
access issue, or a technical limitation you cannot resolve), report it at
any time with:
  curl -s -X POST "%s/report-blocker?auth=%s" -H 'content-type: application/json' \
    -d '{"type":"missing_dependency|unclear_requirement|access_issue|technical_limitation","description":"...","suggestion":"..."}'

Before you finish, POST a summary of what you did:
  curl -s -X POST "%s/task-summary?auth=%s" -H 'content-type: application/json' \
    -d '{"summary":"..."}'

As your last action, report your final status:
  curl -s -X POST "%s/report-status?auth=%s" -H 'content-type: application/json' \
    -d '{"status":"done|failed|blocked","reason":"..."}'
`, base, e.AuthToken, base, e.AuthToken, base, e.AuthToken)
}

// nodePosition returns node's 1-based ordinal position among bp.Nodes and
// the total count, for the "Step k/N" prompt header.
func nodePosition(bp *types.Blueprint, node *types.MacroNode) (position, total int) {
	total = len(bp.Nodes)
	for i, n := range bp.Nodes {
		if n.ID == node.ID {
			return i + 1, total
		}
	}
	return 1, total
}

// continuationPrompt is used for session resumption (spec §4.6.8): a fixed
// instruction to pick back up where the prior attempt left off.
func (e *Executor) continuationPrompt(bp *types.Blueprint, node *types.MacroNode, executionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resuming work on \"%s\" in blueprint \"%s\".\n", node.Title, bp.Title)
	b.WriteString("Your previous attempt did not finish cleanly. Review what you already did in this session and continue from there; do not restart from scratch unless the prior work is unsalvageable.\n\n")
	b.WriteString(e.instructionBlock(bp.ID, executionID))
	return b.String()
}
