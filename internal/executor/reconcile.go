package executor

import (
	"context"
	"strings"

	"github.com/macroforge/macroforge/internal/sessionreader"
	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

// hungOutputThreshold is the cleaned-stdout length below which a run is
// classified as hung rather than successful (spec §4.6.2 step 3, §8
// boundary behavior: 49 chars hung, 50 does not).
const hungOutputThreshold = 50

// reconcile implements spec §4.6.2's authoritative priority ordering. It is
// called after the process has exited (or failed outright) and the
// execution row has been re-read to pick up any callback writes the agent
// made during the run. ctx is used for the reshape/evaluation follow-up
// calls triggered on a done outcome.
func (e *Executor) reconcile(ctx context.Context, bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, stdout string, runErr error) {
	switch {
	case runErr != nil:
		e.reconcileProcessFailure(bp, node, execution, runErr, stdout)
		return
	case execution.ReportedStatus != nil:
		e.reconcileReportedStatus(ctx, bp, node, execution, stdout)
		return
	case execution.BlockerInfo != "":
		e.reconcileBlocked(bp, node, execution, stdout)
		return
	case len(strings.TrimSpace(stdout)) < hungOutputThreshold:
		e.reconcileHung(bp, node, execution, stdout)
		return
	default:
		e.reconcileSuccess(ctx, bp, node, execution, stdout)
	}
}

func (e *Executor) reconcileReportedStatus(ctx context.Context, bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, stdout string) {
	switch *execution.ReportedStatus {
	case types.ReportedDone:
		e.finishExecution(execution.ID, types.ExecDone, nil, nil)
		e.finishNode(node.ID, types.NodeDone, "")
		e.publishNodeStatus(bp.ID, node.ID, types.NodeDone)
		e.syncSessionHealth(bp, node, execution)
		if err := e.generateHandoffArtifacts(ctx, bp, node, execution, stdout); err != nil {
			logf("EXECUTOR", "artifact generation failed for node %s: %v", node.ID, err)
		}
		go e.runPostCompletionEvaluation(context.Background(), bp, node)
	case types.ReportedFailed:
		reason := types.FailureError
		e.finishExecution(execution.ID, types.ExecFailed, &reason, strPtr(execution.ReportedReason))
		e.finishNode(node.ID, types.NodeFailed, execution.ReportedReason)
		e.publishNodeStatus(bp.ID, node.ID, types.NodeFailed)
		e.syncSessionHealth(bp, node, execution)
		e.notifyFailed(bp, node, execution.ReportedReason)
	case types.ReportedBlocked:
		e.finishExecution(execution.ID, types.ExecDone, nil, nil)
		e.finishNode(node.ID, types.NodeBlocked, "")
		e.publishNodeStatus(bp.ID, node.ID, types.NodeBlocked)
		e.syncSessionHealth(bp, node, execution)
		if err := e.generateHandoffArtifacts(ctx, bp, node, execution, stdout); err != nil {
			logf("EXECUTOR", "artifact generation failed for blocked node %s: %v", node.ID, err)
		}
		e.notifyBlocked(bp, node, execution.BlockerInfo)
	}
}

func (e *Executor) reconcileBlocked(bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, stdout string) {
	e.finishExecution(execution.ID, types.ExecDone, nil, nil)
	e.finishNode(node.ID, types.NodeBlocked, "")
	e.publishNodeStatus(bp.ID, node.ID, types.NodeBlocked)
	e.syncSessionHealth(bp, node, execution)
	if err := e.generateHandoffArtifacts(context.Background(), bp, node, execution, stdout); err != nil {
		logf("EXECUTOR", "artifact generation failed for blocked node %s: %v", node.ID, err)
	}
	e.notifyBlocked(bp, node, execution.BlockerInfo)
}

func (e *Executor) reconcileHung(bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, stdout string) {
	reason, detail := e.classifyFailure("", stdout, execution.SessionID, node.AgentType, bp.ProjectCwd)
	if reason == types.FailureError {
		reason = types.FailureHung
		detail = "agent produced suspiciously short output and reported no status"
	}
	e.finishExecution(execution.ID, types.ExecFailed, &reason, strPtr(detail))
	e.finishNode(node.ID, types.NodeFailed, detail)
	e.publishNodeStatus(bp.ID, node.ID, types.NodeFailed)
	e.syncSessionHealth(bp, node, execution)
	e.notifyFailed(bp, node, detail)
}

func (e *Executor) reconcileSuccess(ctx context.Context, bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, stdout string) {
	summary := execution.TaskSummary
	if summary == "" {
		summary = summaryFromStdout(stdout)
	}
	_ = e.Store.UpdateExecution(execution.ID, store.ExecutionPatch{OutputSummary: &summary})

	e.finishExecution(execution.ID, types.ExecDone, nil, nil)
	e.finishNode(node.ID, types.NodeDone, "")
	e.publishNodeStatus(bp.ID, node.ID, types.NodeDone)
	e.syncSessionHealth(bp, node, execution)
	if err := e.generateHandoffArtifacts(ctx, bp, node, execution, stdout); err != nil {
		logf("EXECUTOR", "artifact generation failed for node %s: %v", node.ID, err)
	}
	go e.runPostCompletionEvaluation(context.Background(), bp, node)
}

func (e *Executor) reconcileProcessFailure(bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution, runErr error, stdout string) {
	reason, detail := e.classifyFailure(runErr.Error(), stdout, execution.SessionID, node.AgentType, bp.ProjectCwd)
	e.finishExecution(execution.ID, types.ExecFailed, &reason, strPtr(detail))
	e.finishNode(node.ID, types.NodeFailed, detail)
	e.publishNodeStatus(bp.ID, node.ID, types.NodeFailed)
	e.syncSessionHealth(bp, node, execution)
	e.notifyFailed(bp, node, detail)
}

// finishExecution marks an execution terminal, recording its failure
// reason if any.
func (e *Executor) finishExecution(executionID string, status types.ExecutionStatus, reason *types.FailureReason, detail *string) {
	now := e.nowFn()
	patch := store.ExecutionPatch{Status: &status, CompletedAt: ptrToPtr(&now)}
	if reason != nil {
		patch.FailureReason = reason
	}
	if detail != nil {
		patch.OutputSummary = detail
	}
	if err := e.Store.UpdateExecution(executionID, patch); err != nil {
		logf("EXECUTOR", "failed to finalize execution %s: %v", executionID, err)
	}
}

// finishNode transitions a node to its terminal status.
func (e *Executor) finishNode(nodeID string, status types.NodeStatus, errMsg string) {
	now := e.nowFn()
	patch := store.NodePatch{Status: &status}
	if errMsg != "" {
		patch.Error = &errMsg
	} else {
		empty := ""
		patch.Error = &empty
	}
	if err := e.Store.UpdateNode(nodeID, patch, now); err != nil {
		logf("EXECUTOR", "failed to finalize node %s: %v", nodeID, err)
	}
}

// syncSessionHealth persists the HealthReport's compactCount, peakTokens,
// and contextPressure onto the execution row, mapping peakTokens onto
// contextTokensUsed too (spec §4.6.2 "in every exit path").
func (e *Executor) syncSessionHealth(bp *types.Blueprint, node *types.MacroNode, execution *types.NodeExecution) {
	if execution.SessionID == "" {
		return
	}
	reader := sessionreader.For(node.AgentType)
	if reader == nil {
		return
	}
	path, err := sessionLogPath(reader, bp.ProjectCwd, execution.SessionID)
	if err != nil {
		return
	}
	health, err := reader.HealthAnalysis(path)
	if err != nil || health == nil {
		return
	}
	pressure := fromSessionPressure(health.ContextPressure)
	compact, peak := health.CompactCount, health.PeakTokens
	_ = e.Store.UpdateExecution(execution.ID, store.ExecutionPatch{
		CompactCount:      ptrToPtr(&compact),
		PeakTokens:        ptrToPtr(&peak),
		ContextPressure:   &pressure,
		ContextTokensUsed: ptrToPtr(&peak),
	})
}

func (e *Executor) notifyBlocked(bp *types.Blueprint, node *types.MacroNode, blockerInfo string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.NodeBlocked(bp.Title, node.Title, blockerInfo); err != nil {
		logf("EXECUTOR", "toast notification failed: %v", err)
	}
}

func (e *Executor) notifyFailed(bp *types.Blueprint, node *types.MacroNode, reason string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.NodeFailed(bp.Title, node.Title, reason); err != nil {
		logf("EXECUTOR", "toast notification failed: %v", err)
	}
}

func strPtr(s string) *string { return &s }

// ptrToPtr adapts a *int/*types.ContextPressure etc into the Store's
// double-pointer patch shape (nil outer = leave unchanged, non-nil outer
// pointing at nil inner = clear, non-nil/non-nil = set).
func ptrToPtr[T any](v *T) **T { return &v }
