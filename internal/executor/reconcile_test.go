package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/macroforge/macroforge/internal/types"
)

func setupNodeAndExecution(t *testing.T, e *Executor, bp *types.Blueprint) (*types.MacroNode, *types.NodeExecution) {
	t.Helper()
	n := &types.MacroNode{ID: "n1", BlueprintID: bp.ID, Order: 0, Title: "do work"}
	mustCreateNode(t, e, n)

	exec := &types.NodeExecution{ID: "e1", NodeID: n.ID, BlueprintID: bp.ID, Type: types.ExecutionPrimary,
		Status: types.ExecRunning, StartedAt: e.nowFn()}
	if err := e.Store.CreateExecution(exec); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}
	return n, exec
}

func TestReconcileHungBoundary49CharsIsHung(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n, exec := setupNodeAndExecution(t, e, bp)

	stdout := strings.Repeat("x", 49)
	e.reconcile(context.Background(), bp, n, exec, stdout, nil)

	got, err := e.Store.GetNode(n.ID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Status != types.NodeFailed {
		t.Errorf("expected 49-char output to be classified hung/failed, got %s", got.Status)
	}
}

func TestReconcileHungBoundary50CharsIsNotHung(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n, exec := setupNodeAndExecution(t, e, bp)

	stdout := strings.Repeat("x", 50)
	e.reconcile(context.Background(), bp, n, exec, stdout, nil)

	got, err := e.Store.GetNode(n.ID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Status != types.NodeDone {
		t.Errorf("expected 50-char output to succeed via inference, got %s", got.Status)
	}
}

func TestReconcileReportedStatusWinsOverShortOutput(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n, exec := setupNodeAndExecution(t, e, bp)

	done := types.ReportedDone
	exec.ReportedStatus = &done

	e.reconcile(context.Background(), bp, n, exec, "ok", nil)

	got, err := e.Store.GetNode(n.ID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Status != types.NodeDone {
		t.Errorf("expected reportedStatus=done to win despite short output, got %s", got.Status)
	}
}

func TestReconcileProcessFailureWinsOverEverything(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n, exec := setupNodeAndExecution(t, e, bp)

	done := types.ReportedDone
	exec.ReportedStatus = &done

	e.reconcile(context.Background(), bp, n, exec, "a very long and otherwise successful-looking output string", errTest{"process exploded"})

	got, err := e.Store.GetNode(n.ID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Status != types.NodeFailed {
		t.Errorf("expected process failure to override reportedStatus, got %s", got.Status)
	}
}

func TestReconcileBlockerInfoWinsOverInference(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n, exec := setupNodeAndExecution(t, e, bp)
	exec.BlockerInfo = `{"type":"missing_dependency","description":"need X"}`

	e.reconcile(context.Background(), bp, n, exec, "a very long and otherwise successful-looking output string", nil)

	got, err := e.Store.GetNode(n.ID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Status != types.NodeBlocked {
		t.Errorf("expected blocker callback to win over success inference, got %s", got.Status)
	}
}

type errTest struct{ msg string }

func (e errTest) Error() string { return e.msg }
