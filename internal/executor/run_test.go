package executor

import (
	"context"
	"testing"

	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

func TestRunRejectsPreconditionWhenDependencyTerminallyFailed(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	mustCreateNode(t, e, &types.MacroNode{ID: "a", BlueprintID: bp.ID, Order: 0, Title: "a", Status: types.NodeFailed})
	mustCreateNode(t, e, &types.MacroNode{ID: "b", BlueprintID: bp.ID, Order: 1, Title: "b", Dependencies: []string{"a"}})

	if _, err := e.Run(bp.ID, "b"); err != ErrPrecondition {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}

func TestRunEndToEndSuccessViaStdoutInference(t *testing.T) {
	agentTypes := map[string]AgentType{"sh": shAgentType(t, "echo 'this is more than fifty characters of agent stdout output'")}
	e := newTestExecutor(t, agentTypes)
	bp := mustCreateBlueprint(t, e, "bp-1")
	mustCreateNode(t, e, &types.MacroNode{ID: "n1", BlueprintID: bp.ID, Order: 0, Title: "n1", AgentType: "sh"})

	future, err := e.Run(bp.ID, "n1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := future.Await(context.Background()); err != nil {
		t.Fatalf("future.Await failed: %v", err)
	}

	node, err := e.Store.GetNode("n1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.Status != types.NodeDone {
		t.Errorf("expected node done, got %s (error=%q)", node.Status, node.Error)
	}

	execs, err := e.Store.ListExecutionsForNode("n1")
	if err != nil {
		t.Fatalf("ListExecutionsForNode failed: %v", err)
	}
	if len(execs) != 1 || execs[0].Status != types.ExecDone {
		t.Fatalf("expected exactly one done execution, got %+v", execs)
	}
}

func TestRunEndToEndFailureViaNonZeroExitEmptyStdout(t *testing.T) {
	agentTypes := map[string]AgentType{"sh": shAgentType(t, "exit 3")}
	e := newTestExecutor(t, agentTypes)
	bp := mustCreateBlueprint(t, e, "bp-1")
	mustCreateNode(t, e, &types.MacroNode{ID: "n1", BlueprintID: bp.ID, Order: 0, Title: "n1", AgentType: "sh"})

	future, err := e.Run(bp.ID, "n1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := future.Await(context.Background()); err != nil {
		t.Fatalf("future.Await failed: %v", err)
	}

	node, err := e.Store.GetNode("n1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.Status != types.NodeFailed {
		t.Errorf("expected node failed, got %s", node.Status)
	}
}

func TestRunMarksRetryTypeAfterPriorFailure(t *testing.T) {
	agentTypes := map[string]AgentType{"sh": shAgentType(t, "echo 'this is more than fifty characters of agent stdout output'")}
	e := newTestExecutor(t, agentTypes)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n := &types.MacroNode{ID: "n1", BlueprintID: bp.ID, Order: 0, Title: "n1", AgentType: "sh"}
	mustCreateNode(t, e, n)

	failedExec := &types.NodeExecution{ID: "prior", NodeID: "n1", BlueprintID: bp.ID, Type: types.ExecutionPrimary,
		Status: types.ExecRunning, StartedAt: e.nowFn()}
	if err := e.Store.CreateExecution(failedExec); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}
	failed := types.ExecFailed
	if err := e.Store.UpdateExecution("prior", store.ExecutionPatch{Status: &failed}); err != nil {
		t.Fatalf("UpdateExecution failed: %v", err)
	}

	future, err := e.Run(bp.ID, "n1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := future.Await(context.Background()); err != nil {
		t.Fatalf("future.Await failed: %v", err)
	}

	execs, err := e.Store.ListExecutionsForNode("n1")
	if err != nil {
		t.Fatalf("ListExecutionsForNode failed: %v", err)
	}
	var retryFound bool
	for _, ex := range execs {
		if ex.ID != "prior" && ex.Type == types.ExecutionRetry {
			retryFound = true
		}
	}
	if !retryFound {
		t.Errorf("expected the new execution to be typed retry after a prior failure, got %+v", execs)
	}
}
