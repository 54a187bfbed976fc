package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

func TestSummaryFromStdoutPrefersMarkerBlock(t *testing.T) {
	stdout := "noise before\n===TASK_COMPLETE===\nthe real summary\n===END_TASK===\nnoise after"
	got := summaryFromStdout(stdout)
	if got != "the real summary" {
		t.Errorf("expected marker-bounded summary, got %q", got)
	}
}

func TestSummaryFromStdoutFallsBackToTail(t *testing.T) {
	stdout := strings.Repeat("a", 3000)
	got := summaryFromStdout(stdout)
	if len(got) != 2000 {
		t.Errorf("expected last 2000 chars, got length %d", len(got))
	}
	if got != strings.Repeat("a", 2000) {
		t.Error("expected tail content to match")
	}
}

func TestGenerateHandoffArtifactsSingleNullTargetWhenNoDependents(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n := &types.MacroNode{ID: "n1", BlueprintID: bp.ID, Order: 0, Title: "n1"}
	mustCreateNode(t, e, n)
	exec := &types.NodeExecution{ID: "e1", NodeID: n.ID, BlueprintID: bp.ID, Type: types.ExecutionPrimary,
		Status: types.ExecRunning, StartedAt: e.nowFn()}
	if err := e.Store.CreateExecution(exec); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	if err := e.generateHandoffArtifacts(context.Background(), bp, n, exec, "did the thing"); err != nil {
		t.Fatalf("generateHandoffArtifacts failed: %v", err)
	}

	artifacts, err := e.Store.ListArtifactsForNode(n.ID, store.ArtifactDirectionOutput)
	if err != nil {
		t.Fatalf("ListArtifactsForNode failed: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected exactly one artifact, got %d", len(artifacts))
	}
	if artifacts[0].TargetNodeID != nil {
		t.Errorf("expected null target when there are no dependents, got %v", *artifacts[0].TargetNodeID)
	}
}

func TestGenerateHandoffArtifactsFansOutPerDependent(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n := &types.MacroNode{ID: "n1", BlueprintID: bp.ID, Order: 0, Title: "n1"}
	mustCreateNode(t, e, n)
	d1 := &types.MacroNode{ID: "d1", BlueprintID: bp.ID, Order: 1, Title: "d1", Dependencies: []string{"n1"}}
	mustCreateNode(t, e, d1)
	d2 := &types.MacroNode{ID: "d2", BlueprintID: bp.ID, Order: 2, Title: "d2", Dependencies: []string{"n1"}}
	mustCreateNode(t, e, d2)

	exec := &types.NodeExecution{ID: "e1", NodeID: n.ID, BlueprintID: bp.ID, Type: types.ExecutionPrimary,
		Status: types.ExecRunning, StartedAt: e.nowFn()}
	if err := e.Store.CreateExecution(exec); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	bpWithNodes, err := e.Store.GetBlueprint(bp.ID)
	if err != nil {
		t.Fatalf("GetBlueprint failed: %v", err)
	}

	if err := e.generateHandoffArtifacts(context.Background(), bpWithNodes, n, exec, "did the thing"); err != nil {
		t.Fatalf("generateHandoffArtifacts failed: %v", err)
	}

	artifacts, err := e.Store.ListArtifactsForNode(n.ID, store.ArtifactDirectionOutput)
	if err != nil {
		t.Fatalf("ListArtifactsForNode failed: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected one artifact per dependent, got %d", len(artifacts))
	}
	targets := map[string]bool{}
	for _, a := range artifacts {
		if a.TargetNodeID == nil {
			t.Fatal("expected every artifact to carry a target when dependents exist")
		}
		targets[*a.TargetNodeID] = true
	}
	if !targets["d1"] || !targets["d2"] {
		t.Errorf("expected artifacts targeting d1 and d2, got %+v", targets)
	}
}

func TestReshapeSummaryFallsBackToRawWhenNoAgentRegistered(t *testing.T) {
	e := newTestExecutor(t, nil)
	bp := mustCreateBlueprint(t, e, "bp-1")
	n := &types.MacroNode{ID: "n1", BlueprintID: bp.ID, Order: 0, Title: "n1", AgentType: "unregistered"}

	got := e.reshapeSummary(context.Background(), bp, n, "raw summary text")
	if got != "raw summary text" {
		t.Errorf("expected raw text fallback, got %q", got)
	}
}
