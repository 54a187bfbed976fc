package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/macroforge/macroforge/internal/types"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, func() { s.Close() }
}

func newTestBlueprint(id string) *types.Blueprint {
	now := time.Now()
	return &types.Blueprint{
		ID:         id,
		Title:      "Test Blueprint",
		ProjectCwd: "/tmp/project",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateAndGetBlueprint(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	if bp.Status != types.BlueprintDraft {
		t.Errorf("expected default status draft, got %s", bp.Status)
	}

	got, err := s.GetBlueprint("bp-1")
	if err != nil {
		t.Fatalf("GetBlueprint failed: %v", err)
	}
	if got.Title != "Test Blueprint" {
		t.Errorf("expected title 'Test Blueprint', got %q", got.Title)
	}
	if len(got.Nodes) != 0 {
		t.Errorf("expected no nodes, got %d", len(got.Nodes))
	}

	if _, err := s.GetBlueprint("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListBlueprintsFiltersArchived(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp1 := newTestBlueprint("bp-1")
	bp2 := newTestBlueprint("bp-2")
	if err := s.CreateBlueprint(bp1); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	if err := s.CreateBlueprint(bp2); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	if err := s.ArchiveBlueprint("bp-2", time.Now()); err != nil {
		t.Fatalf("ArchiveBlueprint failed: %v", err)
	}

	active, err := s.ListBlueprints(BlueprintFilter{})
	if err != nil {
		t.Fatalf("ListBlueprints failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "bp-1" {
		t.Errorf("expected only bp-1 in default listing, got %+v", active)
	}

	all, err := s.ListBlueprints(BlueprintFilter{IncludeArchived: true})
	if err != nil {
		t.Fatalf("ListBlueprints with archived failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 blueprints including archived, got %d", len(all))
	}
}

func TestDeleteBlueprintCascades(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}

	now := time.Now()
	n1 := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 0, Title: "first", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n1); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	exec := &types.NodeExecution{ID: "e1", NodeID: "n1", BlueprintID: "bp-1", Type: types.ExecutionPrimary,
		Status: types.ExecRunning, StartedAt: now}
	if err := s.CreateExecution(exec); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	art := &types.Artifact{ID: "a1", BlueprintID: "bp-1", SourceNodeID: "n1", Content: "hello", CreatedAt: now}
	if err := s.CreateArtifact(art); err != nil {
		t.Fatalf("CreateArtifact failed: %v", err)
	}

	if err := s.DeleteBlueprint("bp-1"); err != nil {
		t.Fatalf("DeleteBlueprint failed: %v", err)
	}

	if _, err := s.GetBlueprint("bp-1"); err != ErrNotFound {
		t.Errorf("expected blueprint gone, got %v", err)
	}
	if _, err := s.GetNode("n1"); err != ErrNotFound {
		t.Errorf("expected node gone, got %v", err)
	}
	if _, err := s.GetExecution("e1"); err != ErrNotFound {
		t.Errorf("expected execution gone, got %v", err)
	}
}

func TestCreateNodeShiftsOrdinals(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}

	now := time.Now()
	n0 := &types.MacroNode{ID: "n0", BlueprintID: "bp-1", Order: 0, Title: "zero", CreatedAt: now, UpdatedAt: now}
	n1 := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 1, Title: "one", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n0); err != nil {
		t.Fatalf("CreateNode n0 failed: %v", err)
	}
	if err := s.CreateNode(n1); err != nil {
		t.Fatalf("CreateNode n1 failed: %v", err)
	}

	// Insert at ordinal 1: n1 should shift to 2, n0 stays at 0.
	mid := &types.MacroNode{ID: "mid", BlueprintID: "bp-1", Order: 1, Title: "mid", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(mid); err != nil {
		t.Fatalf("CreateNode mid failed: %v", err)
	}

	got0, err := s.GetNode("n0")
	if err != nil {
		t.Fatalf("GetNode n0 failed: %v", err)
	}
	gotMid, err := s.GetNode("mid")
	if err != nil {
		t.Fatalf("GetNode mid failed: %v", err)
	}
	got1, err := s.GetNode("n1")
	if err != nil {
		t.Fatalf("GetNode n1 failed: %v", err)
	}

	if got0.Order != 0 {
		t.Errorf("expected n0 order 0, got %d", got0.Order)
	}
	if gotMid.Order != 1 {
		t.Errorf("expected mid order 1, got %d", gotMid.Order)
	}
	if got1.Order != 2 {
		t.Errorf("expected n1 order shifted to 2, got %d", got1.Order)
	}
}

func TestCreateNodeRejectsForeignBlueprintDependency(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp1 := newTestBlueprint("bp-1")
	bp2 := newTestBlueprint("bp-2")
	if err := s.CreateBlueprint(bp1); err != nil {
		t.Fatalf("CreateBlueprint bp1 failed: %v", err)
	}
	if err := s.CreateBlueprint(bp2); err != nil {
		t.Fatalf("CreateBlueprint bp2 failed: %v", err)
	}

	now := time.Now()
	foreign := &types.MacroNode{ID: "foreign", BlueprintID: "bp-2", Order: 0, Title: "foreign", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(foreign); err != nil {
		t.Fatalf("CreateNode foreign failed: %v", err)
	}

	n := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 0, Title: "n1",
		Dependencies: []string{"foreign"}, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n); err == nil {
		t.Fatal("expected cross-blueprint dependency to be rejected")
	}
}

func TestCreateExecutionRejectsNonRunningStatus(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	now := time.Now()
	n := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 0, Title: "n1", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	exec := &types.NodeExecution{ID: "e1", NodeID: "n1", BlueprintID: "bp-1", Type: types.ExecutionPrimary,
		Status: types.ExecDone, StartedAt: now}
	if err := s.CreateExecution(exec); err == nil {
		t.Fatal("expected CreateExecution with status=done to be rejected")
	}
}

func TestArtifactDeleteThenRecreateYieldsNewID(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	now := time.Now()
	n := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 0, Title: "n1", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	a1 := &types.Artifact{ID: "a1", BlueprintID: "bp-1", SourceNodeID: "n1", Content: "same content", CreatedAt: now}
	if err := s.CreateArtifact(a1); err != nil {
		t.Fatalf("CreateArtifact failed: %v", err)
	}
	if err := s.DeleteArtifact("a1"); err != nil {
		t.Fatalf("DeleteArtifact failed: %v", err)
	}

	a2 := &types.Artifact{ID: "a2", BlueprintID: "bp-1", SourceNodeID: "n1", Content: "same content", CreatedAt: now}
	if err := s.CreateArtifact(a2); err != nil {
		t.Fatalf("CreateArtifact (recreate) failed: %v", err)
	}

	list, err := s.ListArtifactsForNode("n1", ArtifactDirectionOutput)
	if err != nil {
		t.Fatalf("ListArtifactsForNode failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a2" {
		t.Errorf("expected single artifact with new id a2, got %+v", list)
	}
}

func TestRecoverStaleExecutions(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	now := time.Now()
	n1 := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 0, Title: "n1", Status: types.NodeRunning, CreatedAt: now, UpdatedAt: now}
	n2 := &types.MacroNode{ID: "n2", BlueprintID: "bp-1", Order: 1, Title: "n2", Status: types.NodeRunning, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n1); err != nil {
		t.Fatalf("CreateNode n1 failed: %v", err)
	}
	if err := s.CreateNode(n2); err != nil {
		t.Fatalf("CreateNode n2 failed: %v", err)
	}

	e1 := &types.NodeExecution{ID: "e1", NodeID: "n1", BlueprintID: "bp-1", Type: types.ExecutionPrimary, Status: types.ExecRunning, StartedAt: now}
	e2 := &types.NodeExecution{ID: "e2", NodeID: "n2", BlueprintID: "bp-1", Type: types.ExecutionPrimary, Status: types.ExecRunning, StartedAt: now}
	if err := s.CreateExecution(e1); err != nil {
		t.Fatalf("CreateExecution e1 failed: %v", err)
	}
	if err := s.CreateExecution(e2); err != nil {
		t.Fatalf("CreateExecution e2 failed: %v", err)
	}

	recovered, err := s.RecoverStaleExecutions([]string{"e2"}, now)
	if err != nil {
		t.Fatalf("RecoverStaleExecutions failed: %v", err)
	}
	if recovered != 1 {
		t.Errorf("expected 1 recovered execution, got %d", recovered)
	}

	got1, err := s.GetExecution("e1")
	if err != nil {
		t.Fatalf("GetExecution e1 failed: %v", err)
	}
	if got1.Status != types.ExecFailed {
		t.Errorf("expected e1 failed, got %s", got1.Status)
	}
	gotNode1, err := s.GetNode("n1")
	if err != nil {
		t.Fatalf("GetNode n1 failed: %v", err)
	}
	if gotNode1.Status != types.NodeFailed {
		t.Errorf("expected n1 failed, got %s", gotNode1.Status)
	}

	got2, err := s.GetExecution("e2")
	if err != nil {
		t.Fatalf("GetExecution e2 failed: %v", err)
	}
	if got2.Status != types.ExecRunning {
		t.Errorf("expected e2 still running (skipped), got %s", got2.Status)
	}
}

func TestGetOrphanedQueuedNodes(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	now := time.Now()
	n1 := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 0, Title: "n1", Status: types.NodeQueued, CreatedAt: now, UpdatedAt: now}
	n2 := &types.MacroNode{ID: "n2", BlueprintID: "bp-1", Order: 1, Title: "n2", Status: types.NodePending, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n1); err != nil {
		t.Fatalf("CreateNode n1 failed: %v", err)
	}
	if err := s.CreateNode(n2); err != nil {
		t.Fatalf("CreateNode n2 failed: %v", err)
	}

	orphans, err := s.GetOrphanedQueuedNodes()
	if err != nil {
		t.Fatalf("GetOrphanedQueuedNodes failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != "n1" {
		t.Errorf("expected only n1 queued, got %+v", orphans)
	}
}

func TestReorderNodes(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	bp := newTestBlueprint("bp-1")
	if err := s.CreateBlueprint(bp); err != nil {
		t.Fatalf("CreateBlueprint failed: %v", err)
	}
	now := time.Now()
	n0 := &types.MacroNode{ID: "n0", BlueprintID: "bp-1", Order: 0, Title: "zero", CreatedAt: now, UpdatedAt: now}
	n1 := &types.MacroNode{ID: "n1", BlueprintID: "bp-1", Order: 1, Title: "one", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateNode(n0); err != nil {
		t.Fatalf("CreateNode n0 failed: %v", err)
	}
	if err := s.CreateNode(n1); err != nil {
		t.Fatalf("CreateNode n1 failed: %v", err)
	}

	err := s.ReorderNodes("bp-1", []NodeOrder{{ID: "n0", Order: 1}, {ID: "n1", Order: 0}}, time.Now())
	if err != nil {
		t.Fatalf("ReorderNodes failed: %v", err)
	}

	got0, _ := s.GetNode("n0")
	got1, _ := s.GetNode("n1")
	if got0.Order != 1 || got1.Order != 0 {
		t.Errorf("expected swapped orders, got n0=%d n1=%d", got0.Order, got1.Order)
	}
}
