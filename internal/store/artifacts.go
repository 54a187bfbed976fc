package store

import (
	"database/sql"
	"fmt"

	"github.com/macroforge/macroforge/internal/types"
)

// ArtifactDirection selects which side of an artifact's edge a node query
// resolves against.
type ArtifactDirection int

const (
	// ArtifactDirectionOutput returns artifacts produced BY a node (its
	// sourceNodeId equals the node).
	ArtifactDirectionOutput ArtifactDirection = iota
	// ArtifactDirectionInput returns artifacts consumed BY a node (its
	// targetNodeId equals the node).
	ArtifactDirectionInput
)

// CreateArtifact inserts a new artifact. IDs are never reused: deleting an
// artifact and creating one with identical content yields a new id because
// the caller always mints a fresh UUID.
func (s *Store) CreateArtifact(a *types.Artifact) error {
	if a.Type == "" {
		a.Type = types.ArtifactHandoffSummary
	}
	_, err := s.db.Exec(`
		INSERT INTO artifacts (id, blueprint_id, source_node_id, target_node_id, type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BlueprintID, a.SourceNodeID, nullStrPtr(a.TargetNodeID), a.Type, a.Content, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: CreateArtifact: %w", classifyWriteErr(err))
	}
	return nil
}

func nullStrPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// ListArtifactsForNode returns a node's output or input artifacts, ordered
// by createdAt ascending.
func (s *Store) ListArtifactsForNode(nodeID string, direction ArtifactDirection) ([]*types.Artifact, error) {
	column := "source_node_id"
	if direction == ArtifactDirectionInput {
		column = "target_node_id"
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id, blueprint_id, source_node_id, target_node_id, type, content, created_at
		FROM artifacts WHERE %s = ? ORDER BY created_at ASC`, column), nodeID)
	if err != nil {
		return nil, fmt.Errorf("store: ListArtifactsForNode: %w", err)
	}
	defer rows.Close()

	var result []*types.Artifact
	for rows.Next() {
		var a types.Artifact
		var target sql.NullString
		if err := rows.Scan(&a.ID, &a.BlueprintID, &a.SourceNodeID, &target, &a.Type, &a.Content, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan artifact: %w", err)
		}
		a.TargetNodeID = strPtrFromNull(target)
		result = append(result, &a)
	}
	return result, rows.Err()
}

// DeleteArtifact removes a single artifact by id.
func (s *Store) DeleteArtifact(id string) error {
	res, err := s.db.Exec("DELETE FROM artifacts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: DeleteArtifact: %w", err)
	}
	return requireRowAffected(res)
}
