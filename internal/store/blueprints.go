package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/macroforge/macroforge/internal/types"
)

// BlueprintFilter narrows ListBlueprints.
type BlueprintFilter struct {
	Status            types.BlueprintStatus // empty = any
	ProjectCwd        string                // empty = any
	IncludeArchived   bool
}

// BlueprintPatch is a partial update; nil fields are left unchanged.
type BlueprintPatch struct {
	Title       *string
	Description *string
	ProjectCwd  *string
	Status      *types.BlueprintStatus
	Starred     *bool
}

// CreateBlueprint inserts a new blueprint. ID/CreatedAt/UpdatedAt are
// assigned by the caller (the engine mints UUIDs); Status defaults to
// draft if unset.
func (s *Store) CreateBlueprint(bp *types.Blueprint) error {
	if bp.Status == "" {
		bp.Status = types.BlueprintDraft
	}
	now := bp.CreatedAt
	if now.IsZero() {
		return fmt.Errorf("store: CreateBlueprint: CreatedAt is required")
	}
	_, err := s.db.Exec(`
		INSERT INTO blueprints (id, title, description, project_cwd, status, starred, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bp.ID, bp.Title, bp.Description, bp.ProjectCwd, bp.Status, bp.Starred,
		nullTime(bp.ArchivedAt), bp.CreatedAt, bp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: CreateBlueprint: %w", classifyWriteErr(err))
	}
	return nil
}

// GetBlueprint returns a blueprint with its nodes hydrated in order
// ascending, each node's artifacts and executions hydrated in
// createdAt/startedAt ascending.
func (s *Store) GetBlueprint(id string) (*types.Blueprint, error) {
	bp, err := s.scanBlueprint(s.db.QueryRow(`
		SELECT id, title, description, project_cwd, status, starred, archived_at, created_at, updated_at
		FROM blueprints WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	nodes, err := s.listNodesForBlueprint(bp.ID)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		artifacts, err := s.ListArtifactsForNode(n.ID, ArtifactDirectionOutput)
		if err != nil {
			return nil, err
		}
		n.Artifacts = artifacts
		execs, err := s.ListExecutionsForNode(n.ID)
		if err != nil {
			return nil, err
		}
		n.Executions = execs
	}
	bp.Nodes = nodes
	return bp, nil
}

func (s *Store) scanBlueprint(row *sql.Row) (*types.Blueprint, error) {
	var bp types.Blueprint
	var archivedAt sql.NullTime
	err := row.Scan(&bp.ID, &bp.Title, &bp.Description, &bp.ProjectCwd, &bp.Status,
		&bp.Starred, &archivedAt, &bp.CreatedAt, &bp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan blueprint: %w", err)
	}
	bp.ArchivedAt = timePtr(archivedAt)
	return &bp, nil
}

// ListBlueprints lists blueprints matching filter. Starred results sort
// before unstarred, then by updatedAt desc.
func (s *Store) ListBlueprints(f BlueprintFilter) ([]*types.Blueprint, error) {
	query := `SELECT id, title, description, project_cwd, status, starred, archived_at, created_at, updated_at FROM blueprints WHERE 1=1`
	var args []interface{}

	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.ProjectCwd != "" {
		query += " AND project_cwd = ?"
		args = append(args, f.ProjectCwd)
	}
	if !f.IncludeArchived {
		query += " AND archived_at IS NULL"
	}
	query += " ORDER BY starred DESC, updated_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: ListBlueprints: %w", err)
	}
	defer rows.Close()

	var result []*types.Blueprint
	for rows.Next() {
		var bp types.Blueprint
		var archivedAt sql.NullTime
		if err := rows.Scan(&bp.ID, &bp.Title, &bp.Description, &bp.ProjectCwd, &bp.Status,
			&bp.Starred, &archivedAt, &bp.CreatedAt, &bp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan blueprint row: %w", err)
		}
		bp.ArchivedAt = timePtr(archivedAt)
		result = append(result, &bp)
	}
	return result, rows.Err()
}

// UpdateBlueprint applies a partial patch and bumps updatedAt.
func (s *Store) UpdateBlueprint(id string, patch BlueprintPatch, now time.Time) error {
	return s.withTx(func(tx *sql.Tx) error {
		set := "updated_at = ?"
		args := []interface{}{now}

		if patch.Title != nil {
			set += ", title = ?"
			args = append(args, *patch.Title)
		}
		if patch.Description != nil {
			set += ", description = ?"
			args = append(args, *patch.Description)
		}
		if patch.ProjectCwd != nil {
			set += ", project_cwd = ?"
			args = append(args, *patch.ProjectCwd)
		}
		if patch.Status != nil {
			set += ", status = ?"
			args = append(args, *patch.Status)
		}
		if patch.Starred != nil {
			set += ", starred = ?"
			args = append(args, *patch.Starred)
		}
		args = append(args, id)

		res, err := tx.Exec("UPDATE blueprints SET "+set+" WHERE id = ?", args...)
		if err != nil {
			return fmt.Errorf("update blueprint: %w", err)
		}
		return requireRowAffected(res)
	})
}

// ArchiveBlueprint sets archivedAt; Unarchive clears it.
func (s *Store) ArchiveBlueprint(id string, now time.Time) error {
	res, err := s.db.Exec("UPDATE blueprints SET archived_at = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return fmt.Errorf("store: ArchiveBlueprint: %w", err)
	}
	return requireRowAffected(res)
}

func (s *Store) UnarchiveBlueprint(id string, now time.Time) error {
	res, err := s.db.Exec("UPDATE blueprints SET archived_at = NULL, updated_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("store: UnarchiveBlueprint: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteBlueprint cascades to every node, artifact, execution and
// related-session row referencing it, atomically. Each of those tables
// references blueprints(id) through its blueprint_id column with ON DELETE
// CASCADE in schema.sql; the rows are also deleted here explicitly by
// blueprint_id, in one transaction, before the blueprint row itself.
func (s *Store) DeleteBlueprint(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM artifacts WHERE blueprint_id = ?",
			"DELETE FROM node_executions WHERE blueprint_id = ?",
			"DELETE FROM related_sessions WHERE blueprint_id = ?",
			"DELETE FROM macro_nodes WHERE blueprint_id = ?",
			"DELETE FROM blueprints WHERE id = ?",
		} {
			if _, err := tx.Exec(stmt, id); err != nil {
				return fmt.Errorf("cascade delete: %w", err)
			}
		}
		return nil
	})
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
