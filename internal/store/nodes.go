package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/macroforge/macroforge/internal/types"
)

// NodePatch is a partial update; nil fields are left unchanged.
type NodePatch struct {
	Title            *string
	Description      *string
	Prompt           *string
	Dependencies     *[]string
	Status           *types.NodeStatus
	Error            *string
	EstimatedMinutes **int
	ActualMinutes    **int
	ParallelGroup    *string
	AgentType        *string
}

// NodeOrder is one entry of a batch reorder request.
type NodeOrder struct {
	ID    string
	Order int
}

func encodeDeps(deps []string) string {
	if deps == nil {
		deps = []string{}
	}
	b, _ := json.Marshal(deps)
	return string(b)
}

func decodeDeps(raw string) []string {
	var deps []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &deps); err != nil {
		return []string{}
	}
	return deps
}

// CreateNode validates that every dependency id belongs to the same
// blueprint, shifts the ordinal of every node at-or-above the requested
// position by +1, and inserts with default status pending.
func (s *Store) CreateNode(n *types.MacroNode) error {
	if n.Status == "" {
		n.Status = types.NodePending
	}
	return s.withTx(func(tx *sql.Tx) error {
		if len(n.Dependencies) > 0 {
			placeholders := make([]interface{}, 0, len(n.Dependencies)+1)
			placeholders = append(placeholders, n.BlueprintID)
			q := "SELECT COUNT(*) FROM macro_nodes WHERE blueprint_id = ? AND id IN ("
			for i, d := range n.Dependencies {
				if i > 0 {
					q += ","
				}
				q += "?"
				placeholders = append(placeholders, d)
			}
			q += ")"
			var count int
			if err := tx.QueryRow(q, placeholders...).Scan(&count); err != nil {
				return fmt.Errorf("validate dependencies: %w", err)
			}
			if count != len(n.Dependencies) {
				return fmt.Errorf("%w: dependency references a node outside this blueprint", ErrForeignKey)
			}
		}

		if _, err := tx.Exec(`UPDATE macro_nodes SET node_order = node_order + 1
			WHERE blueprint_id = ? AND node_order >= ?`, n.BlueprintID, n.Order); err != nil {
			return fmt.Errorf("shift ordinals: %w", err)
		}

		_, err := tx.Exec(`
			INSERT INTO macro_nodes (id, blueprint_id, node_order, title, description, prompt,
				dependencies, status, error, estimated_minutes, actual_minutes, parallel_group,
				agent_type, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.BlueprintID, n.Order, n.Title, n.Description, n.Prompt,
			encodeDeps(n.Dependencies), n.Status, n.Error, nullInt(n.EstimatedMinutes),
			nullInt(n.ActualMinutes), n.ParallelGroup, n.AgentType, n.CreatedAt, n.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert node: %w", classifyWriteErr(err))
		}
		return nil
	})
}

func (s *Store) GetNode(id string) (*types.MacroNode, error) {
	return s.scanNode(s.db.QueryRow(`
		SELECT id, blueprint_id, node_order, title, description, prompt, dependencies, status,
			error, estimated_minutes, actual_minutes, parallel_group, agent_type, created_at, updated_at
		FROM macro_nodes WHERE id = ?`, id))
}

func (s *Store) scanNode(row *sql.Row) (*types.MacroNode, error) {
	var n types.MacroNode
	var deps string
	var estMin, actMin sql.NullInt64
	err := row.Scan(&n.ID, &n.BlueprintID, &n.Order, &n.Title, &n.Description, &n.Prompt,
		&deps, &n.Status, &n.Error, &estMin, &actMin, &n.ParallelGroup, &n.AgentType,
		&n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan node: %w", err)
	}
	n.Dependencies = decodeDeps(deps)
	n.EstimatedMinutes = intPtr(estMin)
	n.ActualMinutes = intPtr(actMin)
	return &n, nil
}

func (s *Store) listNodesForBlueprint(blueprintID string) ([]*types.MacroNode, error) {
	rows, err := s.db.Query(`
		SELECT id, blueprint_id, node_order, title, description, prompt, dependencies, status,
			error, estimated_minutes, actual_minutes, parallel_group, agent_type, created_at, updated_at
		FROM macro_nodes WHERE blueprint_id = ? ORDER BY node_order ASC`, blueprintID)
	if err != nil {
		return nil, fmt.Errorf("store: list nodes: %w", err)
	}
	defer rows.Close()

	var result []*types.MacroNode
	for rows.Next() {
		var n types.MacroNode
		var deps string
		var estMin, actMin sql.NullInt64
		if err := rows.Scan(&n.ID, &n.BlueprintID, &n.Order, &n.Title, &n.Description, &n.Prompt,
			&deps, &n.Status, &n.Error, &estMin, &actMin, &n.ParallelGroup, &n.AgentType,
			&n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan node row: %w", err)
		}
		n.Dependencies = decodeDeps(deps)
		n.EstimatedMinutes = intPtr(estMin)
		n.ActualMinutes = intPtr(actMin)
		result = append(result, &n)
	}
	return result, rows.Err()
}

// UpdateNode applies a partial patch and bumps updatedAt.
func (s *Store) UpdateNode(id string, patch NodePatch, now time.Time) error {
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
	if patch.Prompt != nil {
		set += ", prompt = ?"
		args = append(args, *patch.Prompt)
	}
	if patch.Dependencies != nil {
		set += ", dependencies = ?"
		args = append(args, encodeDeps(*patch.Dependencies))
	}
	if patch.Status != nil {
		set += ", status = ?"
		args = append(args, *patch.Status)
	}
	if patch.Error != nil {
		set += ", error = ?"
		args = append(args, *patch.Error)
	}
	if patch.EstimatedMinutes != nil {
		set += ", estimated_minutes = ?"
		args = append(args, nullInt(*patch.EstimatedMinutes))
	}
	if patch.ActualMinutes != nil {
		set += ", actual_minutes = ?"
		args = append(args, nullInt(*patch.ActualMinutes))
	}
	if patch.ParallelGroup != nil {
		set += ", parallel_group = ?"
		args = append(args, *patch.ParallelGroup)
	}
	if patch.AgentType != nil {
		set += ", agent_type = ?"
		args = append(args, *patch.AgentType)
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE macro_nodes SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("store: UpdateNode: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteNode is local: dependents keep the dangling id, which is filtered
// out whenever dependencies are resolved (see executor.ResolveDependencies).
func (s *Store) DeleteNode(id string) error {
	res, err := s.db.Exec("DELETE FROM macro_nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: DeleteNode: %w", err)
	}
	return requireRowAffected(res)
}

// ReorderNodes writes a full (id, order) list atomically.
func (s *Store) ReorderNodes(blueprintID string, orders []NodeOrder, now time.Time) error {
	return s.withTx(func(tx *sql.Tx) error {
		for _, o := range orders {
			res, err := tx.Exec(`UPDATE macro_nodes SET node_order = ?, updated_at = ?
				WHERE id = ? AND blueprint_id = ?`, o.Order, now, o.ID, blueprintID)
			if err != nil {
				return fmt.Errorf("reorder node %s: %w", o.ID, err)
			}
			if err := requireRowAffected(res); err != nil {
				return err
			}
		}
		return nil
	})
}
