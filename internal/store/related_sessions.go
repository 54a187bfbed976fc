package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/macroforge/macroforge/internal/types"
)

// CreateRelatedSession inserts an audit record for an auxiliary agent call
// (enrich, re-evaluate, split, evaluate) attached to a node.
func (s *Store) CreateRelatedSession(rs *types.RelatedSession) error {
	_, err := s.db.Exec(`
		INSERT INTO related_sessions (id, node_id, blueprint_id, session_id, type, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.NodeID, rs.BlueprintID, rs.SessionID, rs.Type, rs.StartedAt, nullTime(rs.CompletedAt))
	if err != nil {
		return fmt.Errorf("store: CreateRelatedSession: %w", classifyWriteErr(err))
	}
	return nil
}

// CompleteRelatedSession stamps completedAt.
func (s *Store) CompleteRelatedSession(id string, now time.Time) error {
	res, err := s.db.Exec("UPDATE related_sessions SET completed_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("store: CompleteRelatedSession: %w", err)
	}
	return requireRowAffected(res)
}

// ListRelatedSessionsForNode returns a node's auxiliary sessions.
func (s *Store) ListRelatedSessionsForNode(nodeID string) ([]*types.RelatedSession, error) {
	rows, err := s.db.Query(`
		SELECT id, node_id, blueprint_id, session_id, type, started_at, completed_at
		FROM related_sessions WHERE node_id = ? ORDER BY started_at ASC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("store: ListRelatedSessionsForNode: %w", err)
	}
	defer rows.Close()

	var result []*types.RelatedSession
	for rows.Next() {
		var rs types.RelatedSession
		var completedAt sql.NullTime
		if err := rows.Scan(&rs.ID, &rs.NodeID, &rs.BlueprintID, &rs.SessionID, &rs.Type,
			&rs.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("store: scan related session: %w", err)
		}
		rs.CompletedAt = timePtr(completedAt)
		result = append(result, &rs)
	}
	return result, rows.Err()
}
