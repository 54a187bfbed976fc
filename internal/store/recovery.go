package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/macroforge/macroforge/internal/types"
)

// StaleExecution is a running execution joined with its owning blueprint's
// project directory, as needed to re-probe the agent's working directory
// for a session log after a restart.
type StaleExecution struct {
	Execution  *types.NodeExecution
	ProjectCwd string
}

// GetStaleRunningExecutions returns every execution with status=running,
// joined with its owning blueprint's project directory.
func (s *Store) GetStaleRunningExecutions() ([]*StaleExecution, error) {
	rows, err := s.db.Query(`
		SELECT `+executionColumns2("e")+`, b.project_cwd
		FROM node_executions e JOIN blueprints b ON b.id = e.blueprint_id
		WHERE e.status = ?`, types.ExecRunning)
	if err != nil {
		return nil, fmt.Errorf("store: GetStaleRunningExecutions: %w", err)
	}
	defer rows.Close()

	var result []*StaleExecution
	for rows.Next() {
		var cwd string
		e, err := scanExecutionRow(func(dest ...interface{}) error {
			return rows.Scan(append(dest, &cwd)...)
		})
		if err != nil {
			return nil, err
		}
		result = append(result, &StaleExecution{Execution: e, ProjectCwd: cwd})
	}
	return result, rows.Err()
}

// executionColumns2 renders the execution column list with a table alias
// prefix, since GetStaleRunningExecutions joins against blueprints.
func executionColumns2(alias string) string {
	cols := []string{"id", "node_id", "blueprint_id", "session_id", "type", "status", "input_context",
		"output_summary", "context_tokens_used", "parent_execution_id", "cli_pid", "started_at",
		"completed_at", "blocker_info", "task_summary", "reported_status", "reported_reason",
		"failure_reason", "compact_count", "peak_tokens", "context_pressure"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

// GetOrphanedQueuedNodes returns nodes the Store shows as queued, which
// cannot match any in-memory blueprint queue entry after a restart.
func (s *Store) GetOrphanedQueuedNodes() ([]*types.MacroNode, error) {
	rows, err := s.db.Query(`
		SELECT id, blueprint_id, node_order, title, description, prompt, dependencies, status,
			error, estimated_minutes, actual_minutes, parallel_group, agent_type, created_at, updated_at
		FROM macro_nodes WHERE status = ?`, types.NodeQueued)
	if err != nil {
		return nil, fmt.Errorf("store: GetOrphanedQueuedNodes: %w", err)
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
			return nil, fmt.Errorf("store: scan orphan node: %w", err)
		}
		n.Dependencies = decodeDeps(deps)
		n.EstimatedMinutes = intPtr(estMin)
		n.ActualMinutes = intPtr(actMin)
		result = append(result, &n)
	}
	return result, rows.Err()
}

// GetRecentRestartFailedExecutions returns failed executions whose
// outputSummary contains the restart sentinel, within the lookback window
// (cohort B of startup recovery — executions a previous too-eager restart
// may have wrongly killed).
func (s *Store) GetRecentRestartFailedExecutions(lookback time.Duration, now time.Time) ([]*types.NodeExecution, error) {
	cutoff := now.Add(-lookback)
	rows, err := s.db.Query("SELECT "+executionColumns+` FROM node_executions
		WHERE status = ? AND output_summary LIKE ? AND started_at >= ?`,
		types.ExecFailed, "%"+types.RestartRecoverySentinel+"%", cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: GetRecentRestartFailedExecutions: %w", err)
	}
	defer rows.Close()

	var result []*types.NodeExecution
	for rows.Next() {
		e, err := scanExecutionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// RecoverStaleExecutions updates every running execution not in skipIDs to
// failed with the restart sentinel in outputSummary, and sets its node to
// failed with a matching error, in a single transaction. Returns the number
// of executions recovered.
func (s *Store) RecoverStaleExecutions(skipIDs []string, now time.Time) (int, error) {
	skip := make(map[string]bool, len(skipIDs))
	for _, id := range skipIDs {
		skip[id] = true
	}

	var recovered int
	err := s.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, node_id FROM node_executions WHERE status = ?", types.ExecRunning)
		if err != nil {
			return fmt.Errorf("query running executions: %w", err)
		}
		type pair struct{ execID, nodeID string }
		var pairs []pair
		for rows.Next() {
			var p pair
			if err := rows.Scan(&p.execID, &p.nodeID); err != nil {
				rows.Close()
				return fmt.Errorf("scan running execution: %w", err)
			}
			pairs = append(pairs, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, p := range pairs {
			if skip[p.execID] {
				continue
			}
			if _, err := tx.Exec(`UPDATE node_executions SET status = ?, output_summary = ?, completed_at = ?
				WHERE id = ?`, types.ExecFailed, types.RestartRecoverySentinel, now, p.execID); err != nil {
				return fmt.Errorf("fail execution %s: %w", p.execID, err)
			}
			if _, err := tx.Exec(`UPDATE macro_nodes SET status = ?, error = ?, updated_at = ?
				WHERE id = ?`, types.NodeFailed, types.RestartRecoverySentinel, now, p.nodeID); err != nil {
				return fmt.Errorf("fail node for execution %s: %w", p.execID, err)
			}
			recovered++
		}
		return nil
	})
	return recovered, err
}
