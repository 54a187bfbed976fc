package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/macroforge/macroforge/internal/types"
)

// ExecutionPatch is a partial update; nil fields are left unchanged.
type ExecutionPatch struct {
	SessionID         *string
	Status            *types.ExecutionStatus
	OutputSummary     *string
	ContextTokensUsed **int
	CliPID            **int
	CompletedAt       **time.Time
	CompactCount      **int
	PeakTokens        **int
	ContextPressure   *types.ContextPressure
	FailureReason     *types.FailureReason
}

// CreateExecution inserts a new execution row. Per the engine's design
// decision (spec §9 Open Questions), the engine is the only writer of
// executions and it only ever creates them with status=running; creating
// one with a pre-set terminal status is rejected so no caller can bypass
// reconciliation.
func (s *Store) CreateExecution(e *types.NodeExecution) error {
	if e.Status != types.ExecRunning {
		return fmt.Errorf("store: CreateExecution: %w: executions may only be created with status=running", ErrConflict)
	}
	_, err := s.db.Exec(`
		INSERT INTO node_executions (id, node_id, blueprint_id, session_id, type, status,
			input_context, output_summary, context_tokens_used, parent_execution_id, cli_pid,
			started_at, completed_at, blocker_info, task_summary, reported_status, reported_reason,
			failure_reason, compact_count, peak_tokens, context_pressure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.NodeID, e.BlueprintID, e.SessionID, e.Type, e.Status, e.InputContext,
		e.OutputSummary, nullInt(e.ContextTokensUsed), nullStrPtr(e.ParentExecutionID),
		nullInt(e.CliPID), e.StartedAt, nullTime(e.CompletedAt), e.BlockerInfo, e.TaskSummary,
		reportedStatusStr(e.ReportedStatus), e.ReportedReason, failureReasonStr(e.FailureReason),
		nullInt(e.CompactCount), nullInt(e.PeakTokens), pressureStr(e.ContextPressure))
	if err != nil {
		return fmt.Errorf("store: CreateExecution: %w", classifyWriteErr(err))
	}
	return nil
}

func reportedStatusStr(r *types.ReportedStatus) string {
	if r == nil {
		return ""
	}
	return string(*r)
}

func failureReasonStr(r *types.FailureReason) string {
	if r == nil {
		return ""
	}
	return string(*r)
}

func pressureStr(p *types.ContextPressure) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

const executionColumns = `id, node_id, blueprint_id, session_id, type, status, input_context,
	output_summary, context_tokens_used, parent_execution_id, cli_pid, started_at, completed_at,
	blocker_info, task_summary, reported_status, reported_reason, failure_reason, compact_count,
	peak_tokens, context_pressure`

func scanExecutionRow(scan func(...interface{}) error) (*types.NodeExecution, error) {
	var e types.NodeExecution
	var contextTokens, cliPID, compactCount, peakTokens sql.NullInt64
	var completedAt sql.NullTime
	var parentExecID sql.NullString
	var reportedStatus, failureReason, pressure string

	err := scan(&e.ID, &e.NodeID, &e.BlueprintID, &e.SessionID, &e.Type, &e.Status, &e.InputContext,
		&e.OutputSummary, &contextTokens, &parentExecID, &cliPID, &e.StartedAt, &completedAt,
		&e.BlockerInfo, &e.TaskSummary, &reportedStatus, &e.ReportedReason, &failureReason,
		&compactCount, &peakTokens, &pressure)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan execution: %w", err)
	}

	e.ContextTokensUsed = intPtr(contextTokens)
	e.CliPID = intPtr(cliPID)
	e.CompletedAt = timePtr(completedAt)
	e.ParentExecutionID = strPtrFromNull(parentExecID)
	e.CompactCount = intPtr(compactCount)
	e.PeakTokens = intPtr(peakTokens)
	if reportedStatus != "" {
		v := types.ReportedStatus(reportedStatus)
		e.ReportedStatus = &v
	}
	if failureReason != "" {
		v := types.FailureReason(failureReason)
		e.FailureReason = &v
	}
	if pressure != "" {
		v := types.ContextPressure(pressure)
		e.ContextPressure = &v
	}
	return &e, nil
}

func (s *Store) GetExecution(id string) (*types.NodeExecution, error) {
	row := s.db.QueryRow("SELECT "+executionColumns+" FROM node_executions WHERE id = ?", id)
	return scanExecutionRow(row.Scan)
}

// ListExecutionsForNode returns a node's executions in chronological order.
func (s *Store) ListExecutionsForNode(nodeID string) ([]*types.NodeExecution, error) {
	rows, err := s.db.Query("SELECT "+executionColumns+" FROM node_executions WHERE node_id = ? ORDER BY started_at ASC", nodeID)
	if err != nil {
		return nil, fmt.Errorf("store: ListExecutionsForNode: %w", err)
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

// GetExecutionBySessionID reverse-looks-up an execution by the external
// agent's session id.
func (s *Store) GetExecutionBySessionID(sessionID string) (*types.NodeExecution, error) {
	row := s.db.QueryRow("SELECT "+executionColumns+" FROM node_executions WHERE session_id = ? ORDER BY started_at DESC LIMIT 1", sessionID)
	return scanExecutionRow(row.Scan)
}

// GetNodeBySessionID reverse-looks-up a node via its latest execution's
// session id.
func (s *Store) GetNodeBySessionID(sessionID string) (*types.MacroNode, error) {
	e, err := s.GetExecutionBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	return s.GetNode(e.NodeID)
}

// UpdateExecution applies a partial patch.
func (s *Store) UpdateExecution(id string, patch ExecutionPatch) error {
	set := make([]string, 0, 8)
	var args []interface{}

	if patch.SessionID != nil {
		set = append(set, "session_id = ?")
		args = append(args, *patch.SessionID)
	}
	if patch.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.OutputSummary != nil {
		set = append(set, "output_summary = ?")
		args = append(args, *patch.OutputSummary)
	}
	if patch.ContextTokensUsed != nil {
		set = append(set, "context_tokens_used = ?")
		args = append(args, nullInt(*patch.ContextTokensUsed))
	}
	if patch.CliPID != nil {
		set = append(set, "cli_pid = ?")
		args = append(args, nullInt(*patch.CliPID))
	}
	if patch.CompletedAt != nil {
		set = append(set, "completed_at = ?")
		args = append(args, nullTime(*patch.CompletedAt))
	}
	if patch.CompactCount != nil {
		set = append(set, "compact_count = ?")
		args = append(args, nullInt(*patch.CompactCount))
	}
	if patch.PeakTokens != nil {
		set = append(set, "peak_tokens = ?")
		args = append(args, nullInt(*patch.PeakTokens))
	}
	if patch.ContextPressure != nil {
		set = append(set, "context_pressure = ?")
		args = append(args, *patch.ContextPressure)
	}
	if patch.FailureReason != nil {
		set = append(set, "failure_reason = ?")
		args = append(args, *patch.FailureReason)
	}
	if len(set) == 0 {
		return nil
	}
	query := "UPDATE node_executions SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("store: UpdateExecution: %w", err)
	}
	return requireRowAffected(res)
}

// SetBlocker records a blocker callback.
func (s *Store) SetBlocker(executionID, blockerInfo string) error {
	res, err := s.db.Exec("UPDATE node_executions SET blocker_info = ? WHERE id = ?", blockerInfo, executionID)
	if err != nil {
		return fmt.Errorf("store: SetBlocker: %w", err)
	}
	return requireRowAffected(res)
}

// SetTaskSummary records a task-summary callback.
func (s *Store) SetTaskSummary(executionID, summary string) error {
	res, err := s.db.Exec("UPDATE node_executions SET task_summary = ? WHERE id = ?", summary, executionID)
	if err != nil {
		return fmt.Errorf("store: SetTaskSummary: %w", err)
	}
	return requireRowAffected(res)
}

// SetReportedStatus records the agent's authoritative terminal status.
func (s *Store) SetReportedStatus(executionID string, status types.ReportedStatus, reason string) error {
	res, err := s.db.Exec("UPDATE node_executions SET reported_status = ?, reported_reason = ? WHERE id = ?",
		status, reason, executionID)
	if err != nil {
		return fmt.Errorf("store: SetReportedStatus: %w", err)
	}
	return requireRowAffected(res)
}
