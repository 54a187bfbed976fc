// Package types holds the persistent data model shared by every engine
// component: blueprints, their macro nodes, artifacts, executions and
// related sessions.
package types

import "time"

// BlueprintStatus is the lifecycle state of a Blueprint.
type BlueprintStatus string

const (
	BlueprintDraft    BlueprintStatus = "draft"
	BlueprintApproved BlueprintStatus = "approved"
	BlueprintRunning  BlueprintStatus = "running"
	BlueprintDone     BlueprintStatus = "done"
	BlueprintFailed   BlueprintStatus = "failed"
	BlueprintPaused   BlueprintStatus = "paused"
)

// NodeStatus is the lifecycle state of a Macro Node.
type NodeStatus string

const (
	NodePending NodeStatus = "pending"
	NodeQueued  NodeStatus = "queued"
	NodeRunning NodeStatus = "running"
	NodeDone    NodeStatus = "done"
	NodeFailed  NodeStatus = "failed"
	NodeBlocked NodeStatus = "blocked"
	NodeSkipped NodeStatus = "skipped"
)

// ArtifactType distinguishes a handoff summary from an ad-hoc audit record.
type ArtifactType string

const (
	ArtifactHandoffSummary ArtifactType = "handoff_summary"
	ArtifactCustom         ArtifactType = "custom"
)

// ExecutionType records why an execution was created.
type ExecutionType string

const (
	ExecutionPrimary      ExecutionType = "primary"
	ExecutionRetry        ExecutionType = "retry"
	ExecutionContinuation ExecutionType = "continuation"
)

// ExecutionStatus is the lifecycle state of a Node Execution.
type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "running"
	ExecDone      ExecutionStatus = "done"
	ExecFailed    ExecutionStatus = "failed"
	ExecCancelled ExecutionStatus = "cancelled"
)

// ReportedStatus is the terminal status the agent declared via callback.
type ReportedStatus string

const (
	ReportedDone    ReportedStatus = "done"
	ReportedFailed  ReportedStatus = "failed"
	ReportedBlocked ReportedStatus = "blocked"
)

// FailureReason classifies why an execution ended badly.
type FailureReason string

const (
	FailureContextExhausted FailureReason = "context_exhausted"
	FailureOutputTokenLimit FailureReason = "output_token_limit"
	FailureTimeout          FailureReason = "timeout"
	FailureHung             FailureReason = "hung"
	FailureError            FailureReason = "error"
)

// ContextPressure is a coarse health signal derived from the session log.
type ContextPressure string

const (
	PressureNone     ContextPressure = "none"
	PressureModerate ContextPressure = "moderate"
	PressureHigh     ContextPressure = "high"
	PressureCritical ContextPressure = "critical"
)

// RelatedSessionType distinguishes the kind of auxiliary agent call a
// Related Session records.
type RelatedSessionType string

const (
	RelatedEnrich        RelatedSessionType = "enrich"
	RelatedReevaluate    RelatedSessionType = "reevaluate"
	RelatedReevaluateAll RelatedSessionType = "reevaluate_all"
	RelatedSmartDeps     RelatedSessionType = "smart_deps"
	RelatedSplit         RelatedSessionType = "split"
	RelatedEvaluate      RelatedSessionType = "evaluate"
)

// Blueprint is a single development goal owning a DAG of Macro Nodes.
type Blueprint struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	ProjectCwd  string          `json:"projectCwd,omitempty"`
	Status      BlueprintStatus `json:"status"`
	Starred     bool            `json:"starred"`
	ArchivedAt  *time.Time      `json:"archivedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`

	// Hydrated by Store.GetBlueprint; not persisted as columns of this table.
	Nodes []*MacroNode `json:"nodes,omitempty"`
}

// MacroNode is a single step in a blueprint's graph.
type MacroNode struct {
	ID               string     `json:"id"`
	BlueprintID      string     `json:"blueprintId"`
	Order            int        `json:"order"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Prompt           string     `json:"prompt,omitempty"`
	Dependencies     []string   `json:"dependencies"`
	Status           NodeStatus `json:"status"`
	Error            string     `json:"error,omitempty"`
	EstimatedMinutes *int       `json:"estimatedMinutes,omitempty"`
	ActualMinutes    *int       `json:"actualMinutes,omitempty"`
	ParallelGroup    string     `json:"parallelGroup,omitempty"`
	AgentType        string     `json:"agentType"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	// Hydrated by Store.GetBlueprint.
	Artifacts  []*Artifact      `json:"artifacts,omitempty"`
	Executions []*NodeExecution `json:"executions,omitempty"`
}

// Artifact is a small textual hand-off between nodes.
type Artifact struct {
	ID           string       `json:"id"`
	BlueprintID  string       `json:"blueprintId"`
	SourceNodeID string       `json:"sourceNodeId"`
	TargetNodeID *string      `json:"targetNodeId,omitempty"`
	Type         ArtifactType `json:"type"`
	Content      string       `json:"content"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// NodeExecution is one attempt to run a node.
type NodeExecution struct {
	ID                string          `json:"id"`
	NodeID            string          `json:"nodeId"`
	BlueprintID       string          `json:"blueprintId"`
	SessionID         string          `json:"sessionId,omitempty"`
	Type              ExecutionType   `json:"type"`
	Status            ExecutionStatus `json:"status"`
	InputContext      string          `json:"inputContext,omitempty"`
	OutputSummary     string          `json:"outputSummary,omitempty"`
	ContextTokensUsed *int            `json:"contextTokensUsed,omitempty"`
	ParentExecutionID *string         `json:"parentExecutionId,omitempty"`
	CliPID            *int            `json:"cliPid,omitempty"`
	StartedAt         time.Time       `json:"startedAt"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`

	// Callback-populated fields.
	BlockerInfo     string           `json:"blockerInfo,omitempty"`
	TaskSummary     string           `json:"taskSummary,omitempty"`
	ReportedStatus  *ReportedStatus  `json:"reportedStatus,omitempty"`
	ReportedReason  string           `json:"reportedReason,omitempty"`
	FailureReason   *FailureReason   `json:"failureReason,omitempty"`
	CompactCount    *int             `json:"compactCount,omitempty"`
	PeakTokens      *int             `json:"peakTokens,omitempty"`
	ContextPressure *ContextPressure `json:"contextPressure,omitempty"`
}

// RelatedSession is a secondary agent session attached to a node for audit
// (enrichment, re-evaluation, split, completion evaluation).
type RelatedSession struct {
	ID          string             `json:"id"`
	NodeID      string             `json:"nodeId"`
	BlueprintID string             `json:"blueprintId"`
	SessionID   string             `json:"sessionId"`
	Type        RelatedSessionType `json:"type"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// RestartRecoverySentinel is written into an execution's OutputSummary by
// Store.RecoverStaleExecutions so a later restart can recognize executions
// that a previous process incarnation may have wrongly killed.
const RestartRecoverySentinel = "[recovered-after-restart] process incarnation ended while this execution was running"
