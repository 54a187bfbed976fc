// Package sessionreader reads an external coding-agent's own append-only
// NDJSON session log and derives a Timeline and a HealthReport from it. One
// Reader implementation exists per agent type; the registry dispatches by
// tag rather than by runtime type assertion.
package sessionreader

import (
	"time"
)

// NodeKind is the type of a single Timeline entry.
type NodeKind string

const (
	KindUser       NodeKind = "user"
	KindAssistant  NodeKind = "assistant"
	KindToolUse    NodeKind = "tool_use"
	KindToolResult NodeKind = "tool_result"
	KindError      NodeKind = "error"
	KindSystem     NodeKind = "system"
)

// TimelineNode is one record of a session's timeline, in log order.
type TimelineNode struct {
	ID        string    `json:"id"`
	Kind      NodeKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`

	ToolName   string `json:"toolName,omitempty"`
	ToolInput  string `json:"toolInput,omitempty"`
	ToolResult string `json:"toolResult,omitempty"`
	ToolUseID  string `json:"toolUseId,omitempty"`
}

// Timeline is the ordered record of a session.
type Timeline []TimelineNode

// ContextPressure mirrors types.ContextPressure without importing it, so
// this package stays independent of the store's persistence concerns; the
// executor converts between the two at its boundary.
type ContextPressure string

const (
	PressureNone     ContextPressure = "none"
	PressureModerate ContextPressure = "moderate"
	PressureHigh     ContextPressure = "high"
	PressureCritical ContextPressure = "critical"
)

// FailureReason mirrors types.FailureReason for the same reason.
type FailureReason string

const (
	FailureContextExhausted FailureReason = "context_exhausted"
	FailureOutputTokenLimit FailureReason = "output_token_limit"
	FailureHung             FailureReason = "hung"
)

// HealthReport is derived solely by inspection of a session log.
type HealthReport struct {
	CompactCount              int
	PeakTokens                int
	LastAPIError              string
	MessageCount              int
	EndedAfterCompaction      bool
	ResponsesAfterLastCompact int
	ContextPressure           ContextPressure
	FailureReason             *FailureReason
}

// Reader is the capability record an agent type registers: how to find its
// sessions directory, how to parse a log into a Timeline, and how to derive
// a HealthReport from one. Implementations must not rely on runtime type
// reflection to dispatch across agent variants (spec §9).
type Reader interface {
	// SessionsDir returns the directory the agent writes session logs to,
	// given the node's working directory.
	SessionsDir(projectCwd string) string
	// Parse decodes a session log's raw bytes into a Timeline.
	Parse(filePath string, raw []byte) (Timeline, error)
	// HealthAnalysis derives a HealthReport straight from the log file.
	HealthAnalysis(filePath string) (*HealthReport, error)
}

// registry maps an agentType tag to its Reader. Populated by Register,
// consulted by For.
var registry = map[string]Reader{}

// Register adds (or replaces) the Reader for an agent type tag.
func Register(agentType string, r Reader) {
	registry[agentType] = r
}

// For returns the Reader registered for agentType, or nil if none.
func For(agentType string) Reader {
	return registry[agentType]
}

// contextPressureFor computes the contextPressure threshold ladder from
// spec §4.2: critical when compactCount>=3 or (compactCount>=2 and
// endedAfterCompaction); high when compactCount>=2 or (compactCount>=1 and
// peakTokens>150_000); moderate when compactCount>=1 or peakTokens>120_000;
// else none.
func contextPressureFor(compactCount, peakTokens int, endedAfterCompaction bool) ContextPressure {
	switch {
	case compactCount >= 3 || (compactCount >= 2 && endedAfterCompaction):
		return PressureCritical
	case compactCount >= 2 || (compactCount >= 1 && peakTokens > 150_000):
		return PressureHigh
	case compactCount >= 1 || peakTokens > 120_000:
		return PressureModerate
	default:
		return PressureNone
	}
}
