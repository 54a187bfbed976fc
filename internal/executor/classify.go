package executor

import (
	"regexp"

	"github.com/macroforge/macroforge/internal/sessionreader"
	"github.com/macroforge/macroforge/internal/types"
)

var (
	outputTokenLimitPattern = regexp.MustCompile(`(?i)exceeded.*output token maximum`)
	contextExhaustedPattern = regexp.MustCompile(`(?i)context|input.token|overloaded.*compact|max.tokens|context.window`)
	timeoutPattern          = regexp.MustCompile(`(?i)killed|timeout|SIGTERM|ETIMEDOUT`)
)

// classifyFailure implements spec §4.6.3: given the process error message,
// any captured output, and an optional session id, return the failure
// reason and a short detail string.
func (e *Executor) classifyFailure(errorMsg, output, sessionID, agentType, projectCwd string) (types.FailureReason, string) {
	combined := errorMsg + " " + output

	if outputTokenLimitPattern.MatchString(output) {
		return types.FailureOutputTokenLimit, "agent output exceeded the CLI's output token maximum"
	}
	if contextExhaustedPattern.MatchString(combined) {
		return types.FailureContextExhausted, "process error indicates context exhaustion"
	}

	if sessionID != "" {
		if reader := sessionreader.For(agentType); reader != nil {
			if health, err := e.healthAnalysisFor(reader, sessionID, agentType, projectCwd); err == nil && health != nil {
				if health.FailureReason != nil {
					return fromSessionReason(*health.FailureReason), "derived from session health analysis"
				}
				if health.EndedAfterCompaction && health.CompactCount >= 1 {
					return types.FailureContextExhausted, "session ended shortly after a context compaction"
				}
				if health.CompactCount >= 2 && timeoutPattern.MatchString(errorMsg) {
					return types.FailureContextExhausted, "repeated compaction preceded an apparent timeout"
				}
			}
		}
	}

	if timeoutPattern.MatchString(errorMsg) {
		return types.FailureTimeout, "process was killed or timed out"
	}

	return types.FailureError, errorMsg
}

// healthAnalysisFor locates the session log file for sessionID under the
// agent's sessions directory and runs HealthAnalysis on it.
func (e *Executor) healthAnalysisFor(reader sessionreader.Reader, sessionID, agentType, projectCwd string) (*sessionreader.HealthReport, error) {
	path, err := sessionLogPath(reader, projectCwd, sessionID)
	if err != nil {
		return nil, err
	}
	return reader.HealthAnalysis(path)
}

func fromSessionReason(r sessionreader.FailureReason) types.FailureReason {
	switch r {
	case sessionreader.FailureOutputTokenLimit:
		return types.FailureOutputTokenLimit
	case sessionreader.FailureContextExhausted:
		return types.FailureContextExhausted
	case sessionreader.FailureHung:
		return types.FailureHung
	default:
		return types.FailureError
	}
}

func fromSessionPressure(p sessionreader.ContextPressure) types.ContextPressure {
	return types.ContextPressure(p)
}
