package executor

import (
	"testing"

	"github.com/macroforge/macroforge/internal/types"
)

func TestClassifyFailureOutputTokenLimitWins(t *testing.T) {
	e := newTestExecutor(t, nil)
	reason, _ := e.classifyFailure("killed", "error: exceeded the output token maximum for this model", "", "claude", "")
	if reason != types.FailureOutputTokenLimit {
		t.Errorf("expected output token limit, got %s", reason)
	}
}

func TestClassifyFailureContextExhaustionBeatsTimeout(t *testing.T) {
	e := newTestExecutor(t, nil)
	reason, _ := e.classifyFailure("process was killed: context window exceeded", "", "", "claude", "")
	if reason != types.FailureContextExhausted {
		t.Errorf("expected context exhausted to win over the timeout-like error text, got %s", reason)
	}
}

func TestClassifyFailureFallsBackToTimeout(t *testing.T) {
	e := newTestExecutor(t, nil)
	reason, _ := e.classifyFailure("signal: killed", "", "", "claude", "")
	if reason != types.FailureTimeout {
		t.Errorf("expected timeout, got %s", reason)
	}
}

func TestClassifyFailureFallsBackToGenericError(t *testing.T) {
	e := newTestExecutor(t, nil)
	reason, detail := e.classifyFailure("exit status 1", "", "", "claude", "")
	if reason != types.FailureError {
		t.Errorf("expected generic error, got %s", reason)
	}
	if detail != "exit status 1" {
		t.Errorf("expected detail to carry the raw error message, got %q", detail)
	}
}

func TestClassifyFailureIgnoresUnknownSessionSilently(t *testing.T) {
	e := newTestExecutor(t, nil)
	// No session log exists on disk for this id; classification should still
	// fall through to the regex-based heuristics rather than erroring.
	reason, _ := e.classifyFailure("signal: killed", "", "nonexistent-session", "claude", t.TempDir())
	if reason != types.FailureTimeout {
		t.Errorf("expected fallthrough to timeout classification, got %s", reason)
	}
}
