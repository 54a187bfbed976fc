package sessionreader

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSessionLog(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write session log: %v", err)
	}
	return path
}

func TestClaudeReaderParseUserAndAssistant(t *testing.T) {
	path := writeSessionLog(t, []string{
		`{"type":"user","uuid":"u1","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"do the thing"}}`,
		`{"type":"assistant","uuid":"a1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"text","text":"working on it"},{"type":"tool_use","id":"tool1","name":"bash","input":{"cmd":"ls"}}]}}`,
		`{"type":"user","uuid":"u2","timestamp":"2026-01-01T00:00:02Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tool1","content":"file1\nfile2"}]}}`,
	})
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	r := NewClaudeReader()
	timeline, err := r.Parse(path, raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(timeline) != 4 {
		t.Fatalf("expected 4 timeline nodes, got %d", len(timeline))
	}
	if timeline[0].Kind != KindUser || timeline[0].Content != "do the thing" {
		t.Errorf("unexpected first node: %+v", timeline[0])
	}
	if timeline[2].Kind != KindToolUse || timeline[2].ToolName != "bash" {
		t.Errorf("unexpected tool_use node: %+v", timeline[2])
	}
	if timeline[3].Kind != KindToolResult || timeline[3].ToolUseID != "tool1" {
		t.Errorf("unexpected tool_result node: %+v", timeline[3])
	}
}

func TestClaudeReaderParseSkipsMalformedLines(t *testing.T) {
	path := writeSessionLog(t, []string{
		`not json at all`,
		`{"type":"user","uuid":"u1","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hello"}}`,
	})
	raw, _ := os.ReadFile(path)

	r := NewClaudeReader()
	timeline, err := r.Parse(path, raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(timeline) != 1 {
		t.Fatalf("expected malformed line skipped, got %d nodes", len(timeline))
	}
}

func TestHealthAnalysisContextPressureThresholds(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		expected ContextPressure
	}{
		{
			name:     "none",
			lines:    []string{`{"type":"assistant","uuid":"a1","timestamp":"2026-01-01T00:00:00Z","message":{"role":"assistant","content":"hi","usage":{"input_tokens":100,"cache_read_input_tokens":0}}}`},
			expected: PressureNone,
		},
		{
			name: "moderate from one compaction",
			lines: []string{
				`{"type":"system","uuid":"s1","timestamp":"2026-01-01T00:00:00Z","compactMetadata":{"preTokens":1000}}`,
				`{"type":"assistant","uuid":"a1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":"hi"}}`,
			},
			expected: PressureModerate,
		},
		{
			name: "critical from three compactions",
			lines: []string{
				`{"type":"system","uuid":"s1","timestamp":"2026-01-01T00:00:00Z","compactMetadata":{"preTokens":1000}}`,
				`{"type":"system","uuid":"s2","timestamp":"2026-01-01T00:00:01Z","compactMetadata":{"preTokens":2000}}`,
				`{"type":"system","uuid":"s3","timestamp":"2026-01-01T00:00:02Z","compactMetadata":{"preTokens":3000}}`,
				`{"type":"assistant","uuid":"a1","timestamp":"2026-01-01T00:00:03Z","message":{"role":"assistant","content":"hi"}}`,
			},
			expected: PressureCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSessionLog(t, tt.lines)
			r := NewClaudeReader()
			report, err := r.HealthAnalysis(path)
			if err != nil {
				t.Fatalf("HealthAnalysis failed: %v", err)
			}
			if report.ContextPressure != tt.expected {
				t.Errorf("expected pressure %s, got %s", tt.expected, report.ContextPressure)
			}
		})
	}
}

func TestHealthAnalysisFailureReasonFromAPIError(t *testing.T) {
	path := writeSessionLog(t, []string{
		`{"type":"system","uuid":"s1","timestamp":"2026-01-01T00:00:00Z","isApiErrorMessage":true,"error":"exceeded the output token maximum"}`,
	})
	r := NewClaudeReader()
	report, err := r.HealthAnalysis(path)
	if err != nil {
		t.Fatalf("HealthAnalysis failed: %v", err)
	}
	if report.FailureReason == nil || *report.FailureReason != FailureOutputTokenLimit {
		t.Errorf("expected output_token_limit, got %v", report.FailureReason)
	}
}

func TestRegistryDispatchByTag(t *testing.T) {
	r := For("claude")
	if r == nil {
		t.Fatal("expected claude reader registered via init")
	}
	if For("nonexistent-agent-type") != nil {
		t.Error("expected nil for unregistered agent type")
	}
}
