package sessionreader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ClaudeReader parses the NDJSON session transcripts written by Claude
// Code-style CLI agents: one JSON object per line, each with a "type" field
// and, for assistant/user turns, a nested "message" object.
type ClaudeReader struct {
	// SessionsSubdir is appended to a project's working directory to find
	// its session logs (Claude Code keeps them outside the project tree,
	// keyed by a slug of the cwd; this reader does not resolve that
	// location and looks only under projectCwd/SessionsSubdir).
	SessionsSubdir string
}

// NewClaudeReader constructs the default reader for the "claude" agent type.
func NewClaudeReader() *ClaudeReader {
	return &ClaudeReader{SessionsSubdir: ".claude-sessions"}
}

func init() {
	Register("claude", NewClaudeReader())
}

func (r *ClaudeReader) SessionsDir(projectCwd string) string {
	return filepath.Join(projectCwd, r.SessionsSubdir)
}

type claudeRecord struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`

	// compact_boundary records
	CompactMetadata *struct {
		PreTokens int `json:"preTokens"`
	} `json:"compactMetadata"`

	IsAPIErrorMessage bool   `json:"isApiErrorMessage"`
	ErrorText         string `json:"error"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Usage   *struct {
		InputTokens          int `json:"input_tokens"`
		CacheReadInputTokens int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

// contentBlock covers the subset of Anthropic content-block shapes the
// timeline cares about: plain text, tool_use and tool_result.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// Parse decodes a Claude Code session log into a Timeline. Malformed lines
// are skipped rather than aborting the whole parse — a truncated crash-time
// write at the tail of the file is common and must not sink the rest of the
// transcript.
func (r *ClaudeReader) Parse(filePath string, raw []byte) (Timeline, error) {
	var timeline Timeline
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec claudeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, rec.Timestamp)

		switch rec.Type {
		case "user", "assistant":
			nodes := r.timelineNodesForMessage(rec, ts)
			timeline = append(timeline, nodes...)
		case "system":
			title := "system"
			if rec.CompactMetadata != nil {
				title = "compact_boundary"
			}
			timeline = append(timeline, TimelineNode{
				ID: rec.UUID, Kind: KindSystem, Timestamp: ts, Title: title,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sessionreader: scan %s: %w", filePath, err)
	}
	return timeline, nil
}

func (r *ClaudeReader) timelineNodesForMessage(rec claudeRecord, ts time.Time) []TimelineNode {
	var msg claudeMessage
	if len(rec.Message) == 0 {
		return nil
	}
	if err := json.Unmarshal(rec.Message, &msg); err != nil {
		return nil
	}

	kind := KindUser
	if rec.Type == "assistant" {
		kind = KindAssistant
	}

	// Content is either a plain string or a list of content blocks.
	var asString string
	if err := json.Unmarshal(msg.Content, &asString); err == nil {
		return []TimelineNode{{
			ID: rec.UUID, Kind: kind, Timestamp: ts,
			Title: firstLine(asString), Content: asString,
		}}
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}

	var nodes []TimelineNode
	for i, b := range blocks {
		id := fmt.Sprintf("%s-%d", rec.UUID, i)
		switch b.Type {
		case "text":
			nodes = append(nodes, TimelineNode{
				ID: id, Kind: kind, Timestamp: ts,
				Title: firstLine(b.Text), Content: b.Text,
			})
		case "tool_use":
			nodes = append(nodes, TimelineNode{
				ID: id, Kind: KindToolUse, Timestamp: ts,
				Title: b.Name, Content: string(b.Input),
				ToolName: b.Name, ToolInput: string(b.Input), ToolUseID: b.ID,
			})
		case "tool_result":
			content := extractToolResultText(b.Content)
			nodes = append(nodes, TimelineNode{
				ID: id, Kind: KindToolResult, Timestamp: ts,
				Title: "result", Content: content,
				ToolResult: content, ToolUseID: b.ToolUseID,
			})
		}
	}
	return nodes
}

func extractToolResultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

var (
	outputTokenLimitPattern = regexp.MustCompile(`(?i)exceeded.*output token maximum`)
	contextExhaustedPattern = regexp.MustCompile(`(?i)context|input.token|overloaded.*compact|max.tokens|context.window`)
	timeoutPattern          = regexp.MustCompile(`(?i)killed|timeout|SIGTERM|ETIMEDOUT`)
)

// HealthAnalysis re-reads the file and derives a HealthReport per spec §4.2.
func (r *ClaudeReader) HealthAnalysis(filePath string) (*HealthReport, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("sessionreader: read %s: %w", filePath, err)
	}

	report := &HealthReport{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var assistantSinceCompact int
	var lastWasAssistant bool

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec claudeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		report.MessageCount++

		switch rec.Type {
		case "system":
			if rec.CompactMetadata != nil {
				report.CompactCount++
				if rec.CompactMetadata.PreTokens > report.PeakTokens {
					report.PeakTokens = rec.CompactMetadata.PreTokens
				}
				assistantSinceCompact = 0
			}
			if rec.IsAPIErrorMessage && rec.ErrorText != "" {
				report.LastAPIError = rec.ErrorText
			}
			lastWasAssistant = false
		case "assistant":
			var msg claudeMessage
			if len(rec.Message) > 0 {
				_ = json.Unmarshal(rec.Message, &msg)
				if msg.Usage != nil {
					total := msg.Usage.InputTokens + msg.Usage.CacheReadInputTokens
					if total > report.PeakTokens {
						report.PeakTokens = total
					}
				}
			}
			assistantSinceCompact++
			lastWasAssistant = true
		default:
			lastWasAssistant = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sessionreader: scan %s: %w", filePath, err)
	}

	report.ResponsesAfterLastCompact = assistantSinceCompact
	report.EndedAfterCompaction = report.CompactCount > 0 && lastWasAssistant && assistantSinceCompact <= 1
	report.ContextPressure = contextPressureFor(report.CompactCount, report.PeakTokens, report.EndedAfterCompaction)
	report.FailureReason = classifyHealthFailure(report)
	return report, nil
}

// classifyHealthFailure applies the priority order from spec §4.2.
func classifyHealthFailure(r *HealthReport) *FailureReason {
	reason := func(f FailureReason) *FailureReason { return &f }

	if r.LastAPIError != "" {
		switch {
		case outputTokenLimitPattern.MatchString(r.LastAPIError):
			return reason(FailureOutputTokenLimit)
		case contextExhaustedPattern.MatchString(r.LastAPIError):
			return reason(FailureContextExhausted)
		default:
			return reason(FailureReason("error"))
		}
	}

	switch {
	case r.EndedAfterCompaction && r.CompactCount >= 2:
		return reason(FailureContextExhausted)
	case r.CompactCount >= 3:
		return reason(FailureContextExhausted)
	case r.CompactCount >= 2 && r.PeakTokens > 150_000:
		return reason(FailureContextExhausted)
	}
	return nil
}
