package runner

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestCleanStripsAnsiAndSpawnLine(t *testing.T) {
	raw := "spawn /usr/local/bin/claude --resume abc\r\n\x1b[31mhello\x1b[0m world\x1b]0;title\x07done"
	got := Clean([]byte(raw), "/usr/local/bin/claude")
	if strings.Contains(got, "spawn ") {
		t.Errorf("expected spawn line stripped, got %q", got)
	}
	if strings.Contains(got, "\x1b") {
		t.Errorf("expected escape sequences stripped, got %q", got)
	}
	if strings.Contains(got, "\r") {
		t.Errorf("expected carriage returns stripped, got %q", got)
	}
	if !strings.Contains(got, "hello world") {
		t.Errorf("expected visible text preserved, got %q", got)
	}
}

func TestCleanHandlesNoSpawnLine(t *testing.T) {
	got := Clean([]byte("plain output\nsecond line"), "/usr/local/bin/claude")
	if got != "plain output\nsecond line" {
		t.Errorf("expected untouched output, got %q", got)
	}
}

func shArgsTemplate(script string) func(string, string) []string {
	return func(promptFile, resumeSessionID string) []string {
		return []string{"-c", script}
	}
}

func TestRunCapturesStdout(t *testing.T) {
	spec := Spec{
		Binary:       "sh",
		Prompt:       "irrelevant for this script",
		Cwd:          t.TempDir(),
		ArgsTemplate: shArgsTemplate("echo hello-from-agent"),
	}
	out, err := Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(out) != "hello-from-agent" {
		t.Errorf("expected 'hello-from-agent', got %q", out)
	}
}

func TestRunNonZeroExitWithEmptyStdoutFails(t *testing.T) {
	spec := Spec{
		Binary:       "sh",
		Prompt:       "x",
		Cwd:          t.TempDir(),
		ArgsTemplate: shArgsTemplate("exit 1"),
	}
	_, err := Run(context.Background(), spec)
	var cliErr *CLIError
	if err == nil {
		t.Fatal("expected CLIError for non-zero exit with empty stdout")
	}
	if !asCLIError(err, &cliErr) {
		t.Errorf("expected *CLIError, got %T: %v", err, err)
	}
}

func asCLIError(err error, target **CLIError) bool {
	if e, ok := err.(*CLIError); ok {
		*target = e
		return true
	}
	return false
}

func TestRunNonZeroExitWithStdoutSucceeds(t *testing.T) {
	spec := Spec{
		Binary:       "sh",
		Prompt:       "x",
		Cwd:          t.TempDir(),
		ArgsTemplate: shArgsTemplate("echo partial progress; exit 1"),
	}
	out, err := Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("expected success delegated to caller, got error: %v", err)
	}
	if strings.TrimSpace(out) != "partial progress" {
		t.Errorf("expected output preserved, got %q", out)
	}
}

func TestRunCallsOnPID(t *testing.T) {
	var pid int
	spec := Spec{
		Binary:       "sh",
		Prompt:       "x",
		Cwd:          t.TempDir(),
		ArgsTemplate: shArgsTemplate("echo ok"),
		OnPID:        func(p int) { pid = p },
	}
	if _, err := Run(context.Background(), spec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if pid == 0 {
		t.Error("expected OnPID to be called with a nonzero pid")
	}
}

func TestIsAliveForCurrentProcess(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Error("expected current process to be alive")
	}
}

func TestIsAliveForInvalidPID(t *testing.T) {
	if IsAlive(-1) {
		t.Error("expected negative pid to be reported dead")
	}
}

func TestWriteScopedTempFileCleansUpOnEveryExitPath(t *testing.T) {
	path, cleanup, err := writeScopedTempFile("runner-test-*.txt", "content")
	if err != nil {
		t.Fatalf("writeScopedTempFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected temp file to exist: %v", err)
	}
	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected temp file removed after cleanup, stat err = %v", err)
	}
}

func TestRunRespectsTimeout(t *testing.T) {
	spec := Spec{
		Binary:       "sh",
		Prompt:       "x",
		Cwd:          t.TempDir(),
		ArgsTemplate: shArgsTemplate("sleep 5"),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, spec)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
