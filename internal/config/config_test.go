package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "authToken: abc123\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("expected default dataDir, got %q", cfg.DataDir)
	}
	if cfg.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("expected default listenAddr, got %q", cfg.ListenAddr)
	}
	if _, ok := cfg.AgentTypes["claude"]; !ok {
		t.Error("expected default claude agent type")
	}
	if cfg.AlertThresholds.SafetyCeilingMinutes != 45 {
		t.Errorf("expected default safety ceiling 45, got %d", cfg.AlertThresholds.SafetyCeilingMinutes)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
dataDir: /var/lib/macroforge
listenAddr: 0.0.0.0:9000
authToken: deadbeef
agentTypes:
  codex:
    binaryPath: /usr/local/bin/codex
    argsTemplate: "-p @promptfile"
    sessionsSubdir: .codex-sessions
alertThresholds:
  staleExecutionLookbackMinutes: 5
  backgroundMonitorIntervalSecs: 15
  safetyCeilingMinutes: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/macroforge" {
		t.Errorf("expected overridden dataDir, got %q", cfg.DataDir)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("expected overridden listenAddr, got %q", cfg.ListenAddr)
	}
	codex, ok := cfg.AgentTypes["codex"]
	if !ok {
		t.Fatal("expected codex agent type present")
	}
	if codex.BinaryPath != "/usr/local/bin/codex" {
		t.Errorf("expected codex binary path, got %q", codex.BinaryPath)
	}
	if cfg.AlertThresholds.StaleExecutionLookbackMinutes != 5 {
		t.Errorf("expected overridden lookback, got %d", cfg.AlertThresholds.StaleExecutionLookbackMinutes)
	}
}

func TestLoadMissingAuthTokenErrors(t *testing.T) {
	path := writeConfigFile(t, "dataDir: ./data\n")

	if _, err := Load(path); err == nil {
		t.Error("expected error when authToken is missing")
	}
}

func TestLoadNonExistentPathErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for non-existent config path")
	}
}

func TestLoadInvalidYAMLErrors(t *testing.T) {
	path := writeConfigFile(t, "dataDir: [unterminated\n")

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
