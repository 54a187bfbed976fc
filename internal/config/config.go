// Package config loads the single YAML configuration file the service
// reads at start-up: data directory, HTTP listen address, per-agent-type
// registry, and alert thresholds.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentTypeConfig describes one registered coding-agent CLI.
type AgentTypeConfig struct {
	BinaryPath      string `yaml:"binaryPath"`
	ArgsTemplate    string `yaml:"argsTemplate"` // e.g. "-p @promptfile"; "--resume <id>" is appended by the executor
	SessionsSubdir  string `yaml:"sessionsSubdir"`
}

// AlertThresholds are read at start-up; the engine copies
// StaleExecutionLookbackMinutes and SafetyCeilingMinutes into the metrics
// alert engine's informational thresholds. The Recovery Supervisor uses its
// own fixed windows, and BackgroundMonitorIntervalSecs is not read by any
// component.
type AlertThresholds struct {
	StaleExecutionLookbackMinutes int `yaml:"staleExecutionLookbackMinutes"`
	BackgroundMonitorIntervalSecs int `yaml:"backgroundMonitorIntervalSecs"`
	SafetyCeilingMinutes          int `yaml:"safetyCeilingMinutes"`
}

// Config is the top-level shape of the service's YAML config file.
type Config struct {
	DataDir         string                     `yaml:"dataDir"`
	ListenAddr      string                     `yaml:"listenAddr"`
	AuthToken       string                     `yaml:"authToken"`
	AgentTypes      map[string]AgentTypeConfig `yaml:"agentTypes"`
	AlertThresholds AlertThresholds            `yaml:"alertThresholds"`
}

// Default returns a Config with the spec's fixed defaults applied, used
// when a field is left unset in the YAML file.
func Default() Config {
	return Config{
		DataDir:    "./data",
		ListenAddr: "127.0.0.1:8787",
		AgentTypes: map[string]AgentTypeConfig{
			"claude": {
				BinaryPath:     "claude",
				ArgsTemplate:   "-p @promptfile",
				SessionsSubdir: ".claude-sessions",
			},
		},
		AlertThresholds: AlertThresholds{
			StaleExecutionLookbackMinutes: 10,
			BackgroundMonitorIntervalSecs: 10,
			SafetyCeilingMinutes:          45,
		},
	}
}

// Load reads and parses the YAML config at path, filling in defaults for
// anything left zero-valued.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8787"
	}
	if len(cfg.AgentTypes) == 0 {
		cfg.AgentTypes = Default().AgentTypes
	}
	if cfg.AlertThresholds.StaleExecutionLookbackMinutes == 0 {
		cfg.AlertThresholds.StaleExecutionLookbackMinutes = 10
	}
	if cfg.AlertThresholds.BackgroundMonitorIntervalSecs == 0 {
		cfg.AlertThresholds.BackgroundMonitorIntervalSecs = 10
	}
	if cfg.AlertThresholds.SafetyCeilingMinutes == 0 {
		cfg.AlertThresholds.SafetyCeilingMinutes = 45
	}

	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("config: authToken is required")
	}
	return &cfg, nil
}
