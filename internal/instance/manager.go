// Package instance prevents two macroforge processes from binding the same
// data directory and HTTP port at once: a PID file records who holds the
// port, a lock file makes acquisition atomic, and a conflict resolver decides
// what to do when a second launch collides with a still-running first one.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Manager tracks the single running instance for one data directory.
type Manager struct {
	pidFilePath string
	lockPath    string
	port        int
}

// Info describes a running (or formerly running) instance.
type Info struct {
	PID          int
	Port         int
	StartTime    time.Time
	IsRunning    bool
	IsResponding bool
	Version      string
	BasePath     string
}

// pidFileData is the on-disk JSON shape of the PID file.
type pidFileData struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

// NewManager creates a manager for the PID file at pidFilePath, configured
// for the given listen port.
func NewManager(pidFilePath string, port int) *Manager {
	return &Manager{
		pidFilePath: pidFilePath,
		lockPath:    pidFilePath + ".lock",
		port:        port,
	}
}

// CheckExisting looks for a live instance recorded in the PID file. It
// returns nil if there is none, cleaning up a stale file along the way.
func (m *Manager) CheckExisting() (*Info, error) {
	data, err := m.readPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("instance: read pid file: %w", err)
	}

	running, err := IsProcessRunning(data.PID)
	if err != nil {
		return nil, fmt.Errorf("instance: check process: %w", err)
	}
	if !running {
		_ = m.RemovePIDFile()
		return nil, nil
	}

	responding := HealthCheck(data.Port) == nil
	return &Info{
		PID:          data.PID,
		Port:         data.Port,
		StartTime:    data.StartedAt,
		IsRunning:    true,
		IsResponding: responding,
		Version:      data.Version,
		BasePath:     data.BasePath,
	}, nil
}

// WritePIDFile records the current process as the live instance.
func (m *Manager) WritePIDFile(pid, port int, basePath string) error {
	hostname, _ := os.Hostname()
	data := pidFileData{
		PID:       pid,
		Port:      port,
		StartedAt: time.Now(),
		Version:   "1.0.0",
		BasePath:  basePath,
		Hostname:  hostname,
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("instance: marshal pid data: %w", err)
	}
	if err := os.WriteFile(m.pidFilePath, encoded, 0644); err != nil {
		return fmt.Errorf("instance: write pid file: %w", err)
	}
	return nil
}

func (m *Manager) readPIDFile() (*pidFileData, error) {
	raw, err := os.ReadFile(m.pidFilePath)
	if err != nil {
		return nil, err
	}
	var data pidFileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("instance: parse pid file: %w", err)
	}
	return &data, nil
}

// RemovePIDFile deletes the PID file, ignoring a missing file.
func (m *Manager) RemovePIDFile() error {
	if err := os.Remove(m.pidFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("instance: remove pid file: %w", err)
	}
	return nil
}

// Port returns the port the manager is currently configured for.
func (m *Manager) Port() int { return m.port }

// SetPort updates the configured port, used after a conflict resolver picks
// a different one.
func (m *Manager) SetPort(port int) { m.port = port }
