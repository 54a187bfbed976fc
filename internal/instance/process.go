package instance

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// IsProcessRunning reports whether pid refers to a live process, using
// signal 0 which the kernel treats as a permission/existence probe without
// actually delivering anything.
func IsProcessRunning(pid int) (bool, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}

// KillProcess sends SIGKILL to pid.
func KillProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("instance: find process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("instance: kill process %d: %w", pid, err)
	}
	return nil
}

// acquireLock creates the lock file exclusively, failing if another process
// already holds it. The lock is released by removing the file.
func acquireLock(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("instance: acquire lock (another instance may be starting): %w", err)
	}
	defer f.Close()
	fmt.Fprintf(f, "%d", os.Getpid())
	return nil
}

func releaseLock(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("instance: release lock: %w", err)
	}
	return nil
}

// AcquireLock claims the manager's lock file for the lifetime of this process.
func (m *Manager) AcquireLock() error { return acquireLock(m.lockPath) }

// ReleaseLock releases a previously acquired lock.
func (m *Manager) ReleaseLock() error { return releaseLock(m.lockPath) }

// openInBrowser best-effort opens url with the platform's default handler.
func openInBrowser(url string) error {
	var cmd *exec.Cmd
	switch {
	case commandExists("xdg-open"):
		cmd = exec.Command("xdg-open", url)
	case commandExists("open"):
		cmd = exec.Command("open", url)
	default:
		return fmt.Errorf("no browser launcher found for this platform")
	}
	return cmd.Start()
}

func commandExists(name string) bool {
	path, err := exec.LookPath(name)
	return err == nil && strings.TrimSpace(path) != ""
}
