package instance

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConflictResolver decides what to do when a second launch finds another
// instance already bound to the configured port.
type ConflictResolver struct {
	manager     *Manager
	interactive bool
}

// NewConflictResolver creates a resolver bound to manager.
func NewConflictResolver(manager *Manager, interactive bool) *ConflictResolver {
	return &ConflictResolver{manager: manager, interactive: interactive}
}

// Resolve handles the conflict. On the "exit" and "connect" paths it may
// terminate the process.
func (r *ConflictResolver) Resolve(info *Info) error {
	if !r.interactive {
		return r.resolveNonInteractive(info)
	}
	return r.resolveInteractive(info)
}

func (r *ConflictResolver) resolveInteractive(info *Info) error {
	r.display(info)
	reader := bufio.NewReader(os.Stdin)

	for {
		choice, err := promptChoice(reader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
			continue
		}
		switch choice {
		case 1:
			return r.connectToExisting(info)
		case 2:
			return r.stopExisting(info, false)
		case 3:
			return r.useDifferentPort(info)
		case 4:
			return r.stopExisting(info, true)
		case 5:
			fmt.Println("\ncanceling startup")
			os.Exit(0)
		default:
			fmt.Println("invalid choice, enter 1-5")
		}
	}
}

func (r *ConflictResolver) resolveNonInteractive(info *Info) error {
	strategy := os.Getenv("MACROFORGE_ON_CONFLICT")
	if strategy == "" {
		strategy = "exit"
	}

	fmt.Printf("port %d is in use (pid %d), conflict strategy: %s\n", info.Port, info.PID, strategy)

	switch strategy {
	case "exit":
		fmt.Fprintf(os.Stderr, "another instance is running on port %d (pid %d)\n", info.Port, info.PID)
		fmt.Fprintln(os.Stderr, "set MACROFORGE_ON_CONFLICT to kill, port, or connect to change behavior")
		os.Exit(1)
		return nil
	case "kill":
		return r.stopExisting(info, true)
	case "port":
		return r.useDifferentPort(info)
	case "connect":
		return r.connectToExisting(info)
	default:
		return fmt.Errorf("instance: unknown conflict strategy %q", strategy)
	}
}

func (r *ConflictResolver) display(info *Info) {
	fmt.Println()
	fmt.Println("another instance is already running:")
	fmt.Printf("  pid:      %d\n", info.PID)
	fmt.Printf("  port:     %d\n", info.Port)
	fmt.Printf("  started:  %s (%s ago)\n", info.StartTime.Format(time.RFC3339), time.Since(info.StartTime).Round(time.Second))
	status := "not responding"
	if info.IsResponding {
		status = "running and responding"
	}
	fmt.Printf("  status:   %s\n", status)
	fmt.Printf("  dashboard: http://localhost:%d\n", info.Port)
	fmt.Println()
	fmt.Println("1. connect to existing instance")
	fmt.Println("2. stop existing instance and start a new one")
	fmt.Println("3. start on a different port")
	fmt.Println("4. force kill existing instance")
	fmt.Println("5. exit")
	fmt.Println()
}

func promptChoice(reader *bufio.Reader) (int, error) {
	fmt.Print("enter choice (1-5): ")
	input, err := reader.ReadString('\n')
	if err != nil {
		return 0, err
	}
	choice, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("invalid input")
	}
	return choice, nil
}

func (r *ConflictResolver) connectToExisting(info *Info) error {
	url := fmt.Sprintf("http://localhost:%d", info.Port)
	fmt.Printf("\nconnecting to existing instance at %s\n", url)
	if err := openInBrowser(url); err != nil {
		fmt.Printf("please open %s manually\n", url)
	}
	os.Exit(0)
	return nil
}

func (r *ConflictResolver) stopExisting(info *Info, force bool) error {
	if !force && info.IsResponding {
		fmt.Println("\nsending graceful shutdown request...")
		if err := SendShutdownRequest(info.Port); err != nil {
			fmt.Printf("graceful shutdown failed: %v, attempting force kill\n", err)
			force = true
		} else {
			time.Sleep(3 * time.Second)
			if running, _ := IsProcessRunning(info.PID); !running {
				fmt.Println("previous instance stopped")
				_ = r.manager.RemovePIDFile()
				return nil
			}
			fmt.Println("process still running after shutdown request, attempting force kill")
			force = true
		}
	}

	if force {
		fmt.Printf("force killing process %d...\n", info.PID)
		if err := KillProcess(info.PID); err != nil {
			return fmt.Errorf("instance: kill process: %w", err)
		}
		time.Sleep(1 * time.Second)
		_ = r.manager.RemovePIDFile()
		fmt.Println("previous instance terminated")
	}
	return nil
}

func (r *ConflictResolver) useDifferentPort(info *Info) error {
	newPort := FindAvailablePort(r.manager.Port() + 1)
	if newPort == 0 {
		return fmt.Errorf("instance: no available port found")
	}
	fmt.Printf("\nstarting on port %d instead\n", newPort)
	r.manager.SetPort(newPort)
	return nil
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
