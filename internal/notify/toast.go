// Package notify fires a best-effort desktop toast when a node transitions
// to blocked or failed, so a human monitoring a long-running blueprint
// knows when one needs attention. Windows-only; everywhere else nothing is
// shown and the notify calls return an error.
package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// Notifier pushes toast notifications for node outcomes.
type Notifier struct {
	appID        string
	dashboardURL string
}

// New constructs a Notifier. dashboardURL is embedded as the toast's
// click-through action; pass "" to use the local default.
func New(dashboardURL string) *Notifier {
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &Notifier{appID: "macroforge", dashboardURL: dashboardURL}
}

// NodeBlocked notifies that a node is waiting on human input.
func (n *Notifier) NodeBlocked(blueprintTitle, nodeTitle, description string) error {
	return n.push("Blocked: "+nodeTitle, fmt.Sprintf("%s — %s", blueprintTitle, description))
}

// NodeFailed notifies that a node's run ended in failure.
func (n *Notifier) NodeFailed(blueprintTitle, nodeTitle, reason string) error {
	return n.push("Failed: "+nodeTitle, fmt.Sprintf("%s — %s", blueprintTitle, reason))
}

func (n *Notifier) push(title, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("notify: toast notifications only supported on Windows")
	}

	notification := toast.Notification{
		AppID:   n.appID,
		Title:   title,
		Message: message,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: n.dashboardURL},
		},
	}
	return notification.Push()
}

// IsSupported reports whether this platform can actually show the toast.
func (n *Notifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}
