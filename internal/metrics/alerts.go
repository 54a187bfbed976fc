package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Thresholds tunes when CheckMetrics/CheckQueueDepth escalate, sourced
// from config.Config.AlertThresholds.
type Thresholds struct {
	ConsecutiveFailuresMax int // 0 disables
	PeakTokensMax          int // 0 disables
	QueueDepthMax          int // 0 disables
	StaleExecutionLookback int // minutes; informational, mirrors recovery's cohort B window
	SafetyCeilingMinutes   int // minutes; informational, mirrors recovery's safety ceiling
}

// Alert is one raised condition, deduplicated by Type+NodeID for a 5-minute
// window so a still-bad metric doesn't re-alert every poll.
type Alert struct {
	ID          string
	Type        string
	NodeID      string
	BlueprintID string
	Message     string
	Severity    string // "warning" or "critical"
	CreatedAt   time.Time
}

// AlertEngine checks collected metrics against Thresholds.
type AlertEngine interface {
	SetThresholds(t Thresholds)
	GetThresholds() Thresholds
	CheckMetrics(nodes map[string]*NodeMetrics) []*Alert
	CheckQueueDepth(blueprintID string, depth int) *Alert
}

// AlertChecker implements AlertEngine with a dedup window, mirroring the
// teacher's agent alert checker.
type AlertChecker struct {
	mu           sync.RWMutex
	thresholds   Thresholds
	recentAlerts map[string]time.Time
}

// NewAlertEngine constructs an AlertChecker for the given thresholds.
func NewAlertEngine(thresholds Thresholds) *AlertChecker {
	return &AlertChecker{thresholds: thresholds, recentAlerts: make(map[string]time.Time)}
}

func (a *AlertChecker) SetThresholds(t Thresholds) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = t
}

func (a *AlertChecker) GetThresholds() Thresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.thresholds
}

func (a *AlertChecker) shouldAlert(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for k, t := range a.recentAlerts {
		if now.Sub(t) > 5*time.Minute {
			delete(a.recentAlerts, k)
		}
	}
	if _, exists := a.recentAlerts[key]; exists {
		return false
	}
	a.recentAlerts[key] = now
	return true
}

// CheckMetrics returns one alert per node that breaches a threshold, at
// most once per 5-minute window per node/condition pair.
func (a *AlertChecker) CheckMetrics(nodes map[string]*NodeMetrics) []*Alert {
	a.mu.RLock()
	th := a.thresholds
	a.mu.RUnlock()

	var alerts []*Alert
	for nodeID, m := range nodes {
		if th.ConsecutiveFailuresMax > 0 && m.ConsecutiveFailures >= th.ConsecutiveFailuresMax {
			key := fmt.Sprintf("consecutive_failures_%s", nodeID)
			if a.shouldAlert(key) {
				alerts = append(alerts, &Alert{
					ID: uuid.NewString(), Type: "consecutive_failures", NodeID: nodeID, BlueprintID: m.BlueprintID,
					Message:   fmt.Sprintf("node %s has failed %d times in a row", nodeID, m.ConsecutiveFailures),
					Severity:  "critical",
					CreatedAt: time.Now(),
				})
			}
		}
		if th.PeakTokensMax > 0 && m.PeakTokens >= th.PeakTokensMax {
			key := fmt.Sprintf("peak_tokens_%s", nodeID)
			if a.shouldAlert(key) {
				alerts = append(alerts, &Alert{
					ID: uuid.NewString(), Type: "peak_tokens", NodeID: nodeID, BlueprintID: m.BlueprintID,
					Message:   fmt.Sprintf("node %s reached %d peak tokens (threshold %d)", nodeID, m.PeakTokens, th.PeakTokensMax),
					Severity:  "warning",
					CreatedAt: time.Now(),
				})
			}
		}
	}
	return alerts
}

// CheckQueueDepth escalates a blueprint whose queue has backed up past the
// configured depth, mirroring the teacher's escalation-queue check.
func (a *AlertChecker) CheckQueueDepth(blueprintID string, depth int) *Alert {
	a.mu.RLock()
	th := a.thresholds
	a.mu.RUnlock()

	if th.QueueDepthMax <= 0 || depth < th.QueueDepthMax {
		return nil
	}
	key := fmt.Sprintf("queue_depth_%s", blueprintID)
	if !a.shouldAlert(key) {
		return nil
	}
	return &Alert{
		ID: uuid.NewString(), Type: "queue_depth", BlueprintID: blueprintID,
		Message:   fmt.Sprintf("blueprint %s has %d queued tasks (threshold %d)", blueprintID, depth, th.QueueDepthMax),
		Severity:  "warning",
		CreatedAt: time.Now(),
	}
}
