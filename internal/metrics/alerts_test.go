package metrics

import (
	"testing"
)

func TestCheckMetricsConsecutiveFailures(t *testing.T) {
	a := NewAlertEngine(Thresholds{ConsecutiveFailuresMax: 3})
	nodes := map[string]*NodeMetrics{
		"node1": {NodeID: "node1", BlueprintID: "bp1", ConsecutiveFailures: 3},
		"node2": {NodeID: "node2", BlueprintID: "bp1", ConsecutiveFailures: 1},
	}

	alerts := a.CheckMetrics(nodes)
	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(alerts))
	}
	if alerts[0].NodeID != "node1" || alerts[0].Severity != "critical" {
		t.Errorf("alert = %+v, want node1/critical", alerts[0])
	}
}

func TestCheckMetricsPeakTokens(t *testing.T) {
	a := NewAlertEngine(Thresholds{PeakTokensMax: 100000})
	nodes := map[string]*NodeMetrics{
		"node1": {NodeID: "node1", BlueprintID: "bp1", PeakTokens: 150000},
	}

	alerts := a.CheckMetrics(nodes)
	if len(alerts) != 1 || alerts[0].Type != "peak_tokens" {
		t.Fatalf("alerts = %+v, want one peak_tokens alert", alerts)
	}
}

func TestCheckMetricsDedupesWithinWindow(t *testing.T) {
	a := NewAlertEngine(Thresholds{ConsecutiveFailuresMax: 2})
	nodes := map[string]*NodeMetrics{"node1": {NodeID: "node1", ConsecutiveFailures: 5}}

	first := a.CheckMetrics(nodes)
	second := a.CheckMetrics(nodes)
	if len(first) != 1 {
		t.Fatalf("first check: len(alerts) = %d, want 1", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second check within dedup window: len(alerts) = %d, want 0", len(second))
	}
}

func TestCheckMetricsDisabledThresholdNeverAlerts(t *testing.T) {
	a := NewAlertEngine(Thresholds{})
	nodes := map[string]*NodeMetrics{"node1": {NodeID: "node1", ConsecutiveFailures: 1000, PeakTokens: 1000000}}
	if alerts := a.CheckMetrics(nodes); len(alerts) != 0 {
		t.Errorf("zero-valued thresholds should disable every check, got %+v", alerts)
	}
}

func TestCheckQueueDepth(t *testing.T) {
	a := NewAlertEngine(Thresholds{QueueDepthMax: 5})
	if alert := a.CheckQueueDepth("bp1", 3); alert != nil {
		t.Errorf("depth below threshold should not alert, got %+v", alert)
	}
	alert := a.CheckQueueDepth("bp1", 6)
	if alert == nil || alert.BlueprintID != "bp1" {
		t.Fatalf("depth at/above threshold should alert for bp1, got %+v", alert)
	}
}

func TestSetGetThresholds(t *testing.T) {
	a := NewAlertEngine(Thresholds{QueueDepthMax: 1})
	a.SetThresholds(Thresholds{QueueDepthMax: 9})
	if got := a.GetThresholds(); got.QueueDepthMax != 9 {
		t.Errorf("GetThresholds().QueueDepthMax = %d, want 9", got.QueueDepthMax)
	}
}
