package metrics

import (
	"testing"
	"time"
)

func TestTokensPerExecutionAndAvgTime(t *testing.T) {
	m := &ExtendedNodeMetrics{TotalExecutions: 4, TotalTokens: 8000, TotalTimeSeconds: 120}
	if got := m.TokensPerExecution(); got != 2000 {
		t.Errorf("TokensPerExecution() = %d, want 2000", got)
	}
	if got := m.AvgExecutionTimeSeconds(); got != 30 {
		t.Errorf("AvgExecutionTimeSeconds() = %d, want 30", got)
	}
}

func TestTokensPerExecutionZeroExecutions(t *testing.T) {
	m := &ExtendedNodeMetrics{}
	if got := m.TokensPerExecution(); got != 0 {
		t.Errorf("TokensPerExecution() on zero executions = %d, want 0", got)
	}
}

func TestHealthFailing(t *testing.T) {
	m := &ExtendedNodeMetrics{ConsecutiveFailures: 3, LastUpdated: time.Now()}
	if got := m.Health(); got != HealthFailing {
		t.Errorf("Health() = %s, want failing", got)
	}
}

func TestHealthStuckAndIdle(t *testing.T) {
	stuck := &ExtendedNodeMetrics{LastUpdated: time.Now().Add(-31 * time.Minute)}
	if got := stuck.Health(); got != HealthStuck {
		t.Errorf("Health() = %s, want stuck", got)
	}

	idle := &ExtendedNodeMetrics{LastUpdated: time.Now().Add(-11 * time.Minute)}
	if got := idle.Health(); got != HealthIdle {
		t.Errorf("Health() = %s, want idle", got)
	}

	healthy := &ExtendedNodeMetrics{LastUpdated: time.Now()}
	if got := healthy.Health(); got != HealthHealthy {
		t.Errorf("Health() = %s, want healthy", got)
	}
}

func TestBlueprintMetricsAggregation(t *testing.T) {
	bm := NewBlueprintMetrics("bp1")
	bm.AddNodeMetrics("node1", &ExtendedNodeMetrics{TotalExecutions: 2, TotalTokens: 1000, LastUpdated: time.Now()})
	bm.AddNodeMetrics("node2", &ExtendedNodeMetrics{TotalExecutions: 3, TotalTokens: 2000, ConsecutiveFailures: 5, LastUpdated: time.Now()})

	if got := bm.TotalExecutions(); got != 5 {
		t.Errorf("TotalExecutions() = %d, want 5", got)
	}
	if got := bm.TotalTokens(); got != 3000 {
		t.Errorf("TotalTokens() = %d, want 3000", got)
	}
	if got := bm.HealthyNodes(); got != 1 {
		t.Errorf("HealthyNodes() = %d, want 1 (node2 is failing)", got)
	}
}
