// Package metrics aggregates per-node execution health (peak tokens,
// compaction count, consecutive failures) in memory and checks it against
// configurable thresholds (spec §9 "alertThresholds"), independent of the
// Store. The engine constructs one collector and one alert checker and
// holds them on its handle; no HTTP route or executor path records into
// or reads from them. The Store remains the durable source of truth.
package metrics

import (
	"sync"
	"time"

	"github.com/macroforge/macroforge/internal/types"
)

// NodeMetrics is the rolling in-memory view of one node's execution
// history, keyed by node id.
type NodeMetrics struct {
	NodeID              string
	BlueprintID         string
	PeakTokens          int
	CompactCount        int
	ContextPressure     types.ContextPressure
	TotalExecutions     int
	FailedExecutions    int
	ConsecutiveFailures int
	LastUpdated         time.Time
}

// Snapshot is a point-in-time copy of every tracked node's metrics.
type Snapshot struct {
	Timestamp time.Time
	Nodes     map[string]*NodeMetrics
}

// Collector is the interface the engine holds its collector behind, so a
// test double can stand in without importing the concrete implementation.
type Collector interface {
	RecordHealth(nodeID, blueprintID string, peakTokens, compactCount int, pressure types.ContextPressure)
	RecordOutcome(nodeID, blueprintID string, failed bool)
	GetNodeMetrics(nodeID string) *NodeMetrics
	GetAllMetrics() map[string]*NodeMetrics
	TakeSnapshot() Snapshot
	GetHistory() []Snapshot
	ResetHistory()
	RemoveNode(nodeID string)
}

// MetricsCollector implements Collector with an in-memory map guarded by a
// single RWMutex, mirroring the teacher's agent-metrics collector.
type MetricsCollector struct {
	mu         sync.RWMutex
	nodes      map[string]*NodeMetrics
	history    []Snapshot
	maxHistory int
}

// NewCollector creates an empty collector with a bounded history buffer.
func NewCollector() *MetricsCollector {
	return &MetricsCollector{
		nodes:      make(map[string]*NodeMetrics),
		maxHistory: 1000,
	}
}

func (c *MetricsCollector) entry(nodeID, blueprintID string) *NodeMetrics {
	m, ok := c.nodes[nodeID]
	if !ok {
		m = &NodeMetrics{NodeID: nodeID, BlueprintID: blueprintID}
		c.nodes[nodeID] = m
	}
	return m
}

// RecordHealth updates the peak-tokens/compact-count/pressure reading
// taken from a re-parse of a node's session log.
func (c *MetricsCollector) RecordHealth(nodeID, blueprintID string, peakTokens, compactCount int, pressure types.ContextPressure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.entry(nodeID, blueprintID)
	if peakTokens > m.PeakTokens {
		m.PeakTokens = peakTokens
	}
	m.CompactCount = compactCount
	m.ContextPressure = pressure
	m.LastUpdated = time.Now()
}

// RecordOutcome records one execution's terminal done/failed result,
// tracking a running consecutive-failure count reset on any success.
func (c *MetricsCollector) RecordOutcome(nodeID, blueprintID string, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.entry(nodeID, blueprintID)
	m.TotalExecutions++
	if failed {
		m.FailedExecutions++
		m.ConsecutiveFailures++
	} else {
		m.ConsecutiveFailures = 0
	}
	m.LastUpdated = time.Now()
}

// GetNodeMetrics returns a copy of one node's metrics, or nil if untracked.
func (c *MetricsCollector) GetNodeMetrics(nodeID string) *NodeMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.nodes[nodeID]; ok {
		cp := *m
		return &cp
	}
	return nil
}

// GetAllMetrics returns a copy of every tracked node's metrics.
func (c *MetricsCollector) GetAllMetrics() map[string]*NodeMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*NodeMetrics, len(c.nodes))
	for k, v := range c.nodes {
		cp := *v
		out[k] = &cp
	}
	return out
}

// TakeSnapshot captures and retains the current state, pruning the oldest
// entry once the history buffer exceeds maxHistory.
func (c *MetricsCollector) TakeSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Timestamp: time.Now(), Nodes: make(map[string]*NodeMetrics, len(c.nodes))}
	for k, v := range c.nodes {
		cp := *v
		snap.Nodes[k] = &cp
	}

	c.history = append(c.history, snap)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	return snap
}

// GetHistory returns every retained snapshot, oldest first.
func (c *MetricsCollector) GetHistory() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, len(c.history))
	copy(out, c.history)
	return out
}

// ResetHistory discards every retained snapshot without touching live
// per-node metrics.
func (c *MetricsCollector) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// RemoveNode drops a node's tracked metrics (used when a node is deleted).
func (c *MetricsCollector) RemoveNode(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, nodeID)
}
