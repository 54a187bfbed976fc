package recovery

import (
	"time"

	"github.com/macroforge/macroforge/internal/runner"
	"github.com/macroforge/macroforge/internal/sessionreader"
	"github.com/macroforge/macroforge/internal/store"
)

// startMonitorIfNeeded launches the background monitor goroutine if one
// isn't already running and there's at least one ambiguous execution to
// watch. Safe to call repeatedly; only the first call after the monitored
// set empties actually starts a new goroutine.
func (s *Supervisor) startMonitorIfNeeded() {
	s.mu.Lock()
	if s.monitorRunning || len(s.monitored) == 0 {
		s.mu.Unlock()
		return
	}
	s.monitorRunning = true
	s.mu.Unlock()

	go s.runMonitor()
}

// runMonitor ticks every 10s (spec §4.7.2), re-probing every monitored
// execution, until the monitored set empties, at which point it stops
// itself — the interval handle is cleared, matching the spec's wording —
// and a later Start/addMonitored call restarts it.
func (s *Supervisor) runMonitor() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.tick()

		s.mu.Lock()
		empty := len(s.monitored) == 0
		if empty {
			s.monitorRunning = false
		}
		s.mu.Unlock()
		if empty {
			return
		}
	}
}

// tick re-probes every monitored execution once and resolves any that are
// no longer ambiguous (or have hit the safety ceiling).
func (s *Supervisor) tick() {
	s.mu.Lock()
	snapshot := make([]*monitoredExecution, 0, len(s.monitored))
	for _, m := range s.monitored {
		snapshot = append(snapshot, m)
	}
	s.mu.Unlock()

	now := s.nowFn()
	for _, m := range snapshot {
		s.tickOne(m, now)
	}
}

func (s *Supervisor) tickOne(m *monitoredExecution, now time.Time) {
	reader := sessionreader.For(m.AgentType)

	if m.SessionID == "" && reader != nil {
		if id := pollForNewSession(reader.SessionsDir(m.ProjectCwd), m.StartedAt); id != "" {
			m.SessionID = id
			_ = s.Store.UpdateExecution(m.ExecutionID, store.ExecutionPatch{SessionID: &id})
		}
	}

	alive := m.PID != nil && runner.IsAlive(*m.PID)
	if !alive && m.SessionID != "" && reader != nil {
		if mtime, ok := sessionMTime(reader, m.ProjectCwd, m.SessionID); ok && now.Sub(mtime) <= aliveMtimeMonitor {
			alive = true
		}
	}

	ceilingHit := now.Sub(m.StartedAt) >= safetyCeiling
	if alive && !ceilingHit {
		return
	}

	if m.SessionID != "" {
		s.finalizeSilentlyCompleted(m.ExecutionID, m.NodeID, m.BlueprintID, reader, m.ProjectCwd, m.SessionID)
	} else {
		s.finalizeTrulyDead(m.ExecutionID, m.NodeID)
	}

	s.mu.Lock()
	delete(s.monitored, m.ExecutionID)
	s.mu.Unlock()
}
