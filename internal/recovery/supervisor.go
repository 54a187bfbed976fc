// Package recovery implements the Recovery Supervisor (spec §4.7): a
// startup smart-recovery pass that classifies every execution the Store
// still shows as running (or recently failed by a too-eager prior restart)
// into alive/silently-completed/truly-dead, plus a background monitor that
// keeps re-probing the ambiguous ones until each resolves.
package recovery

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/macroforge/macroforge/internal/executor"
	"github.com/macroforge/macroforge/internal/sessionreader"
	"github.com/macroforge/macroforge/internal/store"
	"github.com/macroforge/macroforge/internal/types"
)

const (
	// aliveMtimeStartup is the session-file-mtime freshness window used at
	// startup classification (spec §4.7.1).
	aliveMtimeStartup = 60 * time.Second
	// aliveMtimeMonitor is the tighter freshness window the background
	// monitor re-probes with on every tick (spec §4.7.2).
	aliveMtimeMonitor = 30 * time.Second
	// restartLookback bounds cohort B: failed executions carrying the
	// restart sentinel, within this window of their startedAt.
	restartLookback = 10 * time.Minute
	// monitorInterval is the background monitor's tick period.
	monitorInterval = 10 * time.Second
	// safetyCeiling forces a decision on a monitored execution regardless
	// of how alive it still looks.
	safetyCeiling = 45 * time.Minute
)

// monitoredExecution is the background monitor's view of one still-
// ambiguous execution.
type monitoredExecution struct {
	ExecutionID string
	NodeID      string
	BlueprintID string
	ProjectCwd  string
	AgentType   string
	SessionID   string
	PID         *int
	StartedAt   time.Time
}

// Supervisor owns the recovery pass and the background monitor's state. It
// is constructed once at start-up alongside the Executor (spec §9).
type Supervisor struct {
	Store    *store.Store
	Executor *executor.Executor

	idGen func() string
	now   func() time.Time

	mu             sync.Mutex
	monitored      map[string]*monitoredExecution
	monitorRunning bool
}

// NewSupervisor constructs a Supervisor. idGen mints artifact ids recovered
// from a silently-completed session's transcript.
func NewSupervisor(st *store.Store, exec *executor.Executor, idGen func() string) *Supervisor {
	return &Supervisor{
		Store:     st,
		Executor:  exec,
		idGen:     idGen,
		now:       time.Now,
		monitored: make(map[string]*monitoredExecution),
	}
}

func (s *Supervisor) nowFn() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Start runs the one-shot startup smart-recovery pass and, if any execution
// remains ambiguous afterward, launches the background monitor.
func (s *Supervisor) Start() error {
	if err := s.recoverCohortA(); err != nil {
		return fmt.Errorf("recovery: cohort A: %w", err)
	}
	skip, err := s.recoverCohortB()
	if err != nil {
		return fmt.Errorf("recovery: cohort B: %w", err)
	}

	now := s.nowFn()
	recovered, err := s.Store.RecoverStaleExecutions(skip, now)
	if err != nil {
		return fmt.Errorf("recovery: RecoverStaleExecutions: %w", err)
	}
	if recovered > 0 {
		log.Printf("[RECOVERY] marked %d stale running execution(s) failed after restart", recovered)
	}

	if err := s.requeueOrphanedNodes(); err != nil {
		return fmt.Errorf("recovery: requeue orphaned nodes: %w", err)
	}

	s.startMonitorIfNeeded()
	return nil
}

// recoverCohortA classifies every execution the Store shows running at
// start-up. Alive ones are added to the monitor (their row is left
// running); silently-completed ones are finalized as done immediately.
// Truly-dead ones are left untouched for RecoverStaleExecutions' batch
// call to fail.
func (s *Supervisor) recoverCohortA() error {
	stale, err := s.Store.GetStaleRunningExecutions()
	if err != nil {
		return err
	}
	now := s.nowFn()
	for _, se := range stale {
		ex := se.Execution
		node, err := s.Store.GetNode(ex.NodeID)
		if err != nil {
			log.Printf("[RECOVERY] cohort A: node %s for execution %s vanished: %v", ex.NodeID, ex.ID, err)
			continue
		}
		reader := sessionreader.For(node.AgentType)

		switch classify(ex.CliPID, reader, se.ProjectCwd, ex.SessionID, aliveMtimeStartup, now) {
		case statusAlive:
			s.addMonitored(&monitoredExecution{
				ExecutionID: ex.ID, NodeID: ex.NodeID, BlueprintID: ex.BlueprintID,
				ProjectCwd: se.ProjectCwd, AgentType: node.AgentType, SessionID: ex.SessionID,
				PID: ex.CliPID, StartedAt: ex.StartedAt,
			})
		case statusSilentlyCompleted:
			s.finalizeSilentlyCompleted(ex.ID, ex.NodeID, ex.BlueprintID, reader, se.ProjectCwd, ex.SessionID)
		case statusTrulyDead:
			// Left running; the batch RecoverStaleExecutions call fails it.
		}
	}
	return nil
}

// recoverCohortB classifies executions a previous restart may have wrongly
// killed (failed, carrying the restart sentinel, within the lookback
// window). Any found alive is reverted back to running and added to skip
// so the batch call doesn't re-fail it a second time.
func (s *Supervisor) recoverCohortB() ([]string, error) {
	now := s.nowFn()
	candidates, err := s.Store.GetRecentRestartFailedExecutions(restartLookback, now)
	if err != nil {
		return nil, err
	}

	var skip []string
	for _, ex := range candidates {
		bp, err := s.Store.GetBlueprint(ex.BlueprintID)
		if err != nil {
			log.Printf("[RECOVERY] cohort B: blueprint %s for execution %s vanished: %v", ex.BlueprintID, ex.ID, err)
			continue
		}
		node, err := s.Store.GetNode(ex.NodeID)
		if err != nil {
			log.Printf("[RECOVERY] cohort B: node %s for execution %s vanished: %v", ex.NodeID, ex.ID, err)
			continue
		}
		reader := sessionreader.For(node.AgentType)

		if classify(ex.CliPID, reader, bp.ProjectCwd, ex.SessionID, aliveMtimeStartup, now) != statusAlive {
			continue
		}

		running := types.ExecRunning
		if err := s.Store.UpdateExecution(ex.ID, store.ExecutionPatch{Status: &running, CompletedAt: clearTime()}); err != nil {
			log.Printf("[RECOVERY] cohort B: failed to revert execution %s to running: %v", ex.ID, err)
			continue
		}
		runningNode := types.NodeRunning
		if err := s.Store.UpdateNode(ex.NodeID, store.NodePatch{Status: &runningNode}, now); err != nil {
			log.Printf("[RECOVERY] cohort B: failed to revert node %s to running: %v", ex.NodeID, err)
		}

		skip = append(skip, ex.ID)
		s.addMonitored(&monitoredExecution{
			ExecutionID: ex.ID, NodeID: ex.NodeID, BlueprintID: ex.BlueprintID,
			ProjectCwd: bp.ProjectCwd, AgentType: node.AgentType, SessionID: ex.SessionID,
			PID: ex.CliPID, StartedAt: ex.StartedAt,
		})
	}
	return skip, nil
}

// requeueOrphanedNodes re-enqueues, verbatim, every node the Store shows as
// queued at start-up but which cannot match any in-memory blueprint queue
// entry (the process restarted with an empty queue.Manager).
func (s *Supervisor) requeueOrphanedNodes() error {
	orphans, err := s.Store.GetOrphanedQueuedNodes()
	if err != nil {
		return err
	}
	for _, n := range orphans {
		if _, err := s.Executor.Run(n.BlueprintID, n.ID); err != nil {
			log.Printf("[RECOVERY] failed to re-enqueue orphaned node %s: %v", n.ID, err)
		}
	}
	return nil
}

// clearTime returns the double-pointer Store patch shape for "set this
// nullable column back to NULL" (non-nil outer pointing at a nil inner).
func clearTime() **time.Time {
	var p *time.Time
	return &p
}

func (s *Supervisor) addMonitored(m *monitoredExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitored[m.ExecutionID] = m
}
