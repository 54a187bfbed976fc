// Package engine wires together the process-wide singletons described in
// spec §9: one Store, one Queue Manager, one Callback Registry, one
// Executor, one Recovery Supervisor, and the embedded event bus that
// broadcasts lifecycle deltas to live-tailing subscribers. It owns their
// construction and shutdown order; cmd/macroforge builds and closes it and
// internal/httpapi serves it.
package engine

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/macroforge/macroforge/internal/callback"
	"github.com/macroforge/macroforge/internal/config"
	"github.com/macroforge/macroforge/internal/eventbus"
	"github.com/macroforge/macroforge/internal/executor"
	"github.com/macroforge/macroforge/internal/metrics"
	"github.com/macroforge/macroforge/internal/notify"
	"github.com/macroforge/macroforge/internal/queue"
	"github.com/macroforge/macroforge/internal/recovery"
	"github.com/macroforge/macroforge/internal/store"
)

// Engine is the assembled, running service. Every field is safe for
// concurrent use by the HTTP layer.
type Engine struct {
	Config    *config.Config
	Store     *store.Store
	Queue     *queue.Manager
	Callbacks *callback.Registry
	Notifier  *notify.Notifier
	Executor  *executor.Executor
	Recovery  *recovery.Supervisor
	Metrics   metrics.Collector
	Alerts    *metrics.AlertChecker

	eventServer *eventbus.Server
	eventClient *eventbus.Client
}

// New constructs every singleton and runs the start-up recovery pass, but
// does not yet start accepting HTTP traffic; the caller (cmd/macroforge)
// does that once New returns successfully.
func New(cfg *config.Config) (*Engine, error) {
	st, err := store.Open(cfg.DataDir + "/macroforge.db")
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	eventServer := eventbus.NewServer(eventbus.ServerConfig{})
	if err := eventServer.Start(); err != nil {
		st.Close()
		return nil, fmt.Errorf("engine: start event bus: %w", err)
	}

	eventClient, err := eventbus.NewClient(eventServer.URL())
	if err != nil {
		eventServer.Shutdown()
		st.Close()
		return nil, fmt.Errorf("engine: connect event bus: %w", err)
	}

	q := queue.NewManager(uuid.NewString)
	cb := callback.NewRegistry()
	notifier := notify.New(fmt.Sprintf("http://%s", cfg.ListenAddr))

	agentTypes := make(map[string]executor.AgentType, len(cfg.AgentTypes))
	for name, at := range cfg.AgentTypes {
		agentTypes[name] = executor.AgentType{BinaryPath: at.BinaryPath, ArgsTemplate: at.ArgsTemplate}
	}

	baseURL := fmt.Sprintf("http://%s", cfg.ListenAddr)
	exec := executor.New(st, q, cb, notifier, agentTypes, baseURL, cfg.AuthToken, uuid.NewString)
	exec.Publisher = eventClient

	sup := recovery.NewSupervisor(st, exec, uuid.NewString)
	if err := sup.Start(); err != nil {
		log.Printf("[ENGINE] recovery start-up pass reported an error: %v", err)
	}

	collector := metrics.NewCollector()
	alerts := metrics.NewAlertEngine(metrics.Thresholds{
		StaleExecutionLookback: cfg.AlertThresholds.StaleExecutionLookbackMinutes,
		SafetyCeilingMinutes:   cfg.AlertThresholds.SafetyCeilingMinutes,
	})

	return &Engine{
		Config:      cfg,
		Store:       st,
		Queue:       q,
		Callbacks:   cb,
		Notifier:    notifier,
		Executor:    exec,
		Recovery:    sup,
		Metrics:     collector,
		Alerts:      alerts,
		eventServer: eventServer,
		eventClient: eventClient,
	}, nil
}

// EventClient exposes the event bus client so the HTTP layer can subscribe
// its websocket live-tail hub without the engine importing httpapi.
func (e *Engine) EventClient() *eventbus.Client { return e.eventClient }

// Close releases every owned resource in reverse construction order.
func (e *Engine) Close() {
	if e.eventClient != nil {
		e.eventClient.Close()
	}
	if e.eventServer != nil {
		e.eventServer.Shutdown()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			log.Printf("[ENGINE] store close: %v", err)
		}
	}
}
