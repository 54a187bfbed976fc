// Package executor implements the Node Executor (spec §4.6): it builds
// agent prompts, drives a node through the Blueprint Queue and Process
// Runner, reconciles the agent's reported outcome with stdout inference,
// generates handoff artifacts, and applies the agent-driven graph
// mutations a post-completion evaluation may request.
package executor

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/macroforge/macroforge/internal/callback"
	"github.com/macroforge/macroforge/internal/notify"
	"github.com/macroforge/macroforge/internal/queue"
	"github.com/macroforge/macroforge/internal/store"
)

// AgentType is the per-agent-type registration the Executor needs to spawn
// and resume a CLI: the binary to run and how to render its argument list.
type AgentType struct {
	BinaryPath string
	// ArgsTemplate is a whitespace-separated argument template; the literal
	// token "@promptfile" is replaced with the prompt's temp file path. When
	// resumeSessionID is non-empty, "--resume <id>" is appended.
	ArgsTemplate string
}

// Publisher is the narrow slice of internal/eventbus.Client the Executor
// needs: broadcasting node/execution lifecycle deltas. Declared locally so
// this package does not import eventbus (which in turn would pull in the
// embedded NATS server); the engine wires a concrete *eventbus.Client in.
type Publisher interface {
	Publish(subject string, v interface{}) error
}

// noopPublisher is used when the engine is constructed without an event
// bus (e.g. in tests).
type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) error { return nil }

// Executor is the engine's Node Executor. It is process-wide state, owned
// by the engine handle and constructed once at start-up (spec §9).
type Executor struct {
	Store      *store.Store
	Queue      *queue.Manager
	Callbacks  *callback.Registry
	Notifier   *notify.Notifier
	Publisher  Publisher
	AgentTypes map[string]AgentType

	// BaseURL is this service's own address, used to build the curl
	// callback commands embedded in a node's prompt.
	BaseURL   string
	AuthToken string

	idGen func() string
	now   func() time.Time
}

// New constructs an Executor. idGen mints UUIDs (the caller typically
// passes uuid.NewString); now defaults to time.Now when nil, overridable
// so tests can pin timestamps.
func New(st *store.Store, q *queue.Manager, cb *callback.Registry, notifier *notify.Notifier,
	agentTypes map[string]AgentType, baseURL, authToken string, idGen func() string) *Executor {
	if idGen == nil {
		panic("executor: idGen is required")
	}
	return &Executor{
		Store:      st,
		Queue:      q,
		Callbacks:  cb,
		Notifier:   notifier,
		Publisher:  noopPublisher{},
		AgentTypes: agentTypes,
		BaseURL:    baseURL,
		AuthToken:  authToken,
		idGen:      idGen,
		now:        time.Now,
	}
}

func (e *Executor) nowFn() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// buildArgs renders an AgentType's ArgsTemplate into an argv slice.
func buildArgs(tpl, promptFile, resumeSessionID string) []string {
	fields := strings.Fields(tpl)
	args := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		if f == "@promptfile" {
			args = append(args, promptFile)
			continue
		}
		args = append(args, f)
	}
	if resumeSessionID != "" {
		args = append(args, "--resume", resumeSessionID)
	}
	return args
}

func logf(component, format string, args ...interface{}) {
	log.Printf("[%s] %s", component, fmt.Sprintf(format, args...))
}
