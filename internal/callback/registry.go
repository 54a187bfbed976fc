// Package callback implements the request-scoped half of the Callback
// Registry (spec §4.5). Execution-scoped callbacks (blockerInfo,
// taskSummary, reportedStatus) are not a registry at all — they are direct
// Store writes the Executor re-reads after the process exits; see
// internal/store.
package callback

import (
	"errors"
	"sync"
	"time"
)

// Timeout is the fixed wait for an answer, counted from the moment the
// owning task begins executing (not from when it was enqueued). A var
// rather than a const so tests can shrink it without waiting out the real
// 120s window.
var Timeout = 120 * time.Second

// ErrTimeout is returned by Await when no answer arrived within Timeout.
var ErrTimeout = errors.New("callback: request timed out waiting for response")

// ErrUnknownRequest is returned by Resolve/Reject when requestID is not
// registered (already answered, already timed out, or never existed).
var ErrUnknownRequest = errors.New("callback: unknown request id")

type pending struct {
	ch    chan result
	timer *time.Timer
}

type result struct {
	value interface{}
	err   error
}

// Registry is the in-memory requestId -> waiter map. It is process-wide
// state owned by the engine handle, constructed once and passed by
// reference (spec §9).
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*pending
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[string]*pending)}
}

// Register opens a wait slot for requestID, started now. The caller embeds
// requestID as a callback URL parameter in the agent's prompt, then calls
// Await to block for the answer.
func (r *Registry) Register(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &pending{ch: make(chan result, 1)}
	p.timer = time.AfterFunc(Timeout, func() {
		r.Reject(requestID, ErrTimeout)
	})
	r.waiters[requestID] = p
}

// Await blocks until requestID is resolved, rejected, or its timeout
// fires, then removes the entry.
func (r *Registry) Await(requestID string) (interface{}, error) {
	r.mu.Lock()
	p, ok := r.waiters[requestID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownRequest
	}

	res := <-p.ch

	r.mu.Lock()
	delete(r.waiters, requestID)
	r.mu.Unlock()

	return res.value, res.err
}

// Resolve answers a pending request with a value (the agent's
// enrichment-callback POST body, typically).
func (r *Registry) Resolve(requestID string, value interface{}) error {
	return r.finish(requestID, value, nil)
}

// Reject answers a pending request with an error, stopping its timer if it
// has not already fired.
func (r *Registry) Reject(requestID string, err error) error {
	return r.finish(requestID, nil, err)
}

func (r *Registry) finish(requestID string, value interface{}, err error) error {
	r.mu.Lock()
	p, ok := r.waiters[requestID]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}

	p.timer.Stop()
	select {
	case p.ch <- result{value: value, err: err}:
	default:
		// Already answered or already timed out; first writer wins.
	}
	return nil
}

// Pending reports whether requestID currently has an open wait slot.
func (r *Registry) Pending(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waiters[requestID]
	return ok
}
