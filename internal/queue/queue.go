// Package queue implements the Blueprint Queue (spec §4.4): one FIFO per
// blueprint, serializing tasks within a blueprint while letting different
// blueprints run fully in parallel.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TaskType names the kind of work a queued task performs.
type TaskType string

const (
	TaskRun        TaskType = "run"
	TaskReevaluate TaskType = "reevaluate"
	TaskEnrich     TaskType = "enrich"
	TaskGenerate   TaskType = "generate"
	TaskSplit      TaskType = "split"
	TaskSmartDeps  TaskType = "smart_deps"
)

// Func is the work a task performs once it reaches the head of its
// blueprint's queue. It may itself spawn concurrent sub-operations; none of
// those extend the blueprint's mutual-exclusion domain.
type Func func(ctx context.Context) (interface{}, error)

// Future is returned by Enqueue. Await blocks until the task completes or
// is cancelled by Remove.
type Future struct {
	done chan struct{}
	val  interface{}
	err  error
}

// Await blocks for the task's eventual value, or ctx's cancellation.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ErrCancelled is the error a Future resolves with when its task is
// removed before it starts.
var ErrCancelled = &cancelledError{}

type cancelledError struct{}

func (*cancelledError) Error() string { return "queue: task cancelled" }

// task is one pending or running unit of work.
type task struct {
	id       string
	typ      TaskType
	nodeID   *string
	queuedAt time.Time
	fn       Func
	future   *Future
}

// PendingTask is the public view of one queued (not-yet-run) task.
type PendingTask struct {
	Type     TaskType
	NodeID   *string
	QueuedAt time.Time
}

// Info is the per-blueprint introspection view.
type Info struct {
	Running      bool
	Depth        int
	PendingTasks []PendingTask
}

// GlobalEntry enriches Info with identifying fields for the aggregated
// global view; the global-status route fills SessionID with the currently
// running node's active session id, if any.
type GlobalEntry struct {
	BlueprintID    string
	BlueprintTitle string
	Running        bool
	Depth          int
	NodeID         string
	NodeTitle      string
	SessionID      string
}

// blueprintQueue is the per-blueprint FIFO and its worker state.
type blueprintQueue struct {
	mu      sync.Mutex
	pending []*task
	running *task
	started bool // a worker goroutine is alive and draining pending
}

// Manager owns every blueprint's queue. It is a singleton owned by the
// engine handle (spec §9), constructed explicitly and passed by reference.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*blueprintQueue
	nextID func() string
}

// NewManager constructs an empty Manager. idGen mints task ids (the caller
// typically passes uuid.NewString).
func NewManager(idGen func() string) *Manager {
	return &Manager{queues: make(map[string]*blueprintQueue), nextID: idGen}
}

func (m *Manager) queueFor(blueprintID string) *blueprintQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[blueprintID]
	if !ok {
		q = &blueprintQueue{}
		m.queues[blueprintID] = q
	}
	return q
}

// Enqueue appends a task to blueprintID's FIFO and returns a Future for its
// eventual value. Tasks for the same blueprint always run strictly
// serially; tasks for different blueprints run concurrently.
func (m *Manager) Enqueue(blueprintID string, typ TaskType, nodeID *string, fn Func) *Future {
	t := &task{
		id:       m.nextID(),
		typ:      typ,
		nodeID:   nodeID,
		queuedAt: time.Now(),
		fn:       fn,
		future:   &Future{done: make(chan struct{})},
	}

	q := m.queueFor(blueprintID)
	q.mu.Lock()
	q.pending = append(q.pending, t)
	needsWorker := !q.started
	if needsWorker {
		q.started = true
	}
	q.mu.Unlock()

	if needsWorker {
		go m.drain(blueprintID, q)
	}
	return t.future
}

// drain runs pending tasks strictly serially until the FIFO empties, then
// marks the queue stopped so a later Enqueue starts a fresh worker.
func (m *Manager) drain(blueprintID string, q *blueprintQueue) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.started = false
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.running = t
		q.mu.Unlock()

		val, err := t.fn(context.Background())

		q.mu.Lock()
		q.running = nil
		q.mu.Unlock()

		t.future.val, t.future.err = val, err
		close(t.future.done)
	}
}

// Remove cancels a not-yet-started task belonging to blueprintID and
// matching nodeID. Returns false if no such pending task exists, or if it
// is already running (removal of a running task is always refused).
func (m *Manager) Remove(blueprintID, nodeID string) bool {
	q := m.queueFor(blueprintID)
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.pending {
		if t.nodeID != nil && *t.nodeID == nodeID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			t.future.err = ErrCancelled
			close(t.future.done)
			return true
		}
	}
	return false
}

// Info returns the introspection view for one blueprint's queue.
func (m *Manager) Info(blueprintID string) Info {
	q := m.queueFor(blueprintID)
	q.mu.Lock()
	defer q.mu.Unlock()

	info := Info{Running: q.running != nil, Depth: len(q.pending)}
	for _, t := range q.pending {
		info.PendingTasks = append(info.PendingTasks, PendingTask{
			Type: t.typ, NodeID: t.nodeID, QueuedAt: t.queuedAt,
		})
	}
	return info
}

// RunningNodeID returns the node id of the task currently executing for
// blueprintID, or "" if the queue is idle.
func (m *Manager) RunningNodeID(blueprintID string) string {
	q := m.queueFor(blueprintID)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running != nil && q.running.nodeID != nil {
		return *q.running.nodeID
	}
	return ""
}

// BlueprintIDs returns every blueprint id the Manager currently tracks a
// queue for, in a stable (sorted) order. An empty queue (no pending or
// running task) is still tracked until garbage-collected by nothing in
// particular — queues are cheap and intentionally never pruned, matching
// the teacher's always-resident task queue.
func (m *Manager) BlueprintIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
