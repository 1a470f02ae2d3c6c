// Package pending implements the seq-keyed task registry ("notifier") of
// spec.md §4.3: it tracks every outbound request awaiting a response, expires
// requests that have sat too long, and routes responses (or terminal errors)
// back to the task that sent them.
//
// Ownership split (spec.md §5): RegTask is called by the sender goroutine;
// TakeTask, AdjustTaskQueue, CleanPendingTasks, and CheckPendingTasksEmpty are
// called exclusively by the receiver goroutine. Rather than guard the whole
// map with a mutex shared by both sides, registration is handed across with a
// small mutex-protected inbox slice that only the receiver drains
// (PollSentTask) — once drained, the seq-keyed map and the arrival-ordered
// FIFO are touched by the receiver alone, matching the Rust original's
// single-owner notifier (original_source/src/ll/client.rs,
// RpcClientTaskNotifier) rather than a plain sync.Map as mini-rpc's
// transport/client_transport.go uses for its simpler (un-timed) pending map.
package pending

import (
	"container/list"
	"sync"
	"time"

	"corerpc/retrysink"
	"corerpc/rpcerr"
	"corerpc/throttler"
)

// Task is the minimal surface the registry needs from a client task: a way
// to deliver a terminal failure, and a way to mark it resolved when it's
// handed off to the retry sink instead. Successful completion is delivered
// by the receiver directly (it holds the concrete task type after
// TakeTask), so it isn't part of this interface.
type Task interface {
	Fail(err error)
	Forwarded()
}

type entry struct {
	seq       uint64
	task      Task
	guard     throttler.Guard
	submitted time.Time
	elem      *list.Element
}

// Registry is the pending-task notifier for one connection.
type Registry struct {
	timeout time.Duration
	sink    *retrysink.Sink

	stoppedMu sync.Mutex
	stopped   bool

	inboxMu sync.Mutex
	inbox   []*entry

	// Owned exclusively by the receiver goroutine once drained from inbox.
	tasks map[uint64]*entry
	fifo  *list.List
}

// New creates a registry that expires entries older than timeout. sink may
// be nil (no retry forwarding).
func New(timeout time.Duration, sink *retrysink.Sink) *Registry {
	return &Registry{
		timeout: timeout,
		sink:    sink,
		tasks:   make(map[uint64]*entry),
		fifo:    list.New(),
	}
}

// RegTask registers a newly sent task under seq. If the registry has been
// stopped, the task is immediately failed with Closed and the error is
// returned. Safe to call concurrently with itself and with the receiver-side
// methods below.
func (r *Registry) RegTask(seq uint64, task Task, guard throttler.Guard) error {
	r.stoppedMu.Lock()
	stopped := r.stopped
	r.stoppedMu.Unlock()
	if stopped {
		guard.Done()
		task.Fail(rpcerr.ErrClosed)
		return rpcerr.ErrClosed
	}
	e := &entry{seq: seq, task: task, guard: guard, submitted: time.Now()}
	r.inboxMu.Lock()
	r.inbox = append(r.inbox, e)
	r.inboxMu.Unlock()
	return nil
}

// PollSentTask moves any freshly registered tasks from the inbox into the
// receiver-owned map and FIFO. Must only be called by the receiver goroutine.
func (r *Registry) PollSentTask() {
	r.inboxMu.Lock()
	if len(r.inbox) == 0 {
		r.inboxMu.Unlock()
		return
	}
	batch := r.inbox
	r.inbox = nil
	r.inboxMu.Unlock()

	for _, e := range batch {
		r.tasks[e.seq] = e
		e.elem = r.fifo.PushBack(e)
	}
}

// TakeTask looks up and removes the task registered under seq. It returns
// (nil, false) if no such task is pending — either it never existed, it
// already timed out, or the seq is simply unknown (a response for a seq the
// registry dropped must still be drained by the caller, not treated as an
// error). Must only be called by the receiver goroutine.
func (r *Registry) TakeTask(seq uint64) (Task, bool) {
	r.PollSentTask()
	e, ok := r.tasks[seq]
	if !ok {
		return nil, false
	}
	delete(r.tasks, seq)
	r.fifo.Remove(e.elem)
	e.guard.Done()
	return e.task, true
}

// AdjustTaskQueue walks the FIFO from the oldest entry, expiring (and
// failing with Timeout) every entry whose age has reached the configured
// timeout, stopping at the first still-live entry — the FIFO arrival order
// guarantees everything after that point is even younger. Must only be
// called by the receiver goroutine, once per second per spec.md §4.3/§9.
func (r *Registry) AdjustTaskQueue() {
	r.PollSentTask()
	now := time.Now()
	var expired []*entry
	for {
		front := r.fifo.Front()
		if front == nil {
			break
		}
		e := front.Value.(*entry)
		if now.Sub(e.submitted) < r.timeout {
			break
		}
		r.fifo.Remove(front)
		delete(r.tasks, e.seq)
		expired = append(expired, e)
	}
	for _, e := range expired {
		e.guard.Done()
		completeOrForward(e.task, rpcerr.ErrTimeout, r.sink)
	}
}

// StopRegTask latches the registry closed: every subsequent RegTask call
// fails immediately. Idempotent.
func (r *Registry) StopRegTask() {
	r.stoppedMu.Lock()
	r.stopped = true
	r.stoppedMu.Unlock()
}

// CleanPendingTasks fails every remaining entry (inbox and registered) with
// Closed, for connection teardown. Must only be called by the receiver
// goroutine.
func (r *Registry) CleanPendingTasks() {
	r.PollSentTask()
	for seq, e := range r.tasks {
		delete(r.tasks, seq)
		r.fifo.Remove(e.elem)
		e.guard.Done()
		completeOrForward(e.task, rpcerr.ErrClosed, r.sink)
	}
}

// CheckPendingTasksEmpty reports whether the registry (including any
// not-yet-absorbed inbox entries) currently holds no tasks.
func (r *Registry) CheckPendingTasksEmpty() bool {
	r.PollSentTask()
	return len(r.tasks) == 0
}

// completeOrForward tries the retry sink first; only when the sink is absent,
// full, or its receiver has gone away does the task get completed directly —
// this keeps "forwarded to retry sink" and "completed by the core" mutually
// exclusive outcomes (spec.md §8 invariant 3). Either way the task resolves
// exactly once, so its pending-count accounting always gets released even
// when the sink accepts it.
func completeOrForward(task Task, err error, sink *retrysink.Sink) {
	if sink.TrySend(task, err) {
		task.Forwarded()
		return
	}
	task.Fail(err)
}
