package client

import (
	"sync"

	"corerpc/proto"
)

// Result is what a Task eventually resolves to: either the response message
// (plus blob, if the task supplied a buffer for it) or a terminal error.
type Result struct {
	Msg  []byte
	Blob []byte
	Err  error
}

// Task is a single outbound unit of work (spec.md §3). Seq is assigned
// exactly once by Client.SendTask; a Task's result is set at most once,
// whether via a successful round trip, a remote/posix error, a timeout, or a
// connection close. A failed task accepted by the retry sink gets no result
// here (see Forwarded).
type Task struct {
	Action proto.Action
	Msg    []byte // pre-encoded request message; may be empty
	Blob   []byte // optional request blob; nil if none

	// RespBlobBuf, if set, is used as-is to receive an inbound response
	// blob — it must be exactly the response's blob length, or the task
	// fails with Decode. Leave nil and set GetRespBlob instead when the
	// blob length isn't known ahead of time.
	RespBlobBuf []byte
	// GetRespBlob is consulted when RespBlobBuf is nil and the response
	// carries a non-zero blob; it must return a buffer of exactly n bytes.
	// Returning ok=false fails the task with Decode.
	GetRespBlob func(n uint32) (buf []byte, ok bool)

	seq uint64

	resultCh   chan Result
	once       sync.Once
	onComplete func() // hooked by Client once the task is registered
}

// NewTask builds a task carrying a pre-encoded message and optional blob.
func NewTask(action proto.Action, msg, blob []byte) *Task {
	return &Task{
		Action:   action,
		Msg:      msg,
		Blob:     blob,
		resultCh: make(chan Result, 1),
	}
}

// Seq returns the sequence number assigned to this task, or 0 if it hasn't
// been sent yet.
func (t *Task) Seq() uint64 { return t.seq }

func (t *Task) setSeq(seq uint64) { t.seq = seq }

// Fail completes the task with a terminal error. Implements pending.Task.
func (t *Task) Fail(err error) {
	t.complete(Result{Err: err})
}

// Forwarded marks the task resolved without setting a result, for when the
// task has been handed off to the retry sink instead of completed directly
// (the sink's consumer owns it from here). Shares the once-guard with
// complete so the two outcomes stay mutually exclusive, and still runs
// onComplete so the task's admission/pending-count accounting is released
// exactly once regardless of which path resolved it. Implements
// pending.Task.
func (t *Task) Forwarded() {
	t.once.Do(func() {
		if t.onComplete != nil {
			t.onComplete()
		}
	})
}

func (t *Task) complete(r Result) {
	t.once.Do(func() {
		if t.onComplete != nil {
			t.onComplete()
		}
		t.resultCh <- r
	})
}

// Wait blocks until the task completes and returns its result.
func (t *Task) Wait() Result {
	return <-t.resultCh
}

// Done exposes the completion channel for callers that want to select on it
// alongside other work instead of blocking in Wait.
func (t *Task) Done() <-chan Result {
	return t.resultCh
}

// respBlobBuf resolves the buffer to read an n-byte response blob into, per
// spec.md §4.5: "request a writable blob buffer of exactly that length from
// the task". Returns ok=false when the task provides no usable buffer.
func (t *Task) respBlobBuf(n uint32) ([]byte, bool) {
	if t.RespBlobBuf != nil {
		if uint32(len(t.RespBlobBuf)) != n {
			return nil, false
		}
		return t.RespBlobBuf, true
	}
	if t.GetRespBlob != nil {
		return t.GetRespBlob(n)
	}
	return nil, n == 0
}
