// Package retrysink implements the optional "retry sink" collaborator of
// spec.md §7: every task that fails, for any reason, is handed to this sink
// instead of being completed directly, so a higher-layer pool
// can decide whether to retry the call on a different connection. The core
// never retries on its own — that policy lives outside THE CORE by design
// (spec.md §1 Non-goals: "Failover pool, multi-endpoint routing, client
// connection pooling").
//
// There is no teacher equivalent (mini-rpc has no retry concept at all); this
// mirrors the Rust original's retry_with_err! macro in
// original_source/src/ll/client.rs: try a non-blocking send, and if the sink
// is full or its receiver has gone away, the caller falls back to completing
// the task's own result channel directly.
package retrysink

// Failure pairs a failed task with the error it failed with. Task is `any`
// rather than a generic type parameter so this package stays independent of
// what a "task" looks like in client or pending — those packages define their
// own Task interfaces and only need to know this carries one of their values.
type Failure struct {
	Task any
	Err  error
}

// Sink is a bounded forwarding channel for failed tasks. A nil *Sink
// is valid and behaves as "no sink configured".
type Sink struct {
	ch chan Failure
}

// New creates a sink with the given channel buffer depth. A small buffer is
// normal: the sink exists to decouple "this task failed" from "a pool
// goroutine decided what to do about it", not to queue unboundedly.
func New(buf int) *Sink {
	return &Sink{ch: make(chan Failure, buf)}
}

// TrySend attempts a non-blocking forward. It reports whether the failure
// was accepted; on false, the caller owns the task's completion and must
// complete it directly (spec.md §7: "If the retry sink is full or dropped,
// the task's result channel receives the error directly").
func (s *Sink) TrySend(task any, err error) bool {
	if s == nil {
		return false
	}
	select {
	case s.ch <- Failure{Task: task, Err: err}:
		return true
	default:
		return false
	}
}

// C exposes the receive side for the pool layer that consumes failures.
func (s *Sink) C() <-chan Failure {
	if s == nil {
		return nil
	}
	return s.ch
}
