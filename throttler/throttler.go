// Package throttler implements the sliding-window admission control described
// in spec.md §4.2: a semaphore-like counter that bounds the number of
// in-flight requests per connection, with async blocking admission and a
// "nearly full" hedge signal for callers that want to pre-empt congestion.
//
// There is no teacher equivalent for this concern — mini-rpc never bounds
// in-flight work — so this is built directly from the Rust original's
// throttler.add_task()/throttle()/nearly_full() call sites
// (original_source/src/ll/client.rs), translated into Go's sync.Cond idiom.
// golang.org/x/time/rate (the teacher's rate-limiting dependency) is a
// token-bucket limiter and doesn't model "bound the count of concurrently
// outstanding requests", so it isn't used here.
package throttler

import "sync"

// Throttler bounds in-flight task count to a configured threshold. A
// threshold of 0 disables throttling entirely: Throttle always admits
// immediately and NearlyFull always reports false.
type Throttler struct {
	mu        sync.Mutex
	cond      *sync.Cond
	threshold int
	inFlight  int
	closed    bool
}

// New creates a Throttler bounded at threshold in-flight tasks. threshold <=
// 0 disables throttling.
func New(threshold int) *Throttler {
	t := &Throttler{threshold: threshold}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Guard is returned by AddTask; its Done must be called exactly once, when
// the task completes or is cancelled, to release the admission slot.
type Guard struct {
	t *Throttler
}

// Done releases the in-flight slot this guard was holding. Safe to call from
// any goroutine, at most once.
func (g Guard) Done() {
	if g.t == nil {
		return
	}
	g.t.release()
}

// AddTask increments the in-flight count and returns a Guard that must be
// released when the task finishes. Callers release in completion order, not
// admission order — no fairness is implied or required.
func (t *Throttler) AddTask() Guard {
	t.mu.Lock()
	t.inFlight++
	t.mu.Unlock()
	return Guard{t: t}
}

func (t *Throttler) release() {
	t.mu.Lock()
	t.inFlight--
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Disabled reports whether throttling is off (threshold <= 0).
func (t *Throttler) Disabled() bool {
	return t.threshold <= 0
}

// NearlyFull reports whether in-flight count has reached the threshold
// already (used by callers to pre-hedge before even attempting admission).
func (t *Throttler) NearlyFull() bool {
	if t.Disabled() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight >= t.threshold
}

// Throttle blocks the caller while in-flight >= threshold. It returns true
// once admission is granted, or false if the connection closed (via Close)
// while waiting — the caller must abort rather than proceed.
func (t *Throttler) Throttle() bool {
	if t.Disabled() {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.closed && t.inFlight >= t.threshold {
		t.cond.Wait()
	}
	return !t.closed
}

// Close unblocks every goroutine currently parked in Throttle, making them
// return false. Idempotent.
func (t *Throttler) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cond.Broadcast()
}

// InFlight returns the current in-flight count, for logging/diagnostics
// (spec.md §4.5's "log throttler depth" on each tick).
func (t *Throttler) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}
