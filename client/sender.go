package client

import (
	"time"

	"corerpc/proto"
	"corerpc/retrysink"
	"corerpc/rpcerr"
	"corerpc/throttler"
)

// flushThreshold is the per-task byte budget past which a write is flushed
// unconditionally, so one very large message can't sit buffered indefinitely
// behind a caller that never asks for an explicit flush (spec.md §4.4 step 4).
const flushThreshold = 32 * 1024

// SendTask frames task, writes it to the connection, and registers it with
// the pending registry so its eventual response (or timeout, or connection
// close) resolves task.Wait(). needFlush forces an immediate flush of the
// buffered writer regardless of the accumulated byte threshold — set it for
// latency-sensitive calls that shouldn't wait behind batching.
//
// Mirrors spec.md §4.4's five-step algorithm: account for the task before
// attempting anything (so a racing Close can't leave it double-counted),
// wait for throttler admission before the frame ever reaches the wire (the
// bound only holds if a blocked sender hasn't already written its bytes),
// then allocate its sequence number, write its frame, and register it —
// rolling the accounting and the admission slot back on any failure along
// the way.
func (c *Client) SendTask(task *Task, needFlush bool) error {
	c.pendingTaskCount.Add(1)

	if c.closed.Load() {
		c.pendingTaskCount.Add(-1)
		forwardOrFail(task, rpcerr.ErrClosed, c.sink)
		return rpcerr.ErrClosed
	}

	var guard throttler.Guard
	if c.throttler != nil {
		if !c.throttler.Throttle() {
			c.pendingTaskCount.Add(-1)
			forwardOrFail(task, rpcerr.ErrClosed, c.sink)
			return rpcerr.ErrClosed
		}
		guard = c.throttler.AddTask()
	}

	seq := c.seq.Add(1)
	task.setSeq(seq)

	if err := c.writeRequest(task, needFlush); err != nil {
		guard.Done()
		c.pendingTaskCount.Add(-1)
		c.markFatal()
		forwardOrFail(task, err, c.sink)
		return err
	}

	task.onComplete = func() { c.pendingTaskCount.Add(-1) }
	return c.registry.RegTask(seq, task, guard)
}

// FlushReq flushes any writes buffered by prior SendTask calls made with
// needFlush=false.
func (c *Client) FlushReq() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.flushLocked(); err != nil {
		c.markFatal()
		return err
	}
	return nil
}

// Ping writes the reserved ping action and flushes immediately. It does not
// wait for the server's reply — the reply arrives at the receiver under
// Ping's seq, finds no registered task, and is silently drained, exactly
// like any other response to a seq the registry no longer recognizes
// (spec.md §8 invariant 5). Ping returning nil means the write succeeded,
// not that a pong was observed.
func (c *Client) Ping() error {
	if c.closed.Load() {
		return rpcerr.ErrClosed
	}
	seq := c.seq.Add(1)
	header := proto.EncodeReqHeader(&proto.ReqHeader{
		Seq:      seq,
		ClientID: c.clientID,
		Ver:      proto.Version,
		Format:   uint8(c.codec.Format()),
		Action:   proto.PingAction,
	})

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.writeTimeout(header); err != nil {
		c.markFatal()
		return rpcerr.Comm(err)
	}
	if err := c.flushLocked(); err != nil {
		c.markFatal()
		return err
	}
	return nil
}

func (c *Client) writeRequest(task *Task, needFlush bool) error {
	header, actionStr, msg, blob := proto.BuildRequest(
		c.clientID, task.seq, task.Action, uint8(c.codec.Format()), task.Msg, task.Blob)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	total := len(header)
	if err := c.writeTimeout(header); err != nil {
		return rpcerr.Comm(err)
	}
	if task.Action.Str != nil {
		prefixed := proto.EncodeActionStr(actionStr)
		total += len(prefixed)
		if err := c.writeTimeout(prefixed); err != nil {
			return rpcerr.Comm(err)
		}
	}
	if len(msg) > 0 {
		total += len(msg)
		if err := c.writeTimeout(msg); err != nil {
			return rpcerr.Comm(err)
		}
	}
	if len(blob) > 0 {
		total += len(blob)
		if err := c.writeTimeout(blob); err != nil {
			return rpcerr.Comm(err)
		}
	}

	if needFlush || total >= flushThreshold {
		if err := c.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

// writeTimeout writes b under the configured write deadline. Caller holds sendMu.
func (c *Client) writeTimeout(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	_, err := c.w.Write(b)
	return err
}

// flushLocked flushes the buffered writer under the write deadline. Caller
// holds sendMu.
func (c *Client) flushLocked() error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.w.Flush(); err != nil {
		return rpcerr.Comm(err)
	}
	return nil
}

// markFatal transitions the connection to a failed-closed state: no further
// tasks may be sent, and the receiver will drain and fail everything pending
// once it next wakes (it may already be doing so, having hit the same I/O
// error from the read side).
func (c *Client) markFatal() {
	c.closed.Store(true)
	c.hasErr.Store(true)
	c.registry.StopRegTask()
	if c.throttler != nil {
		c.throttler.Close()
	}
}

// forwardOrFail applies the same sink-first, direct-completion-fallback rule
// as pending.Registry, for failures that occur before a task ever reaches
// the registry.
func forwardOrFail(task *Task, err error, sink *retrysink.Sink) {
	if sink.TrySend(task, err) {
		task.Forwarded()
		return
	}
	task.Fail(err)
}
