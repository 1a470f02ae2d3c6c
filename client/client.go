// Package client implements the client half of the core (spec.md §4.4-§4.5):
// a sender side (Client.SendTask/FlushReq/Ping) that frames and writes
// outbound tasks, and a receiver side (Client.receiveLoop) that
// demultiplexes inbound responses back onto them by sequence number.
//
// The two halves are deliberately asymmetric in ownership, mirroring the Rust
// original (original_source/src/ll/client.rs): SendTask/Ping/FlushReq may be
// called from any goroutine (mini-rpc's transport/client_transport.go takes
// the same stance — callers dial once and invoke Send/Call freely), but only
// one goroutine — the one running receiveLoop — ever touches the pending
// registry's receiver-side methods or the buffered reader.
package client

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"corerpc/codec"
	"corerpc/config"
	"corerpc/pending"
	"corerpc/proto"
	"corerpc/retrysink"
	"corerpc/rpcerr"
	"corerpc/throttler"
)

// Client is one connection to a corerpc server. Zero value is not usable;
// build one with New or Dial.
type Client struct {
	conn     net.Conn
	w        *bufio.Writer
	r        *bufio.Reader
	clientID uint64
	cfg      config.ClientConfig
	codec    codec.Codec

	seq              atomic.Uint64
	closed           atomic.Bool
	hasErr           atomic.Bool
	pendingTaskCount atomic.Int64
	lastRespUnixNano atomic.Int64

	throttler *throttler.Throttler // nil disables throttling entirely
	registry  *pending.Registry
	sink      *retrysink.Sink

	sendMu    sync.Mutex // serializes writer access across SendTask/FlushReq/Ping
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to addr over network ("tcp" or "unix") and starts the
// receiver loop.
func Dial(network, addr string, clientID uint64, cfg config.ClientConfig, cdc codec.Codec, sink *retrysink.Sink) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, rpcerr.Comm(err)
	}
	c := New(conn, clientID, cfg, cdc, sink)
	c.Start()
	return c, nil
}

// New wraps an already-established connection. Call Start to begin receiving
// responses; separated from construction so callers can register the Client
// with other bookkeeping (e.g. a connection pool) before traffic starts.
func New(conn net.Conn, clientID uint64, cfg config.ClientConfig, cdc codec.Codec, sink *retrysink.Sink) *Client {
	c := &Client{
		conn:     conn,
		w:        bufio.NewWriterSize(conn, 32*1024),
		r:        bufio.NewReaderSize(conn, 32*1024),
		clientID: clientID,
		cfg:      cfg,
		codec:    cdc,
		registry: pending.New(cfg.TaskTimeout, sink),
		sink:     sink,
	}
	if cfg.ThrottlerThreshold > 0 {
		c.throttler = throttler.New(cfg.ThrottlerThreshold)
	}
	return c
}

// Start launches the receiver goroutine. Must be called exactly once.
func (c *Client) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.receiveLoop()
	}()
}

// NewTask encodes v with the client's codec and builds a Task ready to send.
func (c *Client) NewTask(action proto.Action, v any, blob []byte) (*Task, error) {
	msg, err := c.codec.Encode(v)
	if err != nil {
		return nil, rpcerr.Decode(err.Error())
	}
	return NewTask(action, msg, blob), nil
}

// IsClosed reports whether the connection has begun (or finished) closing.
func (c *Client) IsClosed() bool { return c.closed.Load() }

// HasErr reports whether the connection closed because of a communication
// failure, as opposed to an orderly Close.
func (c *Client) HasErr() bool { return c.hasErr.Load() }

// LastResponseTime returns the time the most recent response frame was
// received, or the zero Time if none has arrived yet. This is the liveness
// stamp the Rust original calls last_resp_ts, used by pool layers to decide
// a connection has gone quiet without waiting for a full timeout.
func (c *Client) LastResponseTime() time.Time {
	ns := c.lastRespUnixNano.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// WillBlock reports whether the next SendTask is likely to block in the
// throttler — a hedge signal for callers that would rather route the call
// elsewhere than wait.
func (c *Client) WillBlock() bool {
	return c.throttler != nil && c.throttler.NearlyFull()
}

// PendingTaskCount returns the number of tasks sent but not yet resolved.
func (c *Client) PendingTaskCount() int64 { return c.pendingTaskCount.Load() }

// Close begins an orderly shutdown: no further tasks may be registered, and
// the receiver drains in-flight responses until the registry empties, then
// exits. Close does not block for that drain; use Wait to join it.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.registry.StopRegTask()
		if c.throttler != nil {
			c.throttler.Close()
		}
		// Force any blocked Read loose immediately rather than waiting for
		// the receiver's own next tick boundary.
		c.conn.SetReadDeadline(time.Now())
	})
}

// Abort closes the connection and marks it as failed. Unlike Close (which
// lets the receiver keep draining in-flight replies until the registry
// empties), setting hasErr first makes the receiver's own close check fail
// every pending task with Closed immediately on its next wake — Abort never
// touches the registry directly, since only the receiver goroutine owns it.
func (c *Client) Abort() {
	c.hasErr.Store(true)
	c.Close()
}

// Wait blocks until the receiver goroutine has exited (connection fully
// torn down, every pending task resolved).
func (c *Client) Wait() {
	c.wg.Wait()
}
