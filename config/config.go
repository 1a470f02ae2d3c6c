// Package config holds the plain-struct configuration for the client and
// server engines (spec.md §6). Mirroring the teacher, there is no loader
// here — config-loading is an explicit non-goal of spec.md §1, so callers
// build these values directly the way mini-rpc's NewClient/Serve take their
// arguments.
package config

import "time"

// ClientConfig configures one client connection.
type ClientConfig struct {
	// TaskTimeout is how long a task may sit in the pending registry before
	// the 1-second sweep expires it with rpcerr.ErrTimeout.
	TaskTimeout time.Duration
	// ReadTimeout bounds each read of a response once its first byte has
	// arrived (the rest of the header, the message and the blob), whether or
	// not the connection is closing. The wait for the first byte of the next
	// response is not bounded by it, before or after Close: the receiver
	// re-arms that wait at every 1-second tick.
	ReadTimeout time.Duration
	// WriteTimeout bounds every write call and every flush.
	WriteTimeout time.Duration
	// ThrottlerThreshold bounds in-flight requests; 0 disables throttling.
	ThrottlerThreshold int
	// RetrySinkBuffer is not read by the client package: client.New and
	// client.Dial take the retry sink as an argument (nil for no sink), so a
	// caller that wants one builds it with retrysink.New itself.
	RetrySinkBuffer int
}

// DefaultClientConfig mirrors the teacher's defaults-by-convention approach
// (mini-rpc hardcodes a 30s heartbeat interval and a 33KiB stream buffer);
// corerpc exposes the same shape of sensible defaults as a starting point.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		TaskTimeout:        30 * time.Second,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		ThrottlerThreshold: 0,
		RetrySinkBuffer:    0,
	}
}

// ServerConfig configures one server listener.
type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// IdleTimeout bounds how long a reader will wait for the next request
	// header before giving up once the connection is otherwise idle.
	IdleTimeout time.Duration
	// ServerCloseWait bounds how long Close waits for in-flight connections
	// to drain before giving up (spec.md §4.8).
	ServerCloseWait time.Duration
	// StreamBufSize sizes the buffered reader/writer wrapping each accepted
	// connection.
	StreamBufSize int
	// RateLimit, if non-zero, bounds accepted requests per second across
	// the whole server (server.New builds one limiter from it that every
	// connection's reader consults — adapted from the teacher's
	// rate_limit_middleware.go). 0 disables rate limiting.
	RateLimit float64
	// RateLimitBurst is the token-bucket burst size used alongside RateLimit.
	RateLimitBurst int
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ServerCloseWait: 30 * time.Second,
		StreamBufSize:   33 * 1024,
	}
}
