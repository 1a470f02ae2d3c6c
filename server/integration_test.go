package server_test

import (
	"testing"
	"time"

	"corerpc/client"
	"corerpc/codec"
	"corerpc/config"
	"corerpc/proto"
	"corerpc/rpcerr"
	"corerpc/server"
)

// Action codes used by echoDispatcher, mirroring spec.md §8's concrete
// scenarios (S1-S3 use an explicit action per behavior rather than
// inspecting the message, since this test has no real service layer).
const (
	actionEcho       = 10
	actionPosixErr   = 20
	actionRemoteErr  = 21
	actionSlow4s     = 22
	actionSlow500ms  = 23
)

type echoDispatcher struct{}

func (echoDispatcher) DispatchReq(cdc codec.Codec, req server.Request, noti server.RespNotifier) error {
	switch req.Action.Num {
	case actionEcho:
		noti.Success(req.Msg, req.Blob)
	case actionPosixErr:
		noti.Posix(1) // EPERM
	case actionRemoteErr:
		noti.Remote("divide by zero")
	case actionSlow4s:
		go func() {
			time.Sleep(4 * time.Second)
			noti.Success(req.Msg, nil)
		}()
	case actionSlow500ms:
		go func() {
			time.Sleep(500 * time.Millisecond)
			noti.Success(req.Msg, nil)
		}()
	default:
		noti.Posix(38) // ENOSYS
	}
	return nil
}

func startServer(t *testing.T, cfg config.ServerConfig) (*server.Server, string) {
	t.Helper()
	s := server.New(cfg, codec.Get(codec.FormatMsgpack), echoDispatcher{})
	if err := s.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	return s, s.LocalAddr()
}

func dialClient(t *testing.T, addr string, cfg config.ClientConfig) *client.Client {
	t.Helper()
	c, err := client.Dial("tcp", addr, 1, cfg, codec.Get(codec.FormatMsgpack), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

// S1 — Echo, success.
func TestEchoSuccess(t *testing.T) {
	s, addr := startServer(t, config.DefaultServerConfig())
	defer s.Close()
	c := dialClient(t, addr, config.DefaultClientConfig())
	defer c.Close()

	msg := []byte{0x81, 0xA3, 'm', 's', 'g', 0xA5, 'h', 'e', 'l', 'l', 'o'}
	task := client.NewTask(proto.NumAction(actionEcho), msg, nil)
	if err := c.SendTask(task, true); err != nil {
		t.Fatalf("send: %v", err)
	}
	res := task.Wait()
	if res.Err != nil {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if string(res.Msg) != string(msg) {
		t.Fatalf("echo mismatch: got %q want %q", res.Msg, msg)
	}
	if len(res.Blob) != 0 {
		t.Fatalf("expected empty blob, got %d bytes", len(res.Blob))
	}
}

// S2 — Posix error.
func TestPosixError(t *testing.T) {
	s, addr := startServer(t, config.DefaultServerConfig())
	defer s.Close()
	c := dialClient(t, addr, config.DefaultClientConfig())
	defer c.Close()

	task := client.NewTask(proto.NumAction(actionPosixErr), nil, nil)
	if err := c.SendTask(task, true); err != nil {
		t.Fatalf("send: %v", err)
	}
	res := task.Wait()
	rerr, ok := rpcerr.As(res.Err)
	if !ok || rerr.Kind != rpcerr.KindPosix || rerr.Errno != 1 {
		t.Fatalf("expected posix errno 1, got %v", res.Err)
	}
}

// S3 — String error.
func TestRemoteError(t *testing.T) {
	s, addr := startServer(t, config.DefaultServerConfig())
	defer s.Close()
	c := dialClient(t, addr, config.DefaultClientConfig())
	defer c.Close()

	task := client.NewTask(proto.NumAction(actionRemoteErr), nil, nil)
	if err := c.SendTask(task, true); err != nil {
		t.Fatalf("send: %v", err)
	}
	res := task.Wait()
	rerr, ok := rpcerr.As(res.Err)
	if !ok || rerr.Kind != rpcerr.KindRemote || rerr.Text != "divide by zero" {
		t.Fatalf("expected remote error, got %v", res.Err)
	}
}

// S4 — Timeout.
func TestTimeout(t *testing.T) {
	s, addr := startServer(t, config.DefaultServerConfig())
	defer s.Close()
	cfg := config.DefaultClientConfig()
	cfg.TaskTimeout = 2 * time.Second
	c := dialClient(t, addr, cfg)
	defer c.Close()

	task := client.NewTask(proto.NumAction(actionSlow4s), nil, nil)
	start := time.Now()
	if err := c.SendTask(task, true); err != nil {
		t.Fatalf("send: %v", err)
	}
	res := task.Wait()
	elapsed := time.Since(start)
	if !rpcerrIsTimeout(res.Err) {
		t.Fatalf("expected timeout, got %v", res.Err)
	}
	if elapsed < 2*time.Second || elapsed > 3*time.Second {
		t.Fatalf("timeout fired outside [2s,3s]: %v", elapsed)
	}
}

func rpcerrIsTimeout(err error) bool {
	rerr, ok := rpcerr.As(err)
	return ok && rerr.Kind == rpcerr.KindTimeout
}

// S5 — Graceful close with an in-flight task.
func TestGracefulCloseDrainsInFlight(t *testing.T) {
	s, addr := startServer(t, config.DefaultServerConfig())
	c := dialClient(t, addr, config.DefaultClientConfig())
	defer c.Close()

	task := client.NewTask(proto.NumAction(actionSlow500ms), []byte("payload"), nil)
	if err := c.SendTask(task, true); err != nil {
		t.Fatalf("send: %v", err)
	}

	closeDone := make(chan struct{})
	go func() {
		s.Close()
		close(closeDone)
	}()

	res := task.Wait()
	if res.Err != nil {
		t.Fatalf("expected the in-flight handler to complete, got %v", res.Err)
	}
	<-closeDone
}

// S6 — Forced close, abandoned tasks.
func TestAbortFailsAllPending(t *testing.T) {
	s, addr := startServer(t, config.DefaultServerConfig())
	defer s.Close()
	c := dialClient(t, addr, config.DefaultClientConfig())

	const n = 10
	tasks := make([]*client.Task, n)
	for i := range tasks {
		tasks[i] = client.NewTask(proto.NumAction(actionSlow4s), nil, nil)
		if err := c.SendTask(tasks[i], true); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	c.Abort()

	for i, task := range tasks {
		res := task.Wait()
		if res.Err == nil {
			t.Fatalf("task %d: expected Closed error, got success", i)
		}
		if !rpcerrIsClosed(res.Err) {
			t.Fatalf("task %d: expected Closed, got %v", i, res.Err)
		}
	}
}

func rpcerrIsClosed(err error) bool {
	rerr, ok := rpcerr.As(err)
	return ok && rerr.Kind == rpcerr.KindClosed
}

// S7 — Ping.
func TestPing(t *testing.T) {
	s, addr := startServer(t, config.DefaultServerConfig())
	defer s.Close()
	c := dialClient(t, addr, config.DefaultClientConfig())
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
