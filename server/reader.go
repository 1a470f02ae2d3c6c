package server

import (
	"io"
	"sync"
	"time"

	"corerpc/proto"
	"corerpc/rpcerr"
)

// errnoRateLimited is reported to a client whose request was rejected by the
// optional server-side rate shaper (POSIX EAGAIN: try again later).
const errnoRateLimited = 11

// readLoop is the per-connection reader coroutine (spec.md §4.6). It owns
// the read half of c exclusively, parses frames, and either answers the
// ping fast path directly or hands the request to the dispatcher. respCh is
// closed once the reader has returned AND every notifier it handed out has
// been resolved — tracked with handlers, not just the loop's own exit —
// which is what lets the writer know it has drained everything and may
// exit in turn (spec.md §4.7 step 4).
func readLoop(c *conn, dispatcher Dispatcher, closeCh <-chan struct{}, respCh chan respItem) {
	var handlers sync.WaitGroup
	defer func() {
		handlers.Wait()
		close(respCh)
	}()

	headerBuf := make([]byte, proto.ReqHeaderSize)
	for {
		select {
		case <-closeCh:
			return
		default:
		}

		idle := c.cfg.IdleTimeout
		if idle <= 0 {
			idle = 60 * time.Second
		}
		c.nc.SetReadDeadline(time.Now().Add(idle))
		n, err := io.ReadFull(c.r, headerBuf[:1])
		if err != nil {
			if n == 0 {
				return
			}
			return
		}
		if err := c.readBody(headerBuf[1:]); err != nil {
			return
		}

		head, err := proto.DecodeReqHeader(headerBuf)
		if err != nil {
			// A malformed header desyncs the stream; there is no seq to
			// answer, so the connection itself is terminal here.
			return
		}

		action, err := readAction(c, head)
		if err != nil {
			return
		}

		var msg, blob []byte
		if head.MsgLen > 0 {
			msg = make([]byte, head.MsgLen)
			if err := c.readBody(msg); err != nil {
				return
			}
		}
		if head.BlobLen > 0 {
			blob = make([]byte, head.BlobLen)
			if err := c.readBody(blob); err != nil {
				return
			}
		}

		if action.IsPing() && head.MsgLen == 0 {
			select {
			case respCh <- respItem{seq: head.Seq, flag: proto.FlagOK}:
			case <-closeCh:
				return
			}
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			select {
			case respCh <- respItem{seq: head.Seq, flag: proto.FlagErrno, errno: errnoRateLimited}:
			case <-closeCh:
				return
			}
			continue
		}

		handlers.Add(1)
		noti := newRespNotifier(respCh, head.Seq, handlers.Done)
		req := Request{Seq: head.Seq, Action: action, Msg: msg, Blob: blob}
		if err := dispatcher.DispatchReq(c.codec, req, noti); err != nil {
			noti.decodeFail(err.Error())
		}
	}
}

// readAction resolves the wire action: numeric actions are already fully
// decoded in the header; string actions carry a length-prefixed payload
// immediately following the header (see proto.EncodeActionStr).
func readAction(c *conn, head *proto.ReqHeader) (proto.Action, error) {
	if head.Action != proto.ActionStrSentinel {
		return proto.NumAction(head.Action), nil
	}
	lenBuf := make([]byte, proto.ActionStrLenSize)
	if err := c.readBody(lenBuf); err != nil {
		return proto.Action{}, err
	}
	n, err := proto.DecodeActionStrLen(lenBuf)
	if err != nil {
		return proto.Action{}, rpcerr.Decode(err.Error())
	}
	str := make([]byte, n)
	if err := c.readBody(str); err != nil {
		return proto.Action{}, err
	}
	return proto.Action{Str: str}, nil
}
