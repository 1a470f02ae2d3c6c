package server

import (
	"sync"

	"corerpc/codec"
	"corerpc/proto"
)

// Request is what the reader hands to a Dispatcher for every non-ping frame
// (spec.md §4.6).
type Request struct {
	Seq    uint64
	Action proto.Action
	Msg    []byte
	Blob   []byte
}

// Dispatcher owns everything downstream of framing: decoding the message,
// running application logic, and delivering exactly one outcome through the
// RespNotifier it's given. It may do so before returning (synchronous
// handlers) or later from another goroutine (spawned work) — the server
// only cares that exactly one of the notifier's methods is eventually
// called, a requirement RespNotifier enforces with a sync.Once.
//
// A returned error means dispatch failed before any notifier method was
// called; the reader responds on the dispatcher's behalf for this seq with a
// string error (wire flag=2) whose text is "decode: " plus the error's text,
// which the client receives as a Remote error.
type Dispatcher interface {
	DispatchReq(cdc codec.Codec, req Request, noti RespNotifier) error
}

// respItem is a fully-decided outcome bound for the writer: either a
// success body (msg+blob, to be framed by the writer) or a failure
// (errno or remote text).
type respItem struct {
	seq   uint64
	flag  uint8
	msg   []byte
	blob  []byte
	errno int
	text  string
}

// RespNotifier is the one-shot handle a Dispatcher uses to deliver its
// result. Exactly one of Success/Posix/Remote may be called; later calls on
// the same notifier are no-ops.
type RespNotifier struct {
	ch   chan<- respItem
	seq  uint64
	once *sync.Once
	done func()
}

func newRespNotifier(ch chan<- respItem, seq uint64, done func()) RespNotifier {
	return RespNotifier{ch: ch, seq: seq, once: &sync.Once{}, done: done}
}

// Success delivers a successful response: msg and blob travel back to the
// client as-is, re-encoded with nothing (they're already wire bytes — the
// dispatcher is expected to have used the codec itself to produce msg).
func (n RespNotifier) Success(msg, blob []byte) {
	n.send(respItem{seq: n.seq, flag: proto.FlagOK, msg: msg, blob: blob})
}

// Posix delivers a posix-errno failure (wire flag=1).
func (n RespNotifier) Posix(errno int) {
	n.send(respItem{seq: n.seq, flag: proto.FlagErrno, errno: errno})
}

// Remote delivers a string-error failure (wire flag=2).
func (n RespNotifier) Remote(text string) {
	n.send(respItem{seq: n.seq, flag: proto.FlagRemote, text: text})
}

// decodeFail is used internally by the reader when dispatch itself fails
// synchronously (spec.md §4.6): it both emits the failure response (a
// flag=2 string error whose text starts with "decode: ", as the wire has no
// separate Decode flag) and releases the notifier's completion accounting,
// bypassing the Dispatcher.
func (n RespNotifier) decodeFail(detail string) {
	n.send(respItem{seq: n.seq, flag: proto.FlagRemote, text: "decode: " + detail})
}

func (n RespNotifier) send(item respItem) {
	n.once.Do(func() {
		n.ch <- item
		if n.done != nil {
			n.done()
		}
	})
}
