// Package rpcerr defines the error taxonomy shared by the client and server
// engines: Timeout, Closed, Comm, Decode, Posix, Remote, Method.
//
// Every terminal failure the core can produce is one of these kinds. Callers
// match on kind with errors.Is (sentinels) or errors.As (*Error, to recover the
// Errno/Text payload of a remote failure).
package rpcerr

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an Error belongs to.
type Kind byte

const (
	// KindTimeout: task exceeded its deadline in the pending registry.
	KindTimeout Kind = iota
	// KindClosed: connection closed; no I/O was attempted for this task.
	KindClosed
	// KindComm: socket I/O error — read, write, flush, or frame-header corruption.
	KindComm
	// KindDecode: a frame parsed but its contents were malformed.
	KindDecode
	// KindPosix: the remote returned a numeric errno (response flag=1).
	KindPosix
	// KindRemote: the remote returned a string error (response flag=2).
	KindRemote
	// KindMethod: the action code did not map to any known handler.
	KindMethod
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	case KindComm:
		return "comm"
	case KindDecode:
		return "decode"
	case KindPosix:
		return "posix"
	case KindRemote:
		return "remote"
	case KindMethod:
		return "method"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the core. Kind-only errors
// (Timeout, Closed, Comm, Decode, Method) compare equal to their sentinel via
// errors.Is; Posix and Remote additionally carry a payload.
type Error struct {
	Kind  Kind
	Errno int    // valid when Kind == KindPosix
	Text  string // valid when Kind == KindRemote, or extra detail for other kinds
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindPosix:
		return fmt.Sprintf("rpc: remote errno %d", e.Errno)
	case KindRemote:
		return fmt.Sprintf("rpc: remote error: %s", e.Text)
	default:
		if e.Text != "" {
			return fmt.Sprintf("rpc: %s: %s", e.Kind, e.Text)
		}
		return fmt.Sprintf("rpc: %s", e.Kind)
	}
}

// Is makes sentinel errors of the same Kind compare equal, ignoring payload,
// so callers can write `errors.Is(err, rpcerr.ErrTimeout)` regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is. Any *Error of the same Kind compares equal to its
// sentinel via Error.Is, detail or not. Posix and Remote have no sentinel:
// use errors.As (or As) and check Kind to match them and recover the payload.
var (
	ErrTimeout = &Error{Kind: KindTimeout}
	ErrClosed  = &Error{Kind: KindClosed}
	ErrComm    = &Error{Kind: KindComm}
	ErrDecode  = &Error{Kind: KindDecode}
	ErrMethod  = &Error{Kind: KindMethod}
)

// Posix builds a remote posix-errno failure (response flag=1).
func Posix(errno int) *Error {
	return &Error{Kind: KindPosix, Errno: errno}
}

// Remote builds a remote string failure (response flag=2).
func Remote(text string) *Error {
	return &Error{Kind: KindRemote, Text: text}
}

// Decode builds a Decode failure with a human-readable detail.
func Decode(detail string) *Error {
	return &Error{Kind: KindDecode, Text: detail}
}

// Comm builds a Comm failure wrapping the underlying I/O error.
func Comm(cause error) *Error {
	if cause == nil {
		return ErrComm
	}
	return &Error{Kind: KindComm, Text: cause.Error()}
}

// As is a small helper over errors.As for the common case of wanting the
// concrete *Error out of an arbitrary error value.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
