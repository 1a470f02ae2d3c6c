// Package proto implements the wire frame protocol for corerpc.
//
// Every packet begins with a fixed-size header so the reader knows exactly how
// many more bytes make up the body before it can decode anything — the
// classic fix for TCP's sticky-packet problem. Requests and responses use
// different header layouts because they carry different metadata (an action
// vs. a success/error flag).
//
// Request frame:
//
//	0        4        12       20  21  22  24                28                32
//	┌────────┬────────┬────────┬───┬───┬───┬─────────────────┬─────────────────┐
//	│ magic  │  seq   │clientID│ver│fmt│act│     msgLen      │     blobLen     │
//	│ uint32 │ uint64 │ uint64 │u8 │u8 │u16│      uint32      │      uint32     │
//	└────────┴────────┴────────┴───┴───┴───┴─────────────────┴─────────────────┘
//	followed by: [actionLen(u16) + action string, if act == ActionStrSentinel] [msg bytes] [blob bytes]
//
// A string action is self-delimiting on the wire: msgLen/blobLen cover only
// the message and blob, so the action string carries its own 2-byte
// big-endian length prefix immediately before its bytes.
//
// Response frame:
//
//	0        4        12   13  16                20                24
//	┌────────┬────────┬────┬───┬─────────────────┬─────────────────┐
//	│ magic  │  seq   │flag│rsv│     msgLen       │     blobLen     │
//	│ uint32 │ uint64 │ u8 │ 3 │      uint32      │      uint32     │
//	└────────┴────────┴────┴───┴─────────────────┴─────────────────┘
//	followed by: nothing (flag=1, msgLen reinterpreted as errno) |
//	             msg bytes then blob bytes (flag=0) |
//	             blobLen bytes of UTF-8 error text (flag=2)
package proto

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a corerpc frame, rejecting connections speaking some other
// protocol on the same port.
const Magic uint32 = 0x6d727063 // "mrpc"

// Version is the single wire version this package understands.
const Version uint8 = 1

// ReqHeaderSize and RespHeaderSize are the fixed, padding-free header lengths.
const (
	ReqHeaderSize  = 4 + 8 + 8 + 1 + 1 + 2 + 4 + 4 // 32
	RespHeaderSize = 4 + 8 + 1 + 3 + 4 + 4          // 24
)

// Response flags.
const (
	FlagOK     uint8 = 0
	FlagErrno  uint8 = 1 // msgLen field is reinterpreted as a posix errno
	FlagRemote uint8 = 2 // blobLen bytes of UTF-8 error text follow
)

// ActionStrSentinel marks a request header whose action is a string; the
// string, behind its 2-byte length prefix (EncodeActionStr), immediately
// follows the header. PingAction (0) is reserved and
// never appears as a string.
const (
	PingAction       uint16 = 0
	ActionStrSentinel uint16 = 0xFFFF
)

// Action is a tagged union: either a small positive numeric code, or a string
// action whose bytes ride on the wire right after the header. The zero value
// (Num==0, Str==nil) is the ping action.
type Action struct {
	Num uint16
	Str []byte // non-nil selects a string action regardless of Num
}

// NumAction builds a numeric action. n must be > 0 (0 is reserved for ping)
// and must not collide with ActionStrSentinel.
func NumAction(n uint16) Action { return Action{Num: n} }

// StrAction builds a string action.
func StrAction(s string) Action { return Action{Str: []byte(s)} }

// ActionStrLenSize is the width of the length prefix written immediately
// before a string action's bytes, making it self-delimiting on the wire
// independent of msgLen/blobLen.
const ActionStrLenSize = 2

// EncodeActionStr renders s as the wire segment that follows a header whose
// action field is ActionStrSentinel: a 2-byte big-endian length followed by
// s itself. s may be empty (a valid, non-ping string action).
func EncodeActionStr(s []byte) []byte {
	buf := make([]byte, ActionStrLenSize+len(s))
	binary.BigEndian.PutUint16(buf[:ActionStrLenSize], uint16(len(s)))
	copy(buf[ActionStrLenSize:], s)
	return buf
}

// DecodeActionStrLen parses a ActionStrLenSize-byte length prefix read off
// the wire.
func DecodeActionStrLen(buf []byte) (uint16, error) {
	if len(buf) != ActionStrLenSize {
		return 0, fmt.Errorf("proto: short action length prefix: %d bytes", len(buf))
	}
	return binary.BigEndian.Uint16(buf), nil
}

// IsPing reports whether this is the reserved ping action.
func (a Action) IsPing() bool { return a.Str == nil && a.Num == PingAction }

func (a Action) String() string {
	if a.Str != nil {
		return string(a.Str)
	}
	return fmt.Sprintf("#%d", a.Num)
}

// ReqHeader is the fixed part of a request frame.
type ReqHeader struct {
	Seq      uint64
	ClientID uint64
	Ver      uint8
	Format   uint8
	Action   uint16 // ActionStrSentinel when the action is a string
	MsgLen   uint32
	BlobLen  uint32
}

// EncodeReqHeader renders h into a ReqHeaderSize-byte buffer.
func EncodeReqHeader(h *ReqHeader) []byte {
	buf := make([]byte, ReqHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint64(buf[4:12], h.Seq)
	binary.BigEndian.PutUint64(buf[12:20], h.ClientID)
	buf[20] = h.Ver
	buf[21] = h.Format
	binary.BigEndian.PutUint16(buf[22:24], h.Action)
	binary.BigEndian.PutUint32(buf[24:28], h.MsgLen)
	binary.BigEndian.PutUint32(buf[28:32], h.BlobLen)
	return buf
}

// DecodeReqHeader parses a ReqHeaderSize-byte buffer. Callers are expected to
// have already read exactly ReqHeaderSize bytes (e.g. via io.ReadFull).
func DecodeReqHeader(buf []byte) (*ReqHeader, error) {
	if len(buf) != ReqHeaderSize {
		return nil, fmt.Errorf("proto: short request header: %d bytes", len(buf))
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != Magic {
		return nil, fmt.Errorf("proto: bad magic %#x", magic)
	}
	ver := buf[20]
	if ver != Version {
		return nil, fmt.Errorf("proto: unsupported version %d", ver)
	}
	return &ReqHeader{
		Seq:      binary.BigEndian.Uint64(buf[4:12]),
		ClientID: binary.BigEndian.Uint64(buf[12:20]),
		Ver:      ver,
		Format:   buf[21],
		Action:   binary.BigEndian.Uint16(buf[22:24]),
		MsgLen:   binary.BigEndian.Uint32(buf[24:28]),
		BlobLen:  binary.BigEndian.Uint32(buf[28:32]),
	}, nil
}

// BuildRequest renders the request frame's segments. The caller writes them
// to the wire as independent, individually write-timeout-bounded writes (see
// Client.SendTask in package client) rather than one combined buffer, so a slow peer can't stall
// the whole frame behind a single oversized Write call.
//
// Returns: header bytes, the action-string bytes (nil unless action.Str is
// set), msg, and blob — in wire order.
func BuildRequest(clientID uint64, seq uint64, action Action, format uint8, msg, blob []byte) (header, actionStr, msgOut, blobOut []byte) {
	h := &ReqHeader{
		Seq:      seq,
		ClientID: clientID,
		Ver:      Version,
		Format:   format,
		MsgLen:   uint32(len(msg)),
		BlobLen:  uint32(len(blob)),
	}
	if action.Str != nil {
		h.Action = ActionStrSentinel
		actionStr = action.Str
	} else {
		h.Action = action.Num
	}
	return EncodeReqHeader(h), actionStr, msg, blob
}

// RespHeader is the fixed part of a response frame.
type RespHeader struct {
	Seq     uint64
	Flag    uint8
	MsgLen  uint32 // reinterpreted as a posix errno when Flag == FlagErrno
	BlobLen uint32
}

// EncodeRespHeader renders h into a RespHeaderSize-byte buffer. The 3
// reserved bytes after Flag are zeroed, keeping the layout padding-free and
// explicit rather than relying on the Go compiler's struct alignment rules.
func EncodeRespHeader(h *RespHeader) []byte {
	buf := make([]byte, RespHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint64(buf[4:12], h.Seq)
	buf[12] = h.Flag
	// buf[13:16] reserved, left zero
	binary.BigEndian.PutUint32(buf[16:20], h.MsgLen)
	binary.BigEndian.PutUint32(buf[20:24], h.BlobLen)
	return buf
}

// DecodeRespHeader parses a RespHeaderSize-byte buffer.
func DecodeRespHeader(buf []byte) (*RespHeader, error) {
	if len(buf) != RespHeaderSize {
		return nil, fmt.Errorf("proto: short response header: %d bytes", len(buf))
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != Magic {
		return nil, fmt.Errorf("proto: bad magic %#x", magic)
	}
	flag := buf[12]
	if flag != FlagOK && flag != FlagErrno && flag != FlagRemote {
		return nil, fmt.Errorf("proto: bad response flag %d", flag)
	}
	return &RespHeader{
		Seq:     binary.BigEndian.Uint64(buf[4:12]),
		Flag:    flag,
		MsgLen:  binary.BigEndian.Uint32(buf[16:20]),
		BlobLen: binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}

// OKResponse builds a success response header.
func OKResponse(seq uint64, msgLen, blobLen uint32) *RespHeader {
	return &RespHeader{Seq: seq, Flag: FlagOK, MsgLen: msgLen, BlobLen: blobLen}
}

// ErrnoResponse builds a posix-errno failure response header; it carries no body.
func ErrnoResponse(seq uint64, errno int) *RespHeader {
	return &RespHeader{Seq: seq, Flag: FlagErrno, MsgLen: uint32(errno)}
}

// RemoteErrResponse builds a string-error failure response header; blobLen
// bytes of UTF-8 text follow it on the wire.
func RemoteErrResponse(seq uint64, textLen uint32) *RespHeader {
	return &RespHeader{Seq: seq, Flag: FlagRemote, BlobLen: textLen}
}
