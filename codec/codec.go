// Package codec provides the serialization layer consumed by the core. The
// wire protocol (package proto) only knows about raw msg/blob byte slices; a
// Codec is how those bytes get populated from and unmarshaled back into the
// caller's application types.
//
// Two implementations are provided:
//   - MsgpackCodec: compact binary format, the default — this is what scenario
//     S1 of the spec shows on the wire (a msgpack-encoded message).
//   - JSONCodec:    human-readable, easy to debug, cross-language.
//
// The format tag travels in the request header's Format byte so a connection
// could in principle mix codecs per-request, though in practice a Client is
// configured with one codec for its whole lifetime.
package codec

// Format identifies the serialization format, stored as 1 byte in the
// request header.
type Format byte

const (
	FormatMsgpack Format = 0
	FormatJSON    Format = 1
)

// Codec is the interface the core consumes: encode/decode/encode-into a
// pre-sized buffer. Implementations must be cheap to use concurrently —
// corerpc shares one Codec value across every connection of a Client/Server.
type Codec interface {
	Encode(v any) ([]byte, error)
	// EncodeInto appends the encoded form of v onto *buf (growing it as
	// needed, in the manner of append) and returns the number of bytes
	// appended, avoiding an intermediate allocation when the caller already
	// owns a scratch buffer it wants to reuse across calls.
	EncodeInto(v any, buf *[]byte) (int, error)
	Decode(data []byte, v any) error
	Format() Format
}

// Get is a factory function that returns the codec for the given format tag.
func Get(format Format) Codec {
	if format == FormatJSON {
		return &JSONCodec{}
	}
	return &MsgpackCodec{}
}
