package codec

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
)

// mh is shared across every (De|En)coder: MsgpackHandle carries no per-call
// state, only format options, so one handle is safe for concurrent use —
// the same pattern the Serf RPC client uses for its framed msgpack transport.
var mh = &codec.MsgpackHandle{RawToString: true, WriteExt: true}

// MsgpackCodec is the default Codec: compact, self-describing binary
// serialization via github.com/hashicorp/go-msgpack.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, mh).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *MsgpackCodec) EncodeInto(v any, buf *[]byte) (int, error) {
	before := len(*buf)
	w := bytes.NewBuffer(*buf)
	if err := codec.NewEncoder(w, mh).Encode(v); err != nil {
		return 0, err
	}
	*buf = w.Bytes()
	return len(*buf) - before, nil
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return codec.NewDecoder(bytes.NewReader(data), mh).Decode(v)
}

func (c *MsgpackCodec) Format() Format {
	return FormatMsgpack
}
