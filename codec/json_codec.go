package codec

import (
	"encoding/json"
)

// JSONCodec wraps encoding/json as the debug-friendly alternative to the
// msgpack codec (codec.Format, spec.md §3): pick it when inspecting frames
// on the wire matters more than their size or encode cost.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) EncodeInto(v any, buf *[]byte) (int, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	*buf = append(*buf, encoded...)
	return len(encoded), nil
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Format() Format {
	return FormatJSON
}
