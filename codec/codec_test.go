package codec

import "testing"

type sample struct {
	Msg string
}

func TestMsgpackRoundTrip(t *testing.T) {
	c := Get(FormatMsgpack)
	in := &sample{Msg: "hello"}
	encoded, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out sample
	if err := c.Decode(encoded, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Msg != in.Msg {
		t.Fatalf("got %q, want %q", out.Msg, in.Msg)
	}
}

func TestMsgpackEncodeInto(t *testing.T) {
	c := Get(FormatMsgpack)
	buf := make([]byte, 0, 64)
	n, err := c.EncodeInto(&sample{Msg: "hi"}, &buf)
	if err != nil {
		t.Fatalf("encode into: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("reported %d bytes, buffer holds %d", n, len(buf))
	}
	var out sample
	if err := c.Decode(buf, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Msg != "hi" {
		t.Fatalf("got %q", out.Msg)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := Get(FormatJSON)
	in := &sample{Msg: "hello"}
	encoded, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out sample
	if err := c.Decode(encoded, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Msg != in.Msg {
		t.Fatalf("got %q, want %q", out.Msg, in.Msg)
	}
}

func TestGetDefaultsToMsgpack(t *testing.T) {
	if _, ok := Get(Format(99)).(*MsgpackCodec); !ok {
		t.Fatal("unknown format should fall back to msgpack")
	}
}
