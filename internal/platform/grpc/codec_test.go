package grpc

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

type codecMessage struct {
	ID      string            `cbor:"id"`
	Attempt uint              `cbor:"attempt"`
	Payload []byte            `cbor:"payload"`
	Headers map[string]string `cbor:"headers"`
}

func TestCBORCodecIsRegistered(t *testing.T) {
	codec := encoding.GetCodec(CBORCodecName)
	if codec == nil {
		t.Fatalf("codec %q is not registered", CBORCodecName)
	}
	if codec.Name() != CBORCodecName {
		t.Fatalf("codec name = %q, want %q", codec.Name(), CBORCodecName)
	}
}

func TestCBORCodecRoundTrip(t *testing.T) {
	codec := newCBORCodec()
	in := codecMessage{
		ID:      "act-1",
		Attempt: 2,
		Payload: []byte{0x01, 0x02},
		Headers: map[string]string{"traceparent": "00-abc"},
	}
	data, err := codec.Marshal(&in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out codecMessage
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != in.ID || out.Attempt != in.Attempt || string(out.Payload) != string(in.Payload) {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
	if out.Headers["traceparent"] != "00-abc" {
		t.Fatalf("headers = %v", out.Headers)
	}
}
