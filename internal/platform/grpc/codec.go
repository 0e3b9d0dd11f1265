package grpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CBORCodecName is the content-subtype for services exchanging plain Go
// structs instead of generated protobuf messages.
const CBORCodecName = "cbor"

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("grpc cbor encoder: %v", err))
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("grpc cbor decoder: %v", err))
	}
	return cborCodec{enc: enc, dec: dec}
}

func (c cborCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c cborCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

func (cborCodec) Name() string {
	return CBORCodecName
}

func init() {
	encoding.RegisterCodec(newCBORCodec())
}

// CBORCallOption selects the CBOR codec for a call. Servers pick the codec
// from the request content-subtype, so only clients need it.
func CBORCallOption() gogrpc.CallOption {
	return gogrpc.CallContentSubtype(CBORCodecName)
}
