package domain

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// Params are the positional and keyword arguments of one task invocation.
type Params struct {
	Args   []any          `cbor:"args,omitempty"`
	Kwargs map[string]any `cbor:"kwargs,omitempty"`
}

// Args builds Params from positional arguments.
func Args(values ...any) Params {
	return Params{Args: values}
}

// With returns a copy of p with the keyword argument name set.
func (p Params) With(name string, value any) Params {
	kwargs := make(map[string]any, len(p.Kwargs)+1)
	maps.Copy(kwargs, p.Kwargs)
	kwargs[name] = value
	return Params{Args: slices.Clone(p.Args), Kwargs: kwargs}
}

// Arg decodes positional argument i into dst.
func (p Params) Arg(i int, dst any) error {
	if i < 0 || i >= len(p.Args) {
		return KindError(KindDecode, fmt.Errorf("argument %d is missing (have %d)", i, len(p.Args)))
	}
	return convert(p.Args[i], dst)
}

// Kwarg decodes keyword argument name into dst and reports whether it was present.
func (p Params) Kwarg(name string, dst any) (bool, error) {
	value, ok := p.Kwargs[name]
	if !ok {
		return false, nil
	}
	if err := convert(value, dst); err != nil {
		return true, err
	}
	return true, nil
}

// Func is the unit of work bound to a task.
type Func func(ctx context.Context, params Params) error

// Typed adapts a function taking a single decoded argument into a Func.
// A missing or undecodable argument fails permanently.
func Typed[T any](fn func(context.Context, T) error) Func {
	return func(ctx context.Context, params Params) error {
		var arg T
		if err := params.Arg(0, &arg); err != nil {
			return Permanent(err)
		}
		return fn(ctx, arg)
	}
}

var (
	// Deterministic encoding keeps idempotency keys stable for equal params.
	paramsEncMode cbor.EncMode
	paramsDecMode cbor.DecMode
)

func init() {
	var err error
	paramsEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("params cbor encoder: %v", err))
	}
	paramsDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("params cbor decoder: %v", err))
	}
}

// EncodeParams serializes params into an activation payload.
func EncodeParams(params Params) ([]byte, error) {
	data, err := paramsEncMode.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return data, nil
}

// DecodeParams parses an activation payload. An empty payload decodes to
// empty params.
func DecodeParams(payload []byte) (Params, error) {
	var params Params
	if len(payload) == 0 {
		return params, nil
	}
	if err := paramsDecMode.Unmarshal(payload, &params); err != nil {
		return Params{}, KindError(KindDecode, fmt.Errorf("decode params: %w", err))
	}
	return params, nil
}

func convert(value any, dst any) error {
	data, err := paramsEncMode.Marshal(value)
	if err != nil {
		return KindError(KindDecode, fmt.Errorf("re-encode argument: %w", err))
	}
	if err := paramsDecMode.Unmarshal(data, dst); err != nil {
		return KindError(KindDecode, fmt.Errorf("decode argument: %w", err))
	}
	return nil
}
