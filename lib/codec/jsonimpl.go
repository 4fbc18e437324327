package codec

import (
	"encoding/json"
)

// NewJSONCodec creates a new codec using json encoding
func NewJSONCodec[T any]() ICodec[T] {
	return &jsonCodecImpl[T]{}
}

// jsonCodecImpl implements the ICodec interface using json encoding
type jsonCodecImpl[T any] struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonCodecImpl[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

func (j jsonCodecImpl[T]) Name() string {
	return "json"
}
