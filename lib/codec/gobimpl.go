package codec

import (
	"bytes"
	"encoding/gob"
)

// NewGOBCodec creates a new codec using Go's binary gob format.
// Gob does not encode maps deterministically, do not use it for keys containing maps.
func NewGOBCodec[T any]() ICodec[T] {
	return &gobCodecImpl[T]{}
}

// gobCodecImpl implements the ICodec interface using gob encoding
type gobCodecImpl[T any] struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (g gobCodecImpl[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodecImpl[T]) Decode(b []byte) (T, error) {
	var v T
	dec := gob.NewDecoder(bytes.NewReader(b))
	err := dec.Decode(&v)
	return v, err
}

func (g gobCodecImpl[T]) Name() string {
	return "gob"
}
