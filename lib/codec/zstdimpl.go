package codec

import (
	"fmt"
	"github.com/klauspost/compress/zstd"
	"sync"
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// sharedZstd lazily creates the process wide encoder and decoder.
// EncodeAll and DecodeAll are safe for concurrent use.
func sharedZstd() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// NewZstdCodec wraps inner and compresses its output with zstd
func NewZstdCodec[T any](inner ICodec[T]) ICodec[T] {
	return &zstdCodecImpl[T]{inner: inner}
}

type zstdCodecImpl[T any] struct {
	inner ICodec[T]
}

func (z *zstdCodecImpl[T]) Encode(v T) ([]byte, error) {
	raw, err := z.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	enc, _, err := sharedZstd()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (z *zstdCodecImpl[T]) Decode(b []byte) (T, error) {
	var zero T
	_, dec, err := sharedZstd()
	if err != nil {
		return zero, err
	}
	raw, err := dec.DecodeAll(b, nil)
	if err != nil {
		return zero, fmt.Errorf("zstd: %w", err)
	}
	return z.inner.Decode(raw)
}

func (z *zstdCodecImpl[T]) Name() string {
	return "zstd+" + z.inner.Name()
}
