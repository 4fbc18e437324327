// Package codec provides the serialization layer between typed keys and values
// and the raw bytes kept in the store's bucket files. It defines a common
// generic interface and multiple implementations with different trade-offs.
//
// Key Components:
//
//   - ICodec[T]: Core interface that all codec implementations must satisfy.
//
//   - jsonCodecImpl: JSON encoding via encoding/json. Human readable, works for
//     every type encoding/json supports and is deterministic for maps (keys are
//     sorted), which makes it a safe default for keys.
//
//   - gobCodecImpl: Go's gob format. Compact for nested structs but NOT
//     deterministic for maps, so it should only be used for values.
//
//   - stringCodecImpl / bytesCodecImpl: identity codecs for string and []byte,
//     the fastest choice when keys or values already are raw text or bytes.
//
//   - zstdCodecImpl: wraps any other codec and compresses its output with
//     zstd (github.com/klauspost/compress). Useful for large, repetitive values.
//
// Thread Safety:
//
//	All codecs are stateless (the zstd encoder/decoder are shared and
//	documented as safe for concurrent EncodeAll/DecodeAll) and can be used from
//	many goroutines at once.
//
// Usage:
//
//	keys := codec.NewJSONCodec[string]()
//	values := codec.NewZstdCodec(codec.NewGOBCodec[Profile]())
//	data, err := values.Encode(profile)
//	// ... store data ...
//	profile, err = values.Decode(data)
package codec
