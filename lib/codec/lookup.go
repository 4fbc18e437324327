package codec

import "fmt"

// ForName returns the codec registered under name for type T.
// Supported names are "json", "gob" and the "zstd+" prefixed variants of both.
func ForName[T any](name string) (ICodec[T], error) {
	switch name {
	case "json":
		return NewJSONCodec[T](), nil
	case "gob":
		return NewGOBCodec[T](), nil
	case "zstd+json":
		return NewZstdCodec(NewJSONCodec[T]()), nil
	case "zstd+gob":
		return NewZstdCodec(NewGOBCodec[T]()), nil
	default:
		return nil, fmt.Errorf("invalid codec %s", name)
	}
}
