package codec

// NewStringCodec creates a codec that stores strings as their raw bytes
func NewStringCodec() ICodec[string] {
	return stringCodecImpl{}
}

// NewBytesCodec creates a codec that stores byte slices unchanged.
// Decode returns a copy so callers may modify the result.
func NewBytesCodec() ICodec[[]byte] {
	return bytesCodecImpl{}
}

type stringCodecImpl struct{}

func (stringCodecImpl) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

func (stringCodecImpl) Decode(b []byte) (string, error) {
	return string(b), nil
}

func (stringCodecImpl) Name() string {
	return "string"
}

type bytesCodecImpl struct{}

func (bytesCodecImpl) Encode(v []byte) ([]byte, error) {
	return v, nil
}

func (bytesCodecImpl) Decode(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (bytesCodecImpl) Name() string {
	return "bytes"
}
