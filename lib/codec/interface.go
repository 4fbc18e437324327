package codec

// ICodec is the interface for all key and value codecs used by the store.
// Implementations must be safe for concurrent use. Codecs used for keys must
// also be deterministic: the same key always has to encode to the same bytes,
// since the encoded key is what identifies an entry on disk.
type ICodec[T any] interface {
	// Encode serializes a value into a byte array
	// It returns the serialized byte array and an error if any
	Encode(v T) ([]byte, error)
	// Decode deserializes a byte array into a value
	// It returns an error if the bytes are not a valid encoding of T
	Decode(b []byte) (T, error)
	// Name returns a short identifier of the codec (e.g. "json")
	Name() string
}
