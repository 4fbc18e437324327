package store

import (
	"github.com/ValentinKolb/fsKV/lib/codec"
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/ident"
	"os"
)

// Options configures a store handle
type Options[K, V any] struct {
	KeyCodec    codec.ICodec[K] // Encodes keys. Must be deterministic (nil = JSON)
	ValueCodec  codec.ICodec[V] // Encodes values (nil = JSON)
	Hasher      ident.Hasher    // Maps encoded keys to identifiers (nil = xxhash64)
	Compression db.Compression  // Bucket compression of new writes (auto = as recorded by the store)
	FileMode    os.FileMode     // Permission of created files (0 = 0644)
	Overwrite   bool            // OpenNew only: replace an existing store
}

// DefaultOptions returns the default options: JSON keys and values, no
// compression for new stores.
func DefaultOptions[K, V any]() *Options[K, V] {
	return &Options[K, V]{
		KeyCodec:    codec.NewJSONCodec[K](),
		ValueCodec:  codec.NewJSONCodec[V](),
		Compression: db.CompressionAuto,
		FileMode:    0o644,
	}
}
