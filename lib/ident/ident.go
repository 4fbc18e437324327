// Package ident maps encoded keys to the stable on-disk identifiers of their
// buckets. Identifiers are lowercase hex strings of a 64-bit hash, so they are
// valid file names on every filesystem and never depend on the key's content
// (no path separators, no reserved names, no length limits).
//
// The mapping is deterministic across processes and runs: the default hasher
// (xxhash64) is unseeded. Distinct keys may map to the same identifier; the
// bucket format stores the full key next to every value to tell them apart.
package ident

import (
	"encoding/hex"
	"fmt"
	"github.com/cespare/xxhash/v2"
	"strings"
)

const (
	// Ext is the file extension of bucket files
	Ext = ".bkt"

	// idLen is the length of the hex encoded 64-bit hash
	idLen = 16
)

// Hasher maps encoded key bytes to a 64-bit hash
type Hasher func(key []byte) uint64

// DefaultHasher is xxhash64 without seed
func DefaultHasher(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// ID is the identifier of a bucket
type ID string

// FileName returns the name of the bucket file for the identifier
func (id ID) FileName() string {
	return string(id) + Ext
}

// Codec derives identifiers from encoded keys
type Codec struct {
	hasher Hasher
}

// New creates a Codec, a nil hasher selects DefaultHasher
func New(hasher Hasher) *Codec {
	if hasher == nil {
		hasher = DefaultHasher
	}
	return &Codec{hasher: hasher}
}

// Identify returns the identifier for the encoded key
//
// Thread-safety: This method is thread-safe as long as the hasher is.
func (c *Codec) Identify(key []byte) ID {
	var b [8]byte
	h := c.hasher(key)
	for i := 7; i >= 0; i-- {
		b[i] = byte(h)
		h >>= 8
	}
	return ID(hex.EncodeToString(b[:]))
}

// Parse converts a bucket file name back to its identifier.
// Everything that is not exactly "<16 hex chars>.bkt" is rejected, which
// filters temp files, metadata and foreign files out of directory listings.
func Parse(fileName string) (ID, error) {
	name, ok := strings.CutSuffix(fileName, Ext)
	if !ok || len(name) != idLen {
		return "", fmt.Errorf("ident: %q is not a bucket file", fileName)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", fmt.Errorf("ident: %q is not a bucket file", fileName)
		}
	}
	return ID(name), nil
}
