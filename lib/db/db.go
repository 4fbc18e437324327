package db

import (
	"errors"
	"github.com/ValentinKolb/fsKV/lib/db/util"
	"github.com/ValentinKolb/fsKV/lib/ident"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBucket Implementation = "bucket"
)

// Compression selects how bucket payloads are written.
// Readers always detect the compression of a bucket on their own.
type Compression string

const (
	CompressionAuto Compression = ""     // use what the store was created with
	CompressionNone Compression = "none" // plain payload
	CompressionZstd Compression = "zstd" // zstd compressed payload
)

var (
	// ErrNotFound is returned if a record, bucket or store does not exist
	ErrNotFound = errors.New("db: not found")
	// ErrAlreadyExists is returned if a store is created over an existing one
	ErrAlreadyExists = errors.New("db: already exists")
	// ErrCorrupt is returned if a bucket or metadata file cannot be decoded
	ErrCorrupt = errors.New("db: corrupt data")
	// ErrNotExclusive is returned if a write is attempted without an exclusive token
	ErrNotExclusive = errors.New("db: exclusive lock required")
)

// Record is one entry of a bucket
type Record struct {
	Key   []byte
	Value []byte
}

// Listing is one entry found by List
type Listing struct {
	ID  ident.ID
	Key []byte
}

type DatabaseInfo struct {
	Root         string                 `json:"root"`
	DbType       Implementation         `json:"db_type"`
	Compression  Compression            `json:"compression"`
	Entries      int                    `json:"entries"`
	Buckets      int                    `json:"buckets"`
	SizeBytes    int64                  `json:"size_bytes"`
	MedianValue  int                    `json:"median_value_bytes"`
	P99Value     int                    `json:"p99_value_bytes"`
	BucketSpread util.DistributionStats `json:"bucket_spread"`
}

// --------------------------------------------------------------------------
// Record Store Interface
// --------------------------------------------------------------------------

// IRecordDB is the record store of a filesystem store. It maps identifiers to
// bucket files and reads and writes the records inside them.
//
// Every method that touches a single bucket takes the lock token of that
// bucket. The caller acquires the token (lockmgr) for Path(Identify(key)) and
// is responsible for releasing it; the record store never locks on its own.
// A token can be used for any number of reads but for at most one committing
// call (Write or Remove): committing replaces the locked file.
type IRecordDB interface {

	// Identify returns the identifier of the bucket holding key.
	Identify(key []byte) (id ident.ID)

	// Path returns the path of the bucket file for id. This is the path to lock.
	Path(id ident.ID) (path string)

	// Root returns the root directory of the store.
	Root() (root string)

	// --------------------------------------------------------------------------
	// Locked Operations
	// --------------------------------------------------------------------------

	// Read returns the value stored for key. A shared or exclusive token is required.
	// Returns ErrNotFound if the bucket has no record for key.
	Read(tok *lockmgr.Token, key []byte) (value []byte, err error)

	// Records returns all records of the locked bucket.
	Records(tok *lockmgr.Token) (records []Record, err error)

	// Write inserts or replaces the record for key. An exclusive token is required.
	// The new bucket is committed atomically; on error the previous bucket is kept.
	Write(tok *lockmgr.Token, key, value []byte) (err error)

	// Remove deletes the record for key. An exclusive token is required.
	// The bucket file is removed when its last record is removed.
	// Returns ErrNotFound if the bucket has no record for key.
	Remove(tok *lockmgr.Token, key []byte) (err error)

	// Prune removes the locked bucket file if it holds no records, e.g. an empty
	// unit created by an exclusive acquisition that did not write. An exclusive
	// token is required. It is a no-op if the bucket was committed or removed.
	Prune(tok *lockmgr.Token) (err error)

	// --------------------------------------------------------------------------
	// Lock-free Operations
	// --------------------------------------------------------------------------

	// List returns a snapshot of the identifiers and keys of all records.
	// No locks are taken: records written or removed concurrently may or may not
	// be part of the result.
	List() (listings []Listing, err error)

	// Info returns statistics about the store. Like List it is lock-free.
	Info() (info DatabaseInfo, err error)
}
