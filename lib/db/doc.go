// Package db defines the record store of fsKV: the layer that owns the on-disk
// representation of entries below the typed store handle (package store).
//
// Key Components:
//
//   - IRecordDB Interface: maps encoded keys to bucket files (Identify, Path) and
//     reads and writes records inside a bucket while the caller holds the
//     bucket's lock token (Read, Records, Write, Remove, Prune). Enumeration
//     (List) and statistics (Info) are lock-free snapshots.
//
//   - Record and Listing: the raw (key bytes, value bytes) pairs and the
//     (identifier, key bytes) pairs returned by List.
//
//   - DatabaseInfo: standardized reporting of entry and bucket counts, size on
//     disk, value size estimates and how evenly keys spread over buckets.
//
//   - Sentinel errors: ErrNotFound, ErrAlreadyExists, ErrCorrupt and
//     ErrNotExclusive, always wrapped with context and matched via errors.Is.
//
// Locking Contract:
//
//	The record store never acquires locks itself. Mutual exclusion is provided
//	by lockmgr tokens that the caller acquires for Path(Identify(key)). Reads go
//	through the token's file descriptor, so they see exactly the bucket that is
//	locked. Writes build a complete new bucket in a temporary file in the same
//	directory and rename it over the old one; this rename is the commit point.
//	Holders of other locks and lock-free readers therefore only ever observe a
//	complete old or a complete new bucket, never a torn one.
//
// Related Packages:
//
// The engines/bucket package (github.com/ValentinKolb/fsKV/lib/db/engines/bucket)
// provides the filesystem implementation of IRecordDB including the bucket file
// format and store metadata.
//
// The util package (github.com/ValentinKolb/fsKV/lib/db/util) provides the size
// histogram and distribution statistics used by Info.
//
// The testing package (github.com/ValentinKolb/fsKV/lib/db/testing) provides a
// standardized conformance suite for IRecordDB implementations:
//   - RunRecordDBTests: validates the locking contract and record semantics
package db
