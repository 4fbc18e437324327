/*
Package bucket implements db.IRecordDB with one file per identifier.

# Layout

	<root>/fskv.yaml          store metadata (format, hash, compression, created)
	<root>/entries/<id>.bkt   one bucket per identifier
	<root>/entries/.tmp-*     writes in flight

A bucket holds every record whose key maps to its identifier. With xxhash64
that is a single record; on a collision the records share the file and the
lock, they are told apart by comparing the stored key bytes.

# Writes

A write never modifies a bucket in place. The new bucket is written to a temp
file in the same directory, synced, and renamed over the old one, followed by
a sync of the directory. Concurrent lock holders and lock-free readers see
either the complete old or the complete new file. Since the rename replaces
the locked file, a lock token permits only one committing call.

Removing the last record of a bucket unlinks the file. Empty files are only
left behind by an exclusive lock acquisition that did not write; Prune removes
them and List skips them.

# Metadata

Create publishes fskv.yaml by hard-linking a fully written temp file into
place. Linking fails if the name exists, so of several processes creating a
store at the same root exactly one succeeds.

# Format

See format.go. Every bucket carries a checksum; a truncated or otherwise
damaged file is reported as db.ErrCorrupt instead of returning wrong data.
Readers detect zstd compressed payloads on their own, so stores with mixed
compression stay readable.
*/
package bucket
