/*
Package fstore implements store.IStore on top of the bucket record store and
the filesystem lock manager.

Every operation follows the same path:

	key -> KeyCodec -> identifier -> lock on <root>/entries/<id>.bkt -> read/write -> release

Get and Contains take a shared lock, Insert, Alter, AlterWithDefault and Delete
an exclusive one. Locks are released by defer, so they are freed on errors and
when an Alter transform panics. An exclusive lock on a key that does not exist
creates an empty bucket file; if the operation does not write, the file is
removed again before the lock is released.

Handles are cheap. Clone copies the handle, not the data, and every handle of
every process that opens the same root takes part in the same locking: the
locks live in the kernel, attached to the bucket files, not in this package.

GetKeys, Len and Info read the directory without any lock and return
snapshots. A key returned by GetKeys may be gone by the time it is used.

Usage:

	s, err := fstore.OpenNew[string, int]("/var/lib/counters", nil)
	if err != nil { ... }
	_ = s.Insert("visits", 0)
	_ = s.Alter("visits", func(n int) int { return n + 1 })
	n, err := s.Get("visits")

Operations are counted in the default VictoriaMetrics set
(fskv_ops_total, fskv_op_errors_total, fskv_op_duration_seconds).
*/
package fstore
