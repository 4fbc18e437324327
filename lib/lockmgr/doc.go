// Package lockmgr implements per-unit reader/writer locks on top of the
// operating system's advisory file locks (flock on unix, LockFileEx on
// windows). A lock unit is a regular file; the lock is anchored directly on
// that file, there is no separate lock registry on disk that could drift out
// of sync with the data it protects.
//
// Core Functionality:
//   - Shared (read) and exclusive (write) locks per unit
//   - Scoped tokens: every acquisition returns a *Token whose Release method is
//     idempotent, so callers simply `defer tok.Release()` and the lock is freed
//     on normal return, error return and panic alike
//   - Correct across goroutines and processes: flock locks belong to the open
//     file description, so two opens of the same file within one process
//     exclude each other exactly like two processes do
//
// Implementation Approach:
//
//	Writers never modify a unit in place. They write a new file and rename it
//	over the old one (or unlink the unit to delete it). A waiter that opened
//	the old file therefore may end up holding a lock on a file that is no
//	longer reachable under the path. After every successful lock call the
//	manager compares the locked descriptor with the file currently at the path
//	(os.SameFile); if they differ, the lock is dropped and the acquisition is
//	retried on the current unit. A writer's rename is its commit point: the
//	token it still holds afterwards refers to the replaced file and must not be
//	used for further writes.
//
// Blocking:
//
//	Acquisition blocks the calling goroutine (and its OS thread) until the lock
//	is available. There is no timeout and no deadlock detection. A process that
//	dies loses its locks (the OS closes its descriptors); a holder that is alive
//	but stalled blocks everyone waiting on that unit.
//
// Thread Safety:
//
//	A manager is stateless except for the diagnostic registry of held tokens
//	(an xsync.MapOf), so one manager can be shared freely and creating several
//	managers for the same files is equally correct. A Token must not be shared
//	between operations.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager(0)
//
//	tok, err := locks.AcquireExclusive("/data/entries/00000000000000ab.bkt")
//	if err != nil {
//	    return err
//	}
//	defer tok.Release()
//	// read tok.File(), write a replacement, rename it into place ...
//
// Metrics:
//
//	fskv_lock_acquire_total{mode="shared|exclusive"} counts acquisitions and
//	fskv_lock_wait_seconds{mode="shared|exclusive"} records the time spent
//	waiting (github.com/VictoriaMetrics/metrics default set).
package lockmgr
