package lockmgr

// ILockManager defines the interface for a lock manager.
// Locks are taken on the lock units (files) themselves, so every manager, in
// this process or any other, that locks the same path takes part in the same
// locking domain.
type ILockManager interface {
	// AcquireShared blocks until a shared lock on the unit at path is held.
	// Returns ErrNotFound if no unit exists at path.
	AcquireShared(path string) (tok *Token, err error)

	// AcquireExclusive blocks until an exclusive lock on the unit at path is held.
	// An empty unit is created if none exists.
	AcquireExclusive(path string) (tok *Token, err error)

	// Held returns a snapshot of the tokens currently held through this manager.
	Held() []HeldLock
}
