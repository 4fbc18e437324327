package lockmgr

import (
	"errors"
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io/fs"
	"os"
	"sort"
	"sync/atomic"
	"time"
)

var plog = logger.GetLogger("lockmgr")

var (
	// ErrNotFound is returned by AcquireShared if there is no unit at the path
	ErrNotFound = errors.New("lockmgr: unit does not exist")
	// ErrLockFailed is returned if the lock primitive itself reports an error
	ErrLockFailed = errors.New("lockmgr: lock primitive failed")
)

const defaultPerm os.FileMode = 0o644

type lockMgrImpl struct {
	perm   os.FileMode
	held   *xsync.MapOf[uint64, HeldLock]
	nextID atomic.Uint64
}

// NewLockManager creates a new lock manager.
// perm is the permission used for units created by AcquireExclusive (0 = 0644).
func NewLockManager(perm os.FileMode) ILockManager {
	if perm == 0 {
		perm = defaultPerm
	}
	return &lockMgrImpl{
		perm: perm,
		held: xsync.NewMapOf[uint64, HeldLock](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr.ILockManager)
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) AcquireShared(path string) (*Token, error) {
	return lm.acquire(path, Shared)
}

func (lm *lockMgrImpl) AcquireExclusive(path string) (*Token, error) {
	return lm.acquire(path, Exclusive)
}

func (lm *lockMgrImpl) Held() []HeldLock {
	res := make([]HeldLock, 0, lm.held.Size())
	lm.held.Range(func(_ uint64, h HeldLock) bool {
		res = append(res, h)
		return true
	})
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// --------------------------------------------------------------------------
// Acquisition
// --------------------------------------------------------------------------

// acquire opens the unit, blocks on the OS lock and verifies that the locked
// file is still the one at path. If the unit was replaced or removed while
// waiting, the whole sequence is repeated.
func (lm *lockMgrImpl) acquire(path string, mode Mode) (*Token, error) {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		f, err := openUnit(path, mode == Exclusive, lm.perm)
		if err != nil {
			if mode == Shared && errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			return nil, err
		}

		if err := lockFile(f, mode); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s %s: %v", ErrLockFailed, mode, path, err)
		}

		current, err := isCurrent(f, path)
		if err != nil {
			_ = unlockFile(f)
			_ = f.Close()
			return nil, err
		}
		if !current {
			_ = unlockFile(f)
			_ = f.Close()
			plog.Debugf("unit %s changed while waiting for %s lock (attempt %d), retrying", path, mode, attempt)
			continue
		}

		waitHistogram(mode).UpdateDuration(start)
		acquireCounter(mode).Inc()

		tok := &Token{
			id:   lm.nextID.Add(1),
			path: path,
			mode: mode,
			file: f,
			mgr:  lm,
		}
		lm.held.Store(tok.id, HeldLock{ID: tok.id, Path: path, Mode: mode, Since: time.Now()})
		return tok, nil
	}
}

// isCurrent reports whether f is the file currently linked at path
func isCurrent(f *os.File, path string) (bool, error) {
	locked, err := f.Stat()
	if err != nil {
		return false, err
	}
	onDisk, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return os.SameFile(locked, onDisk), nil
}
