package lockmgr

import (
	"errors"
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"os"
	"sync"
	"time"
)

// Mode is the kind of a lock
type Mode uint8

const (
	Shared    Mode = iota // any number of holders
	Exclusive             // a single holder, excludes shared holders
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// HeldLock describes a token that has not been released yet
type HeldLock struct {
	ID    uint64
	Path  string
	Mode  Mode
	Since time.Time
}

// Token is the proof that a lock is held. It is only valid for one operation
// and must be released exactly once; further Release calls are no-ops.
type Token struct {
	id   uint64
	path string
	mode Mode
	file *os.File
	mgr  *lockMgrImpl

	once sync.Once
	err  error
}

// Path returns the path of the locked unit
func (t *Token) Path() string {
	return t.path
}

// Mode returns the mode the lock was acquired with
func (t *Token) Mode() Mode {
	return t.mode
}

// File returns the locked file. Reads must go through this file, not through
// the path, so they observe exactly the unit the lock protects.
func (t *Token) File() *os.File {
	return t.file
}

// Release unlocks and closes the unit. It is idempotent and safe on a nil token.
func (t *Token) Release() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		t.mgr.held.Delete(t.id)
		errUnlock := unlockFile(t.file)
		errClose := t.file.Close()
		if errUnlock != nil {
			t.err = fmt.Errorf("%w: unlock %s: %v", ErrLockFailed, t.path, errUnlock)
		} else if errClose != nil && !errors.Is(errClose, os.ErrClosed) {
			t.err = errClose
		}
	})
	return t.err
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

var (
	sharedWait        = metrics.GetOrCreateHistogram(`fskv_lock_wait_seconds{mode="shared"}`)
	exclusiveWait     = metrics.GetOrCreateHistogram(`fskv_lock_wait_seconds{mode="exclusive"}`)
	sharedAcquired    = metrics.GetOrCreateCounter(`fskv_lock_acquire_total{mode="shared"}`)
	exclusiveAcquired = metrics.GetOrCreateCounter(`fskv_lock_acquire_total{mode="exclusive"}`)
)

func waitHistogram(mode Mode) *metrics.Histogram {
	if mode == Exclusive {
		return exclusiveWait
	}
	return sharedWait
}

func acquireCounter(mode Mode) *metrics.Counter {
	if mode == Exclusive {
		return exclusiveAcquired
	}
	return sharedAcquired
}
