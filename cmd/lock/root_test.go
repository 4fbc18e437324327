package lock

import (
	"errors"
	"github.com/ValentinKolb/fsKV/lib/db/engines/bucket"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestRoot creates a store and points the lock commands at it
func newTestRoot(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "store")
	d, err := bucket.Create(root, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	recordDB = d
	locks = lockmgr.NewLockManager(0)

	shared, duration := holdShared, holdDuration
	t.Cleanup(func() { holdShared, holdDuration = shared, duration })
	return root
}

func TestKeyPath(t *testing.T) {
	root := newTestRoot(t)

	path, err := keyPath("user:1")
	if err != nil {
		t.Fatalf("keyPath failed: %v", err)
	}
	if want := recordDB.Path(recordDB.Identify([]byte(`"user:1"`))); path != want {
		t.Errorf("Expected %s, got %s", want, path)
	}
	if filepath.Dir(path) != filepath.Join(root, "entries") {
		t.Errorf("Expected the path below the entries directory, got %s", path)
	}
	if err := runPath(nil, []string{"user:1"}); err != nil {
		t.Errorf("lock path failed: %v", err)
	}
}

func TestHoldLeavesNoTrace(t *testing.T) {
	newTestRoot(t)
	holdDuration = 20 * time.Millisecond

	if err := runHold(nil, []string{"k"}); err != nil {
		t.Fatalf("lock hold failed: %v", err)
	}

	path, _ := keyPath("k")
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected the empty unit of a missing key to be removed, got %v", err)
	}
	if held := locks.Held(); len(held) != 0 {
		t.Errorf("Expected no held locks, got %v", held)
	}
}

func TestHoldSharedMissingKey(t *testing.T) {
	newTestRoot(t)
	holdShared = true
	holdDuration = time.Millisecond

	if err := runHold(nil, []string{"missing"}); err == nil {
		t.Errorf("Expected an error for a shared hold on a missing key")
	}
}

func TestHoldBlocksOtherProcesses(t *testing.T) {
	newTestRoot(t)
	holdDuration = 300 * time.Millisecond
	path, _ := keyPath("k")

	done := make(chan error, 1)
	go func() { done <- runHold(nil, []string{"k"}) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(locks.Held()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("lock hold did not acquire the lock")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// a separate manager shares nothing in memory, like another process
	start := time.Now()
	tok, err := lockmgr.NewLockManager(0).AcquireExclusive(path)
	if err != nil {
		t.Fatalf("AcquireExclusive failed: %v", err)
	}
	waited := time.Since(start)
	_ = tok.Release()

	if waited < 100*time.Millisecond {
		t.Errorf("Expected to wait for the held lock, waited only %s", waited)
	}
	if err := <-done; err != nil {
		t.Errorf("lock hold failed: %v", err)
	}
}
