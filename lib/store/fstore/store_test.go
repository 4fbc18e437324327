package fstore

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/codec"
	"github.com/ValentinKolb/fsKV/lib/store"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts *store.Options[string, int]) *storeImpl[string, int] {
	t.Helper()
	s, err := OpenNew[string, int](filepath.Join(t.TempDir(), "store"), opts)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s.(*storeImpl[string, int])
}

func expectNoHeldLocks(t *testing.T, s *storeImpl[string, int]) {
	t.Helper()
	if held := s.locks.Held(); len(held) != 0 {
		t.Errorf("Expected no held locks, got %v", held)
	}
}

func inc(n int) int { return n + 1 }

func TestOpenNewAlreadyExists(t *testing.T) {
	root := t.TempDir()
	s, err := OpenNew[string, int](root, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Insert("a", 1); err != nil {
		t.Fatal(err)
	}

	_, err = OpenNew[string, int](root, nil)
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("Expected AlreadyExists, got %v", err)
	}

	// the existing store is untouched
	if v, err := s.Get("a"); err != nil || v != 1 {
		t.Errorf("Expected a=1 after failed OpenNew, got %d (%v)", v, err)
	}

	s2, err := OpenNew[string, int](root, &store.Options[string, int]{Overwrite: true})
	if err != nil {
		t.Fatalf("Failed to overwrite store: %v", err)
	}
	if n, err := s2.Len(); err != nil || n != 0 {
		t.Errorf("Expected empty store after overwrite, got %d (%v)", n, err)
	}
}

func TestOpen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")

	_, err := Open[string, int](root, nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound for missing store, got %v", err)
	}

	s, err := OpenNew[string, int](root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Insert("persisted", 7); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open[string, int](root, nil)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	if v, err := reopened.Get("persisted"); err != nil || v != 7 {
		t.Errorf("Expected persisted=7, got %d (%v)", v, err)
	}

	if err := os.WriteFile(filepath.Join(root, "fskv.yaml"), []byte("format: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open[string, int](root, nil); !errors.Is(err, store.ErrEncodingFailure) {
		t.Errorf("Expected EncodingFailure for bad metadata, got %v", err)
	}
}

func TestInvalidOptions(t *testing.T) {
	_, err := OpenNew[string, int](t.TempDir(), &store.Options[string, int]{Compression: "lz4"})
	var se *store.Error
	if !errors.As(err, &se) || se.Code != store.RetCInvalidOperation {
		t.Errorf("Expected InvalidOperation, got %v", err)
	}
}

func TestCollidingKeys(t *testing.T) {
	s := newTestStore(t, &store.Options[string, int]{
		Hasher: func([]byte) uint64 { return 7 },
	})

	for i, k := range []string{"x", "y", "z"} {
		if err := s.Insert(k, i); err != nil {
			t.Fatalf("Failed to insert %s: %v", k, err)
		}
	}
	if err := s.Alter("y", func(n int) int { return n * 10 }); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("x"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get("x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound for deleted colliding key, got %v", err)
	}
	for k, want := range map[string]int{"y": 10, "z": 2} {
		if v, err := s.Get(k); err != nil || v != want {
			t.Errorf("Expected %s=%d, got %d (%v)", k, want, v, err)
		}
	}
	expectNoHeldLocks(t, s)
}

// TestDisjointKeysDoNotBlock holds the lock of one key and checks that another
// key stays fully usable while the first one waits.
func TestDisjointKeysDoNotBlock(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.Insert("a", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert("b", 0); err != nil {
		t.Fatal(err)
	}

	ka, _ := s.keys.Encode("a")
	kb, _ := s.keys.Encode("b")
	if s.db.Identify(ka) == s.db.Identify(kb) {
		t.Skip("keys share a bucket")
	}

	tok, err := s.locks.AcquireExclusive(s.db.Path(s.db.Identify(ka)))
	if err != nil {
		t.Fatal(err)
	}

	aDone := make(chan error, 1)
	go func() { aDone <- s.Alter("a", inc) }()

	bDone := make(chan error, 1)
	go func() { bDone <- s.Alter("b", inc) }()

	select {
	case err := <-bDone:
		if err != nil {
			t.Errorf("Alter on b failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Alter on b blocked by the lock on a")
	}

	select {
	case <-aDone:
		t.Errorf("Alter on a completed while a was locked")
	case <-time.After(100 * time.Millisecond):
	}

	tok.Release()
	if err := <-aDone; err != nil {
		t.Errorf("Alter on a failed: %v", err)
	}

	for _, k := range []string{"a", "b"} {
		if v, _ := s.Get(k); v != 1 {
			t.Errorf("Expected %s=1, got %d", k, v)
		}
	}
	expectNoHeldLocks(t, s)
}

func TestAlterPanicReleasesLock(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.Insert("k", 1); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("Expected panic to propagate")
			}
		}()
		_ = s.Alter("k", func(int) int { panic("boom") })
	}()

	expectNoHeldLocks(t, s)
	if v, err := s.Get("k"); err != nil || v != 1 {
		t.Errorf("Expected value untouched after panic, got %d (%v)", v, err)
	}

	// a panicking default alter on a new key leaves no trace
	func() {
		defer func() { _ = recover() }()
		_ = s.AlterWithDefault("new", 0, func(int) int { panic("boom") })
	}()
	if ok, _ := s.Contains("new"); ok {
		t.Errorf("Expected no entry after panicking AlterWithDefault")
	}
	if n, _ := s.Len(); n != 1 {
		t.Errorf("Expected 1 key, got %d", n)
	}

	// the lock really is free again
	done := make(chan error, 1)
	go func() { done <- s.Alter("k", inc) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Alter after panic failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Lock leaked by panicking Alter")
	}
}

func TestFailedOperationsLeaveNoFiles(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Alter("missing", inc); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if err := s.Delete("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), "entries"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no files after failed operations, got %d", len(entries))
	}
	expectNoHeldLocks(t, s)
}

func TestCorruptBucketIsEncodingFailure(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.Insert("k", 1); err != nil {
		t.Fatal(err)
	}

	k, _ := s.keys.Encode("k")
	if err := os.WriteFile(s.db.Path(s.db.Identify(k)), []byte("FSKVBKT\x00torn"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get("k"); !errors.Is(err, store.ErrEncodingFailure) {
		t.Errorf("Expected EncodingFailure from Get, got %v", err)
	}
	if err := s.Alter("k", inc); !errors.Is(err, store.ErrEncodingFailure) {
		t.Errorf("Expected EncodingFailure from Alter, got %v", err)
	}
	if _, err := s.GetKeys(); !errors.Is(err, store.ErrEncodingFailure) {
		t.Errorf("Expected EncodingFailure from GetKeys, got %v", err)
	}
	expectNoHeldLocks(t, s)
}

func TestValueDecodeFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	strs, err := OpenNew[string, string](root, &store.Options[string, string]{ValueCodec: codec.NewStringCodec()})
	if err != nil {
		t.Fatal(err)
	}
	if err := strs.Insert("k", "not a number"); err != nil {
		t.Fatal(err)
	}

	ints, err := Open[string, int](root, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ints.Get("k")
	if !errors.Is(err, store.ErrEncodingFailure) {
		t.Errorf("Expected EncodingFailure, got %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("Expected the decode error to be wrapped")
	}
}

func TestTempFilesNotListed(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.Insert("a", 1); err != nil {
		t.Fatal(err)
	}
	tmp := filepath.Join(s.Root(), "entries", ".tmp-0123456789abcdef.bkt-42")
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	keys, err := s.GetKeys()
	if err != nil {
		t.Fatalf("Failed to get keys: %v", err)
	}
	if fmt.Sprint(keys) != "[a]" {
		t.Errorf("Expected [a], got %v", keys)
	}
}

func TestCloneSharesLocking(t *testing.T) {
	s := newTestStore(t, nil)
	clone := s.Clone().(*storeImpl[string, int])

	if clone.Root() != s.Root() {
		t.Errorf("Expected clone to share the root")
	}

	if err := s.Insert("n", 0); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for _, h := range []store.IStore[string, int]{s, clone} {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(h store.IStore[string, int]) {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					if err := h.Alter("n", inc); err != nil {
						t.Errorf("Alter failed: %v", err)
					}
				}
			}(h)
		}
	}
	wg.Wait()

	if v, _ := clone.Get("n"); v != 160 {
		t.Errorf("Expected 160, got %d", v)
	}
}

// --------------------------------------------------------------------------
// Cross process
// --------------------------------------------------------------------------

const (
	helperRootEnv = "FSKV_TEST_HELPER_ROOT"
	helperNEnv    = "FSKV_TEST_HELPER_N"
)

// TestHelperProcess is not a real test. It is run as a subprocess by
// TestCrossProcessAlter and increments a counter in an existing store.
func TestHelperProcess(t *testing.T) {
	root := os.Getenv(helperRootEnv)
	if root == "" {
		t.Skip("only runs as a subprocess")
	}
	n, _ := strconv.Atoi(os.Getenv(helperNEnv))

	s, err := Open[string, int](root, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := s.Alter("counter", inc); err != nil {
			t.Fatalf("Alter failed: %v", err)
		}
	}
}

func TestCrossProcessAlter(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns subprocesses")
	}
	const procs = 3
	const perProc = 40

	root := filepath.Join(t.TempDir(), "store")
	s, err := OpenNew[string, int](root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Insert("counter", 0); err != nil {
		t.Fatal(err)
	}

	cmds := make([]*exec.Cmd, procs)
	for i := range cmds {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
		cmd.Env = append(os.Environ(), helperRootEnv+"="+root, fmt.Sprintf("%s=%d", helperNEnv, perProc))
		if err := cmd.Start(); err != nil {
			t.Fatalf("Failed to start helper: %v", err)
		}
		cmds[i] = cmd
	}

	// this process competes as well
	for i := 0; i < perProc; i++ {
		if err := s.Alter("counter", inc); err != nil {
			t.Fatalf("Alter failed: %v", err)
		}
	}

	for _, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			t.Fatalf("Helper failed: %v", err)
		}
	}

	if v, err := s.Get("counter"); err != nil || v != (procs+1)*perProc {
		t.Errorf("Expected counter %d, got %d (%v)", (procs+1)*perProc, v, err)
	}
	keys, _ := s.GetKeys()
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[counter]" {
		t.Errorf("Expected [counter], got %v", keys)
	}
}
