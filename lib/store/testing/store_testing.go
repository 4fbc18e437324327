package testing

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/fsKV/lib/store"
)

// StoreFactory creates a new, empty store rooted at root
type StoreFactory func(root string) (store.IStore[string, int], error)

// RunStoreTests runs the conformance suite for an IStore implementation
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("RoundTrip", func(t *testing.T) {
			testRoundTrip(t, newStore(t, factory))
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, newStore(t, factory))
		})

		t.Run("MissingKey", func(t *testing.T) {
			testMissingKey(t, newStore(t, factory))
		})

		t.Run("AlterAtomicity", func(t *testing.T) {
			testAlterAtomicity(t, newStore(t, factory))
		})

		t.Run("IdempotentAlter", func(t *testing.T) {
			testIdempotentAlter(t, newStore(t, factory))
		})

		t.Run("GetKeys", func(t *testing.T) {
			testGetKeys(t, newStore(t, factory))
		})

		t.Run("Clone", func(t *testing.T) {
			testClone(t, newStore(t, factory))
		})

		t.Run("Scenario", func(t *testing.T) {
			testScenario(t, newStore(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, newStore(t, factory))
		})

		t.Run("AlterWithDefault", func(t *testing.T) {
			testAlterWithDefault(t, newStore(t, factory))
		})

		t.Run("Contains", func(t *testing.T) {
			testContains(t, newStore(t, factory))
		})

		t.Run("Entries&Clear", func(t *testing.T) {
			testEntriesClear(t, newStore(t, factory))
		})

		t.Run("ConcurrentMixedUsage", func(t *testing.T) {
			testConcurrentMixedUsage(t, newStore(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newStore(t testing.TB, factory StoreFactory) store.IStore[string, int] {
	t.Helper()
	s, err := factory(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func mustInsert(t testing.TB, s store.IStore[string, int], key string, value int) {
	t.Helper()
	if err := s.Insert(key, value); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}

func expectValue(t testing.TB, s store.IStore[string, int], key string, want int) {
	t.Helper()
	got, err := s.Get(key)
	if err != nil {
		t.Errorf("Expected %s=%d, got error %v", key, want, err)
		return
	}
	if got != want {
		t.Errorf("Expected %s=%d, got %d", key, want, got)
	}
}

func sortedKeys(t testing.TB, s store.IStore[string, int]) []string {
	t.Helper()
	keys, err := s.GetKeys()
	if err != nil {
		t.Fatalf("Failed to get keys: %v", err)
	}
	sort.Strings(keys)
	return keys
}

func inc(n int) int { return n + 1 }

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testRoundTrip(t *testing.T, s store.IStore[string, int]) {
	values := make(map[string]int)
	values["a"] = 1
	values[""] = 0
	values["negative"] = -42
	values["unicode-ключ-🔑"] = 7
	values["../../etc/passwd"] = 13
	values["slash/in/key"] = 99
	values["very-long-key-"+string(make([]byte, 300))] = 5
	for k, v := range values {
		mustInsert(t, s, k, v)
	}
	for k, v := range values {
		expectValue(t, s, k, v)
	}
}

func testOverwrite(t *testing.T, s store.IStore[string, int]) {
	mustInsert(t, s, "k", 1)
	mustInsert(t, s, "k", 2)
	expectValue(t, s, "k", 2)

	if keys := sortedKeys(t, s); len(keys) != 1 {
		t.Errorf("Expected one key after overwrite, got %v", keys)
	}
}

func testMissingKey(t *testing.T, s store.IStore[string, int]) {
	if _, err := s.Get("never-inserted"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}

	called := false
	err := s.Alter("never-inserted", func(n int) int { called = true; return n })
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound from Alter, got %v", err)
	}
	if called {
		t.Errorf("Alter must not call fn for a missing key")
	}

	if keys := sortedKeys(t, s); len(keys) != 0 {
		t.Errorf("Expected no keys after failed operations, got %v", keys)
	}
}

// testAlterAtomicity runs concurrent increments from several handles.
// Every increment must be visible at the end.
func testAlterAtomicity(t *testing.T, s store.IStore[string, int]) {
	const workers = 8
	const perWorker = 25

	mustInsert(t, s, "counter", 0)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(h store.IStore[string, int]) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := h.Alter("counter", inc); err != nil {
					t.Errorf("Alter failed: %v", err)
					return
				}
			}
		}(s.Clone())
	}
	wg.Wait()

	expectValue(t, s, "counter", workers*perWorker)
}

func testIdempotentAlter(t *testing.T, s store.IStore[string, int]) {
	mustInsert(t, s, "k", 0)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Alter("k", func(int) int { return 42 }); err != nil {
				t.Errorf("Alter failed: %v", err)
			}
		}()
	}
	wg.Wait()

	expectValue(t, s, "k", 42)
}

func testGetKeys(t *testing.T, s store.IStore[string, int]) {
	if keys := sortedKeys(t, s); len(keys) != 0 {
		t.Errorf("Expected no keys in new store, got %v", keys)
	}

	mustInsert(t, s, "a", 1)
	mustInsert(t, s, "b", 2)
	mustInsert(t, s, "c", 3)

	if keys := sortedKeys(t, s); fmt.Sprint(keys) != "[a b c]" {
		t.Errorf("Expected [a b c], got %v", keys)
	}
	if n, err := s.Len(); err != nil || n != 3 {
		t.Errorf("Expected Len 3, got %d (%v)", n, err)
	}
}

func testClone(t *testing.T, s store.IStore[string, int]) {
	clone := s.Clone()
	if clone.Root() != s.Root() {
		t.Errorf("Expected clone root %s, got %s", s.Root(), clone.Root())
	}

	mustInsert(t, s, "from-original", 1)
	expectValue(t, clone, "from-original", 1)

	mustInsert(t, clone, "from-clone", 2)
	expectValue(t, s, "from-clone", 2)

	// a clone of a clone still refers to the same store
	expectValue(t, clone.Clone(), "from-original", 1)
}

func testScenario(t *testing.T, s store.IStore[string, int]) {
	mustInsert(t, s, "a", 1)
	mustInsert(t, s, "b", 2)
	if err := s.Alter("a", inc); err != nil {
		t.Fatalf("Alter failed: %v", err)
	}
	expectValue(t, s, "a", 2)

	if keys := sortedKeys(t, s); fmt.Sprint(keys) != "[a b]" {
		t.Errorf("Expected [a b], got %v", keys)
	}
	if _, err := s.Get("z"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound for z, got %v", err)
	}
}

func testDelete(t *testing.T, s store.IStore[string, int]) {
	mustInsert(t, s, "k", 1)
	mustInsert(t, s, "other", 2)

	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound after Delete, got %v", err)
	}
	if err := s.Delete("k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound when deleting twice, got %v", err)
	}
	expectValue(t, s, "other", 2)

	// a deleted key can be inserted again
	mustInsert(t, s, "k", 3)
	expectValue(t, s, "k", 3)
}

func testAlterWithDefault(t *testing.T, s store.IStore[string, int]) {
	if err := s.AlterWithDefault("k", 10, inc); err != nil {
		t.Fatalf("AlterWithDefault failed: %v", err)
	}
	expectValue(t, s, "k", 11)

	if err := s.AlterWithDefault("k", 10, inc); err != nil {
		t.Fatalf("AlterWithDefault failed: %v", err)
	}
	expectValue(t, s, "k", 12)

	// concurrent create-or-increment loses nothing
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := s.AlterWithDefault("fresh", 0, inc); err != nil {
					t.Errorf("AlterWithDefault failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	expectValue(t, s, "fresh", 80)
}

func testContains(t *testing.T, s store.IStore[string, int]) {
	mustInsert(t, s, "k", 0)

	if ok, err := s.Contains("k"); err != nil || !ok {
		t.Errorf("Expected Contains(k)=true, got %v (%v)", ok, err)
	}
	if ok, err := s.Contains("missing"); err != nil || ok {
		t.Errorf("Expected Contains(missing)=false, got %v (%v)", ok, err)
	}
}

func testEntriesClear(t *testing.T, s store.IStore[string, int]) {
	want := map[string]int{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		mustInsert(t, s, k, v)
	}

	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != len(want) {
		t.Errorf("Expected %d entries, got %d", len(want), len(entries))
	}
	for _, e := range entries {
		if want[e.Key] != e.Value {
			t.Errorf("Expected %s=%d, got %d", e.Key, want[e.Key], e.Value)
		}
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, err := s.Len(); err != nil || n != 0 {
		t.Errorf("Expected empty store after Clear, got %d (%v)", n, err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clear on empty store failed: %v", err)
	}
}

// testConcurrentMixedUsage mixes every operation on a small key space and
// checks the store stays consistent
func testConcurrentMixedUsage(t *testing.T, s store.IStore[string, int]) {
	const workers = 6
	const rounds = 30
	keys := []string{"k0", "k1", "k2", "k3"}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int, h store.IStore[string, int]) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				k := keys[(w+i)%len(keys)]
				var err error
				switch i % 5 {
				case 0:
					err = h.Insert(k, i)
				case 1:
					_, err = h.Get(k)
				case 2:
					err = h.AlterWithDefault(k, 0, inc)
				case 3:
					err = h.Delete(k)
				case 4:
					_, err = h.GetKeys()
				}
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					t.Errorf("Operation %d on %s failed: %v", i%5, k, err)
				}
			}
		}(w, s.Clone())
	}
	wg.Wait()

	// every listed key must be readable once quiescent
	for _, k := range sortedKeys(t, s) {
		if _, err := s.Get(k); err != nil {
			t.Errorf("Listed key %s not readable: %v", k, err)
		}
	}
}
