package testing

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
)

// DBFactory creates a new, empty record store rooted at root
type DBFactory func(root string) (db.IRecordDB, error)

// RunRecordDBTests runs a comprehensive test suite for an IRecordDB implementation.
func RunRecordDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Write&Read", func(t *testing.T) {
			testWriteRead(t, newDB(t, factory))
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, newDB(t, factory))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, newDB(t, factory))
		})

		t.Run("RequiresExclusive", func(t *testing.T) {
			testRequiresExclusive(t, newDB(t, factory))
		})

		t.Run("Prune", func(t *testing.T) {
			testPrune(t, newDB(t, factory))
		})

		t.Run("List", func(t *testing.T) {
			testList(t, newDB(t, factory))
		})

		t.Run("ListSkipsLitter", func(t *testing.T) {
			testListSkipsLitter(t, newDB(t, factory))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, newDB(t, factory))
		})

		t.Run("ConcurrentReadModifyWrite", func(t *testing.T) {
			testConcurrentReadModifyWrite(t, newDB(t, factory))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, newDB(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newDB(t testing.TB, factory DBFactory) db.IRecordDB {
	t.Helper()
	database, err := factory(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("Failed to create record store: %v", err)
	}
	return database
}

func pathOf(database db.IRecordDB, key string) string {
	return database.Path(database.Identify([]byte(key)))
}

// writeKey writes key under its own exclusive lock
func writeKey(t testing.TB, database db.IRecordDB, locks lockmgr.ILockManager, key string, value []byte) {
	t.Helper()
	if err := putKey(database, locks, key, value); err != nil {
		t.Fatalf("Failed to write %s: %v", key, err)
	}
}

func putKey(database db.IRecordDB, locks lockmgr.ILockManager, key string, value []byte) error {
	tok, err := locks.AcquireExclusive(pathOf(database, key))
	if err != nil {
		return err
	}
	defer tok.Release()
	return database.Write(tok, []byte(key), value)
}

// readKey reads key under a shared lock. A missing bucket is ErrNotFound.
func readKey(database db.IRecordDB, locks lockmgr.ILockManager, key string) ([]byte, error) {
	tok, err := locks.AcquireShared(pathOf(database, key))
	if errors.Is(err, lockmgr.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer tok.Release()
	return database.Read(tok, []byte(key))
}

func removeKey(database db.IRecordDB, locks lockmgr.ILockManager, key string) error {
	tok, err := locks.AcquireExclusive(pathOf(database, key))
	if err != nil {
		return err
	}
	defer tok.Release()
	defer database.Prune(tok)
	return database.Remove(tok, []byte(key))
}

func listedKeys(t testing.TB, database db.IRecordDB) []string {
	t.Helper()
	listings, err := database.List()
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	keys := make([]string, 0, len(listings))
	for _, l := range listings {
		if l.ID != database.Identify(l.Key) {
			t.Errorf("Listing for %q has id %s, expected %s", l.Key, l.ID, database.Identify(l.Key))
		}
		keys = append(keys, string(l.Key))
	}
	sort.Strings(keys)
	return keys
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteRead(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)

	writeKey(t, database, locks, "test-key", []byte("test-value"))

	result, err := readKey(database, locks, "test-key")
	if err != nil {
		t.Fatalf("Expected key to exist after Write, got %v", err)
	}
	if !bytes.Equal(result, []byte("test-value")) {
		t.Errorf("Expected value test-value, got %s", result)
	}

	if _, err := readKey(database, locks, "nonexistent-key"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent key, got %v", err)
	}

	// Read returns a copy
	result[0] = 'X'
	again, _ := readKey(database, locks, "test-key")
	if !bytes.Equal(again, []byte("test-value")) {
		t.Errorf("Read should return a copy, not a reference to the stored value")
	}

	if len(locks.Held()) != 0 {
		t.Errorf("Expected no held locks, got %v", locks.Held())
	}
}

func testOverwrite(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)

	writeKey(t, database, locks, "key", []byte("value1"))
	writeKey(t, database, locks, "key", []byte("value2"))

	result, err := readKey(database, locks, "key")
	if err != nil || !bytes.Equal(result, []byte("value2")) {
		t.Errorf("Expected value2 after overwrite, got %s (%v)", result, err)
	}

	if keys := listedKeys(t, database); len(keys) != 1 {
		t.Errorf("Expected exactly one listed key after overwrite, got %v", keys)
	}
}

func testRemove(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)

	writeKey(t, database, locks, "key", []byte("value"))
	if err := removeKey(database, locks, "key"); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}

	if _, err := readKey(database, locks, "key"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after Remove, got %v", err)
	}
	if exists(pathOf(database, "key")) {
		t.Errorf("Expected bucket file to be removed with its last record")
	}

	if err := removeKey(database, locks, "key"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when removing a missing key, got %v", err)
	}
	if exists(pathOf(database, "key")) {
		t.Errorf("Expected no empty bucket to be left behind by a failed Remove")
	}
}

func testRequiresExclusive(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)
	writeKey(t, database, locks, "key", []byte("value"))

	tok, err := locks.AcquireShared(pathOf(database, "key"))
	if err != nil {
		t.Fatalf("Failed to acquire shared lock: %v", err)
	}
	defer tok.Release()

	if err := database.Write(tok, []byte("key"), []byte("other")); !errors.Is(err, db.ErrNotExclusive) {
		t.Errorf("Expected ErrNotExclusive for Write, got %v", err)
	}
	if err := database.Remove(tok, []byte("key")); !errors.Is(err, db.ErrNotExclusive) {
		t.Errorf("Expected ErrNotExclusive for Remove, got %v", err)
	}
	if err := database.Prune(tok); !errors.Is(err, db.ErrNotExclusive) {
		t.Errorf("Expected ErrNotExclusive for Prune, got %v", err)
	}

	value, err := database.Read(tok, []byte("key"))
	if err != nil || !bytes.Equal(value, []byte("value")) {
		t.Errorf("Expected rejected writes to leave the value untouched, got %s (%v)", value, err)
	}
}

func testPrune(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)
	path := pathOf(database, "never-written")

	tok, err := locks.AcquireExclusive(path)
	if err != nil {
		t.Fatalf("Failed to acquire exclusive lock: %v", err)
	}
	if !exists(path) {
		t.Fatalf("Expected exclusive acquisition to create the unit")
	}
	if err := database.Prune(tok); err != nil {
		t.Errorf("Failed to prune: %v", err)
	}
	tok.Release()

	if exists(path) {
		t.Errorf("Expected Prune to remove the empty unit")
	}

	// a written bucket survives Prune
	tok, err = locks.AcquireExclusive(pathOf(database, "written"))
	if err != nil {
		t.Fatalf("Failed to acquire exclusive lock: %v", err)
	}
	if err := database.Write(tok, []byte("written"), []byte("value")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := database.Prune(tok); err != nil {
		t.Errorf("Failed to prune after write: %v", err)
	}
	tok.Release()

	if _, err := readKey(database, locks, "written"); err != nil {
		t.Errorf("Expected written key to survive Prune, got %v", err)
	}
}

func testList(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)

	if keys := listedKeys(t, database); len(keys) != 0 {
		t.Errorf("Expected empty listing for new store, got %v", keys)
	}

	want := []string{"a", "b", "c"}
	for i, k := range want {
		writeKey(t, database, locks, k, []byte(fmt.Sprint(i)))
	}

	got := listedKeys(t, database)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected keys %v, got %v", want, got)
	}

	if err := removeKey(database, locks, "b"); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	got = listedKeys(t, database)
	if fmt.Sprint(got) != "[a c]" {
		t.Errorf("Expected keys [a c] after removal, got %v", got)
	}
}

func testListSkipsLitter(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)
	writeKey(t, database, locks, "real", []byte("value"))

	// an empty unit held by an exclusive lock that has not written yet
	tok, err := locks.AcquireExclusive(pathOf(database, "pending"))
	if err != nil {
		t.Fatalf("Failed to acquire exclusive lock: %v", err)
	}
	defer tok.Release()

	// an abandoned temp file and a foreign file
	dir := filepath.Dir(pathOf(database, "real"))
	if err := os.WriteFile(filepath.Join(dir, ".tmp-abandoned"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("not a bucket"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := listedKeys(t, database)
	if fmt.Sprint(got) != "[real]" {
		t.Errorf("Expected only [real] to be listed, got %v", got)
	}
}

func testInfo(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)
	for i := 0; i < 10; i++ {
		writeKey(t, database, locks, fmt.Sprintf("key-%d", i), bytes.Repeat([]byte("x"), 100))
	}

	info, err := database.Info()
	if err != nil {
		t.Fatalf("Failed to get info: %v", err)
	}
	if info.Entries != 10 {
		t.Errorf("Expected 10 entries, got %d", info.Entries)
	}
	if info.Buckets < 1 || info.Buckets > 10 {
		t.Errorf("Expected between 1 and 10 buckets, got %d", info.Buckets)
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected positive size, got %d", info.SizeBytes)
	}
	if info.MedianValue <= 0 {
		t.Errorf("Expected positive median value size, got %d", info.MedianValue)
	}
	if info.Root != database.Root() {
		t.Errorf("Expected root %s, got %s", database.Root(), info.Root)
	}
}

// testConcurrentReadModifyWrite increments a counter from many goroutines,
// each with its own lock manager. Every increment must survive.
func testConcurrentReadModifyWrite(t *testing.T, database db.IRecordDB) {
	const numWorkers = 8
	const incrementsPerWorker = 25

	writeKey(t, database, lockmgr.NewLockManager(0), "counter", []byte("0"))
	path := pathOf(database, "counter")

	var wg sync.WaitGroup
	errs := make(chan error, numWorkers)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks := lockmgr.NewLockManager(0)
			for i := 0; i < incrementsPerWorker; i++ {
				err := func() error {
					tok, err := locks.AcquireExclusive(path)
					if err != nil {
						return err
					}
					defer tok.Release()

					raw, err := database.Read(tok, []byte("counter"))
					if err != nil {
						return err
					}
					var n int
					if _, err := fmt.Sscan(string(raw), &n); err != nil {
						return err
					}
					return database.Write(tok, []byte("counter"), []byte(fmt.Sprint(n+1)))
				}()
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Worker failed: %v", err)
	}

	raw, err := readKey(database, lockmgr.NewLockManager(0), "counter")
	if err != nil {
		t.Fatalf("Failed to read counter: %v", err)
	}
	if want := fmt.Sprint(numWorkers * incrementsPerWorker); string(raw) != want {
		t.Errorf("Expected counter %s, got %s (lost updates)", want, raw)
	}
}

func testEdgeCases(t *testing.T, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)

	// empty key and empty value
	writeKey(t, database, locks, "", []byte{})
	value, err := readKey(database, locks, "")
	if err != nil || len(value) != 0 {
		t.Errorf("Expected empty value for empty key, got %q (%v)", value, err)
	}

	// keys that would be unsafe as file names
	for _, key := range []string{"../escape", "a/b/c", "CON", "with\x00nul", "ünïcødé"} {
		writeKey(t, database, locks, key, []byte(key))
		value, err := readKey(database, locks, key)
		if err != nil || string(value) != key {
			t.Errorf("Expected value %q, got %q (%v)", key, value, err)
		}
		if filepath.Dir(pathOf(database, key)) != filepath.Dir(pathOf(database, "")) {
			t.Errorf("Key %q maps outside the entries directory: %s", key, pathOf(database, key))
		}
	}

	// large value
	large := bytes.Repeat([]byte{0xAB}, 1<<20)
	writeKey(t, database, locks, "large", large)
	value, err = readKey(database, locks, "large")
	if err != nil || !bytes.Equal(value, large) {
		t.Errorf("Large value mismatch (%v)", err)
	}
}
