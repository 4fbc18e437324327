package bucket

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

// collidingHasher maps every key to the same identifier
func collidingHasher([]byte) uint64 { return 42 }

func write(t *testing.T, d db.IRecordDB, locks lockmgr.ILockManager, key, value string) {
	t.Helper()
	tok, err := locks.AcquireExclusive(d.Path(d.Identify([]byte(key))))
	if err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}
	defer tok.Release()
	if err := d.Write(tok, []byte(key), []byte(value)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
}

func read(d db.IRecordDB, locks lockmgr.ILockManager, key string) (string, error) {
	tok, err := locks.AcquireShared(d.Path(d.Identify([]byte(key))))
	if err != nil {
		return "", err
	}
	defer tok.Release()
	v, err := d.Read(tok, []byte(key))
	return string(v), err
}

func TestCreateLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "store")
	d, err := Create(root, nil)
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}

	m, err := readMeta(root)
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	if m.Format != metaFormat || m.Hash != hashDefault || m.Compression != db.CompressionNone {
		t.Errorf("Unexpected metadata: %+v", m)
	}

	if filepath.Dir(d.Path(d.Identify([]byte("k")))) != filepath.Join(root, entriesDir) {
		t.Errorf("Expected buckets below %s, got %s", entriesDir, d.Path(d.Identify([]byte("k"))))
	}
}

func TestCreateAlreadyExists(t *testing.T) {
	root := t.TempDir()
	if _, err := Create(root, nil); err != nil {
		t.Fatalf("Failed to create: %v", err)
	}

	if _, err := Create(root, nil); !errors.Is(err, db.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists for existing store, got %v", err)
	}

	other := t.TempDir()
	if err := os.WriteFile(filepath.Join(other, "foreign.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(other, nil); !errors.Is(err, db.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists for non-empty directory, got %v", err)
	}
}

func TestCreateOverwrite(t *testing.T) {
	root := t.TempDir()
	locks := lockmgr.NewLockManager(0)

	d, err := Create(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	write(t, d, locks, "old", "value")

	d, err = Create(root, &Options{Overwrite: true})
	if err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}
	listings, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 0 {
		t.Errorf("Expected empty store after overwrite, got %d records", len(listings))
	}
}

func TestCreateRace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	const n = 8

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = Create(root, nil)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, db.ErrAlreadyExists):
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly one successful Create, got %d", wins)
	}
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	locks := lockmgr.NewLockManager(0)

	if _, err := Open(root, nil); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound without a store, got %v", err)
	}

	d, err := Create(root, &Options{Compression: db.CompressionZstd})
	if err != nil {
		t.Fatal(err)
	}
	write(t, d, locks, "persisted", "value")

	reopened, err := Open(root, nil)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if v, err := read(reopened, locks, "persisted"); err != nil || v != "value" {
		t.Errorf("Expected persisted value, got %q (%v)", v, err)
	}

	info, err := reopened.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Compression != db.CompressionZstd {
		t.Errorf("Expected compression from metadata, got %q", info.Compression)
	}

	// a reader with different compression still reads everything
	plain, err := Open(root, &Options{Compression: db.CompressionNone})
	if err != nil {
		t.Fatal(err)
	}
	write(t, plain, locks, "plain", "value")
	for _, k := range []string{"persisted", "plain"} {
		if v, err := read(reopened, locks, k); err != nil || v != "value" {
			t.Errorf("Expected %s to be readable across compression settings, got %q (%v)", k, v, err)
		}
	}
}

func TestOpenWithDefaultsUsesStoredCompression(t *testing.T) {
	if c := DefaultOptions().Compression; c != db.CompressionAuto {
		t.Fatalf("Expected default compression auto, got %q", c)
	}

	root := t.TempDir()
	if _, err := Create(root, &Options{Compression: db.CompressionZstd}); err != nil {
		t.Fatal(err)
	}

	for name, opts := range map[string]*Options{"nil": nil, "defaults": DefaultOptions()} {
		t.Run(name, func(t *testing.T) {
			d, err := Open(root, opts)
			if err != nil {
				t.Fatalf("Failed to open: %v", err)
			}
			locks := lockmgr.NewLockManager(0)
			key := "compressed-" + name
			write(t, d, locks, key, string(bytes.Repeat([]byte("fskv "), 200)))

			data, err := os.ReadFile(d.Path(d.Identify([]byte(key))))
			if err != nil {
				t.Fatal(err)
			}
			if data[len(magicNum)+1]&flagZstd == 0 {
				t.Errorf("Expected bucket written after Open(%s) to be zstd compressed", name)
			}
		})
	}

	// nil options on a new store still mean no compression
	plainRoot := t.TempDir()
	d, err := Create(plainRoot, nil)
	if err != nil {
		t.Fatal(err)
	}
	info, err := d.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Compression != db.CompressionNone {
		t.Errorf("Expected compression none for a default store, got %q", info.Compression)
	}
}

func TestOpenBadMetadata(t *testing.T) {
	testCases := map[string]string{
		"garbage":             "{{{ not yaml",
		"unsupported format":  "format: 99\nhash: xxhash64\ncompression: none\n",
		"unknown compression": "format: 1\nhash: xxhash64\ncompression: lz4\n",
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			if err := os.WriteFile(filepath.Join(root, metaFile), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Open(root, nil); !errors.Is(err, db.ErrCorrupt) {
				t.Errorf("Expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestCollisions(t *testing.T) {
	d, err := Create(t.TempDir(), &Options{Hasher: collidingHasher})
	if err != nil {
		t.Fatal(err)
	}
	locks := lockmgr.NewLockManager(0)

	write(t, d, locks, "a", "1")
	write(t, d, locks, "b", "2")
	write(t, d, locks, "c", "3")
	write(t, d, locks, "b", "22")

	if d.Identify([]byte("a")) != d.Identify([]byte("b")) {
		t.Fatalf("Expected colliding identifiers")
	}

	for k, want := range map[string]string{"a": "1", "b": "22", "c": "3"} {
		if v, err := read(d, locks, k); err != nil || v != want {
			t.Errorf("Expected %s=%s, got %q (%v)", k, want, v, err)
		}
	}

	info, err := d.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Buckets != 1 || info.Entries != 3 {
		t.Errorf("Expected 3 entries in 1 bucket, got %d in %d", info.Entries, info.Buckets)
	}

	// removing one colliding key keeps the others
	tok, err := locks.AcquireExclusive(d.Path(d.Identify([]byte("a"))))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(tok, []byte("a")); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	tok.Release()

	if _, err := read(d, locks, "a"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for removed key, got %v", err)
	}
	listings, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, l := range listings {
		keys = append(keys, string(l.Key))
	}
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[b c]" {
		t.Errorf("Expected [b c] after removal, got %v", keys)
	}
}

func TestCorruptBucket(t *testing.T) {
	d, err := Create(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	locks := lockmgr.NewLockManager(0)
	write(t, d, locks, "key", "value")

	path := d.Path(d.Identify([]byte("key")))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// torn write: half of the file
	if err := os.WriteFile(path, data[:len(data)/2], 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := read(d, locks, "key"); !errors.Is(err, db.ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt from Read, got %v", err)
	}
	if _, err := d.List(); !errors.Is(err, db.ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt from List, got %v", err)
	}

	// a failed write keeps the damaged bucket as is
	tok, err := locks.AcquireExclusive(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Write(tok, []byte("key"), []byte("new")); !errors.Is(err, db.ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt from Write, got %v", err)
	}
	tok.Release()

	after, _ := os.ReadFile(path)
	if !bytes.Equal(after, data[:len(data)/2]) {
		t.Errorf("Expected failed write to leave the bucket untouched")
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	d, err := Create(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	locks := lockmgr.NewLockManager(0)
	for i := 0; i < 20; i++ {
		write(t, d, locks, fmt.Sprintf("key-%d", i%5), fmt.Sprint(i))
	}

	for _, dir := range []string{root, filepath.Join(root, entriesDir)} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if len(e.Name()) >= len(tmpPrefix) && e.Name()[:len(tmpPrefix)] == tmpPrefix {
				t.Errorf("Found leftover temp file %s", e.Name())
			}
		}
	}
}

func TestFileMode(t *testing.T) {
	if os.PathSeparator != '/' {
		t.Skip("permission bits are not portable")
	}
	d, err := Create(t.TempDir(), &Options{FileMode: 0o600})
	if err != nil {
		t.Fatal(err)
	}
	write(t, d, lockmgr.NewLockManager(0o600), "key", "value")

	fi, err := os.Stat(d.Path(d.Identify([]byte("key"))))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("Expected mode 0600, got %v", fi.Mode().Perm())
	}
}

func TestPendingFileAbort(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "target")

	f, err := newPendingFile(dst, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("data")); err != nil {
		t.Fatal(err)
	}
	f.Abort()
	f.Abort()

	if err := f.Commit(); !errors.Is(err, errCancelled) {
		t.Errorf("Expected errCancelled after Abort, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected empty directory after Abort, found %d entries", len(entries))
	}
}

func TestPendingFilePublishExclusive(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "target")
	if err := os.WriteFile(dst, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := newPendingFile(dst, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte("second"))
	if err := f.Publish(); !errors.Is(err, os.ErrExist) {
		t.Errorf("Expected ErrExist when publishing over an existing file, got %v", err)
	}

	data, _ := os.ReadFile(dst)
	if string(data) != "first" {
		t.Errorf("Expected destination to be untouched, got %q", data)
	}
}
