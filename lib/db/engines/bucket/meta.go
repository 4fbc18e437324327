package bucket

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/db"
	"gopkg.in/yaml.v3"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	metaFile   = "fskv.yaml"
	entriesDir = "entries"

	metaFormat  = 1
	hashDefault = "xxhash64"
	hashCustom  = "custom"
)

// meta is the content of fskv.yaml
type meta struct {
	Format      int            `yaml:"format"`
	Hash        string         `yaml:"hash"`
	Compression db.Compression `yaml:"compression"`
	Created     time.Time      `yaml:"created"`
}

// readMeta loads and validates the metadata of the store at root
func readMeta(root string) (meta, error) {
	var m meta
	data, err := os.ReadFile(filepath.Join(root, metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return m, fmt.Errorf("%w: no store at %s", db.ErrNotFound, root)
	}
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %s: %v", db.ErrCorrupt, metaFile, err)
	}
	if m.Format != metaFormat {
		return m, fmt.Errorf("%w: %s: unsupported format %d", db.ErrCorrupt, metaFile, m.Format)
	}
	switch m.Compression {
	case db.CompressionNone, db.CompressionZstd:
	default:
		return m, fmt.Errorf("%w: %s: unknown compression %q", db.ErrCorrupt, metaFile, m.Compression)
	}
	return m, nil
}

// publishMeta writes the metadata of a new store. Exactly one of several
// concurrent callers succeeds, the others get db.ErrAlreadyExists.
func publishMeta(root string, m meta, perm os.FileMode) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	f, err := newPendingFile(filepath.Join(root, metaFile), perm)
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Publish(); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: store at %s", db.ErrAlreadyExists, root)
		}
		return err
	}
	return nil
}

// ensureFresh fails with db.ErrAlreadyExists if root holds a store or any
// other file. A missing root is fine.
func ensureFresh(root string) error {
	if _, err := os.Stat(filepath.Join(root, metaFile)); err == nil {
		return fmt.Errorf("%w: store at %s", db.ErrAlreadyExists, root)
	}
	dirEntries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(dirEntries) > 0 {
		return fmt.Errorf("%w: %s is not empty", db.ErrAlreadyExists, root)
	}
	return nil
}
