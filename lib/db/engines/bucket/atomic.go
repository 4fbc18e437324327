package bucket

import (
	"errors"
	"os"
	"path/filepath"
)

// tmpPrefix marks in-flight writes. Such files never parse as bucket names.
const tmpPrefix = ".tmp-"

var errCancelled = errors.New("bucket: write cancelled")

// pendingFile is a file that becomes visible at its destination only once it
// is completely written and synced. Until then the data lives in a temp file
// next to the destination, so the final rename stays on one filesystem.
type pendingFile struct {
	dstPath string
	dir     string
	tmpFile *os.File
	tmpPath string
	err     error
}

func newPendingFile(dstPath string, perm os.FileMode) (*pendingFile, error) {
	dir := filepath.Dir(dstPath)
	tmpFile, err := os.CreateTemp(dir, tmpPrefix+filepath.Base(dstPath)+"-*")
	if err != nil {
		return nil, err
	}
	// CreateTemp always uses 0600
	if err := tmpFile.Chmod(perm); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return nil, err
	}
	return &pendingFile{
		dstPath: dstPath,
		dir:     dir,
		tmpFile: tmpFile,
		tmpPath: tmpFile.Name(),
	}, nil
}

// Write writes data to the temp file. The first error is remembered and
// makes every later call fail.
func (f *pendingFile) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(d)
	if err != nil {
		f.err = err
	}
	return n, err
}

// Abort removes the temp file if neither Commit nor Publish ran. No-op afterwards.
func (f *pendingFile) Abort() {
	if f == nil || f.tmpFile == nil {
		return
	}
	f.err = errCancelled
	_ = f.tmpFile.Close()
	_ = os.Remove(f.tmpPath)
	f.tmpFile = nil
}

// Commit renames the temp file over the destination, replacing it
func (f *pendingFile) Commit() error {
	return f.finish(os.Rename)
}

// Publish links the temp file to the destination and fails with an
// fs.ErrExist error if the destination already exists
func (f *pendingFile) Publish() error {
	return f.finish(func(tmp, dst string) error {
		if err := os.Link(tmp, dst); err != nil {
			return err
		}
		_ = os.Remove(tmp)
		return nil
	})
}

func (f *pendingFile) finish(place func(tmp, dst string) error) error {
	if f.tmpFile == nil {
		return f.err
	}
	tmpFile := f.tmpFile
	f.tmpFile = nil

	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()

	placed := false
	defer func() {
		if !placed {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = place(f.tmpPath, f.dstPath)
		placed = err == nil
	}
	if placed {
		syncDir(f.dir)
	}
	f.err = err
	return err
}

// syncDir persists directory entries after a rename. Errors are ignored, some
// platforms cannot sync directories at all.
func syncDir(dir string) {
	if d, _ := os.Open(dir); d != nil {
		_ = d.Sync()
		_ = d.Close()
	}
}

// writeAtomic writes data to path with a single Commit
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := newPendingFile(path, perm)
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}
