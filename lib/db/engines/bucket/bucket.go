package bucket

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/db/util"
	"github.com/ValentinKolb/fsKV/lib/ident"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var plog = logger.GetLogger("bucket")

const (
	defaultFileMode os.FileMode = 0o644
	dirMode         os.FileMode = 0o755
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a bucket record store
type Options struct {
	Compression db.Compression // Compression of new writes (auto = value in metadata, none for new stores)
	FileMode    os.FileMode    // Permission of bucket and metadata files (0 = 0644)
	Hasher      ident.Hasher   // Key hash (nil = xxhash64). Must be the same for every user of a store
	Overwrite   bool           // Create only: remove an existing store or directory first
}

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		Compression: db.CompressionAuto,
		FileMode:    defaultFileMode,
	}
}

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// bucketImpl stores every identifier in its own file below <root>/entries.
// It holds no mutable state, all state lives on disk.
type bucketImpl struct {
	root        string
	dir         string
	ids         *ident.Codec
	compression db.Compression
	perm        os.FileMode
}

// Create initializes a new store at root and returns its record store.
// Fails with db.ErrAlreadyExists if root holds a store or other files, unless
// opts.Overwrite is set.
func Create(root string, opts *Options) (db.IRecordDB, error) {
	opts = withDefaults(opts)
	if opts.Compression == db.CompressionAuto {
		opts.Compression = db.CompressionNone
	}
	if err := validCompression(opts.Compression); err != nil {
		return nil, err
	}

	if opts.Overwrite {
		plog.Infof("removing existing content of %s", root)
		if err := os.RemoveAll(root); err != nil {
			return nil, err
		}
	} else if err := ensureFresh(root); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(root, entriesDir), dirMode); err != nil {
		return nil, err
	}

	m := meta{
		Format:      metaFormat,
		Hash:        hashDefault,
		Compression: opts.Compression,
		Created:     time.Now().UTC().Truncate(time.Second),
	}
	if opts.Hasher != nil {
		m.Hash = hashCustom
	}
	if err := publishMeta(root, m, opts.FileMode); err != nil {
		return nil, err
	}

	plog.Infof("created store at %s (compression=%s)", root, m.Compression)
	return newBucketDB(root, opts), nil
}

// Open returns the record store of an existing store at root.
// Fails with db.ErrNotFound if there is none and db.ErrCorrupt if its
// metadata cannot be read.
func Open(root string, opts *Options) (db.IRecordDB, error) {
	opts = withDefaults(opts)
	m, err := readMeta(root)
	if err != nil {
		return nil, err
	}
	if m.Hash == hashCustom && opts.Hasher == nil {
		plog.Warningf("store at %s was created with a custom hasher, opening it with xxhash64", root)
	}
	if opts.Compression == db.CompressionAuto {
		opts.Compression = m.Compression
	}
	if err := validCompression(opts.Compression); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(root, entriesDir), dirMode); err != nil {
		return nil, err
	}

	plog.Infof("opened store at %s (created %s, compression=%s)", root, m.Created.Format(time.RFC3339), opts.Compression)
	return newBucketDB(root, opts), nil
}

func withDefaults(opts *Options) *Options {
	if opts == nil {
		return DefaultOptions()
	}
	o := *opts
	if o.FileMode == 0 {
		o.FileMode = defaultFileMode
	}
	return &o
}

func validCompression(c db.Compression) error {
	switch c {
	case db.CompressionNone, db.CompressionZstd:
		return nil
	default:
		return fmt.Errorf("bucket: unknown compression %q", c)
	}
}

func newBucketDB(root string, opts *Options) *bucketImpl {
	return &bucketImpl{
		root:        root,
		dir:         filepath.Join(root, entriesDir),
		ids:         ident.New(opts.Hasher),
		compression: opts.Compression,
		perm:        opts.FileMode,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.IRecordDB)
// --------------------------------------------------------------------------

func (b *bucketImpl) Identify(key []byte) ident.ID {
	return b.ids.Identify(key)
}

func (b *bucketImpl) Path(id ident.ID) string {
	return filepath.Join(b.dir, id.FileName())
}

func (b *bucketImpl) Root() string {
	return b.root
}

func (b *bucketImpl) Read(tok *lockmgr.Token, key []byte) ([]byte, error) {
	records, err := b.Records(tok)
	if err != nil {
		return nil, err
	}
	i := findRecord(records, key)
	if i < 0 {
		return nil, db.ErrNotFound
	}
	return records[i].Value, nil
}

func (b *bucketImpl) Records(tok *lockmgr.Token) ([]db.Record, error) {
	data, err := readLocked(tok)
	if err != nil {
		return nil, err
	}
	records, err := decodeBucket(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tok.Path(), err)
	}
	return records, nil
}

func (b *bucketImpl) Write(tok *lockmgr.Token, key, value []byte) error {
	if tok.Mode() != lockmgr.Exclusive {
		return db.ErrNotExclusive
	}
	records, err := b.Records(tok)
	if err != nil {
		return err
	}

	rec := db.Record{Key: key, Value: value}
	if i := findRecord(records, key); i >= 0 {
		records[i] = rec
	} else {
		if len(records) > 0 {
			plog.Debugf("hash collision in %s, bucket now holds %d records", tok.Path(), len(records)+1)
		}
		records = append(records, rec)
	}
	return b.commit(tok, records)
}

func (b *bucketImpl) Remove(tok *lockmgr.Token, key []byte) error {
	if tok.Mode() != lockmgr.Exclusive {
		return db.ErrNotExclusive
	}
	records, err := b.Records(tok)
	if err != nil {
		return err
	}
	i := findRecord(records, key)
	if i < 0 {
		return db.ErrNotFound
	}
	records = append(records[:i], records[i+1:]...)
	if len(records) == 0 {
		return removeIfLocked(tok)
	}
	return b.commit(tok, records)
}

func (b *bucketImpl) Prune(tok *lockmgr.Token) error {
	if tok.Mode() != lockmgr.Exclusive {
		return db.ErrNotExclusive
	}
	fi, err := tok.File().Stat()
	if err != nil {
		return err
	}
	if fi.Size() != 0 {
		return nil
	}
	return removeIfLocked(tok)
}

func (b *bucketImpl) List() ([]db.Listing, error) {
	var listings []db.Listing
	err := b.scan(func(id ident.ID, records []db.Record, _ int64) {
		for _, r := range records {
			listings = append(listings, db.Listing{ID: id, Key: r.Key})
		}
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (b *bucketImpl) Info() (db.DatabaseInfo, error) {
	info := db.DatabaseInfo{
		Root:        b.root,
		DbType:      db.ImplBucket,
		Compression: b.compression,
	}
	hist := util.NewSizeHistogram()
	var occupancy []float64

	err := b.scan(func(_ ident.ID, records []db.Record, size int64) {
		info.Buckets++
		info.Entries += len(records)
		info.SizeBytes += size
		occupancy = append(occupancy, float64(len(records)))
		for _, r := range records {
			hist.AddSample(len(r.Value))
		}
	})
	if err != nil {
		return info, err
	}

	info.MedianValue = hist.MedianEstimate()
	info.P99Value = hist.GetPercentileEstimate(99)
	info.BucketSpread = util.NewDistributionStats(occupancy)
	return info, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// commit replaces the locked bucket with one holding records
func (b *bucketImpl) commit(tok *lockmgr.Token, records []db.Record) error {
	data, err := encodeBucket(records, b.compression == db.CompressionZstd)
	if err != nil {
		return err
	}
	if err := writeAtomic(tok.Path(), data, b.perm); err != nil {
		return err
	}
	plog.Debugf("committed %s (%d records, %d bytes)", tok.Path(), len(records), len(data))
	return nil
}

// scan decodes every bucket in the entries directory without locking. Files
// that vanish or are empty are skipped. Temp files never parse as identifiers.
func (b *bucketImpl) scan(fn func(id ident.ID, records []db.Record, size int64)) error {
	dirEntries, err := os.ReadDir(b.dir)
	if err != nil {
		return err
	}
	for _, e := range dirEntries {
		id, err := ident.Parse(e.Name())
		if err != nil || !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, e.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		records, err := decodeBucket(data)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		fn(id, records, int64(len(data)))
	}
	return nil
}

// readLocked reads the whole unit through the locked descriptor
func readLocked(tok *lockmgr.Token) ([]byte, error) {
	f := tok.File()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, nil
	}
	data := make([]byte, fi.Size())
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, fi.Size()), data); err != nil {
		return nil, err
	}
	return data, nil
}

// removeIfLocked unlinks the token's path if it still refers to the locked file
func removeIfLocked(tok *lockmgr.Token) error {
	locked, err := tok.File().Stat()
	if err != nil {
		return err
	}
	onDisk, err := os.Stat(tok.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !os.SameFile(locked, onDisk) {
		return nil
	}
	if err := os.Remove(tok.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
