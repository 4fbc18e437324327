package fstore

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/codec"
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/db/engines/bucket"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
	"github.com/ValentinKolb/fsKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var plog = logger.GetLogger("fstore")

type storeImpl[K, V any] struct {
	db     db.IRecordDB
	locks  lockmgr.ILockManager
	keys   codec.ICodec[K]
	values codec.ICodec[V]
}

// OpenNew creates a new, empty store at root and returns a handle to it.
// The directory is created if it does not exist. Returns store.ErrAlreadyExists
// if root already holds a store or any other file, unless opts.Overwrite is set,
// in which case everything below root is removed first.
// nil opts means store.DefaultOptions.
func OpenNew[K, V any](root string, opts *store.Options[K, V]) (store.IStore[K, V], error) {
	opts, err := withDefaults(opts)
	if err != nil {
		return nil, err
	}
	database, err := bucket.Create(root, &bucket.Options{
		Compression: opts.Compression,
		FileMode:    opts.FileMode,
		Hasher:      opts.Hasher,
		Overwrite:   opts.Overwrite,
	})
	if err != nil {
		return nil, toStoreError(fmt.Sprintf("create store at %s", root), err)
	}
	return newStore(database, opts), nil
}

// Open returns a handle to the existing store at root.
// Returns store.ErrNotFound if there is no store and store.ErrEncodingFailure
// if its metadata is damaged. The key and value codecs must match the ones
// the store was written with.
func Open[K, V any](root string, opts *store.Options[K, V]) (store.IStore[K, V], error) {
	opts, err := withDefaults(opts)
	if err != nil {
		return nil, err
	}
	database, err := bucket.Open(root, &bucket.Options{
		Compression: opts.Compression,
		FileMode:    opts.FileMode,
		Hasher:      opts.Hasher,
	})
	if err != nil {
		return nil, toStoreError(fmt.Sprintf("open store at %s", root), err)
	}
	return newStore(database, opts), nil
}

func withDefaults[K, V any](opts *store.Options[K, V]) (*store.Options[K, V], error) {
	def := store.DefaultOptions[K, V]()
	if opts == nil {
		return def, nil
	}
	o := *opts
	if o.KeyCodec == nil {
		o.KeyCodec = def.KeyCodec
	}
	if o.ValueCodec == nil {
		o.ValueCodec = def.ValueCodec
	}
	if o.FileMode == 0 {
		o.FileMode = def.FileMode
	}
	switch o.Compression {
	case db.CompressionAuto, db.CompressionNone, db.CompressionZstd:
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown compression %q", o.Compression))
	}
	return &o, nil
}

func newStore[K, V any](database db.IRecordDB, opts *store.Options[K, V]) *storeImpl[K, V] {
	return &storeImpl[K, V]{
		db:     database,
		locks:  lockmgr.NewLockManager(opts.FileMode),
		keys:   opts.KeyCodec,
		values: opts.ValueCodec,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl[K, V]) Insert(key K, value V) (err error) {
	defer observe(opInsert, time.Now(), &err)

	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	v, err := s.values.Encode(value)
	if err != nil {
		return store.WrapError(store.RetCEncodingFailure, "encode value", err)
	}

	tok, err := s.lockExclusive(k)
	if err != nil {
		return err
	}
	defer s.releaseExclusive(tok, &err)

	return toStoreError("insert", s.db.Write(tok, k, v))
}

func (s *storeImpl[K, V]) Get(key K) (value V, err error) {
	defer observe(opGet, time.Now(), &err)

	k, err := s.encodeKey(key)
	if err != nil {
		return value, err
	}

	tok, err := s.lockShared(k)
	if err != nil {
		return value, err
	}
	defer release(tok, &err)

	raw, err := s.db.Read(tok, k)
	if err != nil {
		return value, toStoreError("get", err)
	}
	return s.decodeValue(raw)
}

func (s *storeImpl[K, V]) Alter(key K, fn func(V) V) (err error) {
	defer observe(opAlter, time.Now(), &err)
	return s.alter(key, fn, nil)
}

func (s *storeImpl[K, V]) AlterWithDefault(key K, def V, fn func(V) V) (err error) {
	defer observe(opAlter, time.Now(), &err)
	return s.alter(key, fn, &def)
}

// alter runs the read-transform-write cycle under one exclusive lock.
// A nil def makes a missing key an error.
func (s *storeImpl[K, V]) alter(key K, fn func(V) V, def *V) (err error) {
	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}

	tok, err := s.lockExclusive(k)
	if err != nil {
		return err
	}
	defer s.releaseExclusive(tok, &err)

	var old V
	raw, err := s.db.Read(tok, k)
	switch {
	case errors.Is(err, db.ErrNotFound) && def != nil:
		old = *def
	case err != nil:
		return toStoreError("alter", err)
	default:
		if old, err = s.decodeValue(raw); err != nil {
			return err
		}
	}

	v, err := s.values.Encode(fn(old))
	if err != nil {
		return store.WrapError(store.RetCEncodingFailure, "encode value", err)
	}
	return toStoreError("alter", s.db.Write(tok, k, v))
}

func (s *storeImpl[K, V]) Delete(key K) (err error) {
	defer observe(opDelete, time.Now(), &err)

	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}

	tok, err := s.lockExclusive(k)
	if err != nil {
		return err
	}
	defer s.releaseExclusive(tok, &err)

	return toStoreError("delete", s.db.Remove(tok, k))
}

func (s *storeImpl[K, V]) Contains(key K) (ok bool, err error) {
	defer observe(opContains, time.Now(), &err)

	k, err := s.encodeKey(key)
	if err != nil {
		return false, err
	}

	tok, err := s.lockShared(k)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer release(tok, &err)

	_, err = s.db.Read(tok, k)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, toStoreError("contains", err)
	}
	return true, nil
}

func (s *storeImpl[K, V]) GetKeys() (keys []K, err error) {
	defer observe(opGetKeys, time.Now(), &err)

	listings, err := s.db.List()
	if err != nil {
		return nil, toStoreError("list keys", err)
	}
	keys = make([]K, 0, len(listings))
	for _, l := range listings {
		key, err := s.keys.Decode(l.Key)
		if err != nil {
			return nil, store.WrapError(store.RetCEncodingFailure, fmt.Sprintf("decode key of bucket %s", l.ID), err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *storeImpl[K, V]) Len() (n int, err error) {
	defer observe(opLen, time.Now(), &err)

	listings, err := s.db.List()
	if err != nil {
		return 0, toStoreError("list keys", err)
	}
	return len(listings), nil
}

func (s *storeImpl[K, V]) Entries() ([]store.Entry[K, V], error) {
	keys, err := s.GetKeys()
	if err != nil {
		return nil, err
	}
	entries := make([]store.Entry[K, V], 0, len(keys))
	for _, k := range keys {
		v, err := s.Get(k)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, store.Entry[K, V]{Key: k, Value: v})
	}
	return entries, nil
}

func (s *storeImpl[K, V]) Clear() error {
	keys, err := s.GetKeys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(k); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	plog.Debugf("cleared %d keys in %s", len(keys), s.db.Root())
	return nil
}

func (s *storeImpl[K, V]) Clone() store.IStore[K, V] {
	c := *s
	return &c
}

func (s *storeImpl[K, V]) Root() string {
	return s.db.Root()
}

func (s *storeImpl[K, V]) Info() (db.DatabaseInfo, error) {
	info, err := s.db.Info()
	if err != nil {
		return info, toStoreError("info", err)
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (s *storeImpl[K, V]) encodeKey(key K) ([]byte, error) {
	k, err := s.keys.Encode(key)
	if err != nil {
		return nil, store.WrapError(store.RetCEncodingFailure, "encode key", err)
	}
	return k, nil
}

func (s *storeImpl[K, V]) decodeValue(raw []byte) (V, error) {
	v, err := s.values.Decode(raw)
	if err != nil {
		return v, store.WrapError(store.RetCEncodingFailure, "decode value", err)
	}
	return v, nil
}

func (s *storeImpl[K, V]) lockShared(k []byte) (*lockmgr.Token, error) {
	tok, err := s.locks.AcquireShared(s.db.Path(s.db.Identify(k)))
	return tok, toStoreError("acquire shared lock", err)
}

func (s *storeImpl[K, V]) lockExclusive(k []byte) (*lockmgr.Token, error) {
	tok, err := s.locks.AcquireExclusive(s.db.Path(s.db.Identify(k)))
	return tok, toStoreError("acquire exclusive lock", err)
}

// releaseExclusive removes a unit the operation created but did not write,
// then releases the lock. Runs on every path, including panics.
func (s *storeImpl[K, V]) releaseExclusive(tok *lockmgr.Token, err *error) {
	if pruneErr := s.db.Prune(tok); pruneErr != nil {
		plog.Warningf("failed to prune %s: %v", tok.Path(), pruneErr)
	}
	release(tok, err)
}

// release releases tok and reports a failure through err unless the
// operation already failed
func release(tok *lockmgr.Token, err *error) {
	if relErr := tok.Release(); relErr != nil && *err == nil {
		*err = toStoreError("release lock", relErr)
	}
}

// toStoreError maps errors of the lower layers to a *store.Error
func toStoreError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var se *store.Error
	if errors.As(err, &se) {
		return se
	}

	code := store.RetCIoFailure
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, lockmgr.ErrNotFound):
		code = store.RetCNotFound
	case errors.Is(err, db.ErrAlreadyExists):
		code = store.RetCAlreadyExists
	case errors.Is(err, db.ErrCorrupt):
		code = store.RetCEncodingFailure
	case errors.Is(err, lockmgr.ErrLockFailed):
		code = store.RetCLockFailure
	case errors.Is(err, db.ErrNotExclusive):
		code = store.RetCInternalError
	}
	return store.WrapError(code, msg, err)
}
