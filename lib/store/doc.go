// Package store provides the high-level interface of fsKV: a persistent,
// generic key-value store that keeps the data of each key in its own file and
// guards every key with its own filesystem lock.
//
// The package focuses on:
//   - A unified interface (IStore) for typed key-value operations
//   - A structured error type whose codes callers can match with errors.Is
//   - Options with pluggable key and value codecs (see lib/codec)
//
// Key Components:
//
//   - IStore Interface: Insert, Get, Alter and friends. Get takes a shared lock on
//     the key, every mutating call an exclusive one. Alter runs its transform
//     while holding the exclusive lock, so concurrent alters of one key never
//     lose an update. GetKeys, Len, Info and the listing phase of Entries and
//     Clear take no locks and return snapshots.
//
//   - Error System: every error is an *Error with a RetCode. The sentinels
//     ErrAlreadyExists, ErrNotFound, ErrIoFailure, ErrEncodingFailure and
//     ErrLockFailure match any *Error of the same code:
//
//     if errors.Is(err, store.ErrNotFound) { ... }
//
//     The underlying cause stays reachable through errors.Unwrap.
//
// Implementations:
//
//   - Filesystem Store (fstore): one bucket file per key below a root
//     directory, locked with flock(2) or LockFileEx. Any number of handles,
//     goroutines and processes may share a root.
//     Available in the "github.com/ValentinKolb/fsKV/lib/store/fstore" package.
package store
