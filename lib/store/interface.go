package store

import (
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Entry is one key-value pair returned by IStore.Entries
type Entry[K, V any] struct {
	Key   K
	Value V
}

// IStore is the generic interface for interacting with a persistent key-value store.
// Every key is guarded by its own lock. Operations on the same key are totally
// ordered, operations on distinct keys never wait for each other.
// All errors returned are of type *Error (nil on success).
type IStore[K, V any] interface {
	// Insert inserts or overwrites the value for a key.
	Insert(key K, value V) (err error)
	// Get returns the value for a key. Returns ErrNotFound if the key does not exist.
	Get(key K) (value V, err error)
	// Alter replaces the value for a key with fn(old). fn is called exactly once,
	// while the key is exclusively locked, so no concurrent update can be lost.
	// Returns ErrNotFound if the key does not exist; fn is not called then.
	Alter(key K, fn func(V) V) (err error)
	// AlterWithDefault is like Alter, but a missing key is altered starting from def.
	AlterWithDefault(key K, def V, fn func(V) V) (err error)
	// Delete removes a key. Returns ErrNotFound if the key does not exist.
	Delete(key K) (err error)
	// Contains returns whether a key exists.
	Contains(key K) (ok bool, err error)
	// GetKeys returns all keys. No locks are held: the result is a snapshot that may
	// miss concurrent inserts and contain keys that are deleted by the time it is used.
	GetKeys() (keys []K, err error)
	// Len returns the number of keys in a GetKeys snapshot.
	Len() (n int, err error)
	// Entries returns all key-value pairs. Each value is read under its own lock,
	// keys deleted between listing and reading are skipped.
	Entries() (entries []Entry[K, V], err error)
	// Clear deletes every key of a GetKeys snapshot.
	Clear() (err error)
	// Clone returns a new handle to the same store. Cloning copies no data;
	// the clone shares the store and its locks with the original.
	Clone() IStore[K, V]
	// Root returns the directory of the store.
	Root() string
	// Info returns statistics about the store.
	// It is a lock-free snapshot and may be outdated when returned.
	Info() (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and the underlying cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fsKV error (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("fsKV error (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code. This makes the
// sentinel errors below usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error with the given code, message and cause.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrAlreadyExists   = NewError(RetCAlreadyExists, "store already exists")
	ErrNotFound        = NewError(RetCNotFound, "not found")
	ErrIoFailure       = NewError(RetCIoFailure, "i/o failure")
	ErrEncodingFailure = NewError(RetCEncodingFailure, "encoding failure")
	ErrLockFailure     = NewError(RetCLockFailure, "lock failure")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation (e.g. invalid options).
	RetCAlreadyExists                   // 3: A store already exists at the root.
	RetCNotFound                        // 4: The key or store does not exist.
	RetCIoFailure                       // 5: The filesystem reported an error.
	RetCEncodingFailure                 // 6: A key, value or file could not be (de)serialized.
	RetCLockFailure                     // 7: The lock primitive failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCAlreadyExists:
		return "AlreadyExists"
	case RetCNotFound:
		return "NotFound"
	case RetCIoFailure:
		return "IoFailure"
	case RetCEncodingFailure:
		return "EncodingFailure"
	case RetCLockFailure:
		return "LockFailure"
	default:
		return "Unknown"
	}
}
