// Package testing provides a conformance suite and benchmarks for
// implementations of store.IStore.
//
// The suite works on an IStore[string, int] and covers round trips, overwrites,
// missing keys, alter atomicity under concurrency, key enumeration and handle
// cloning, plus the convenience operations (Delete, AlterWithDefault, Contains,
// Len, Entries, Clear).
//
// Example usage:
//
//	factory := func(root string) (store.IStore[string, int], error) {
//		return fstore.OpenNew[string, int](root, nil)
//	}
//	storetesting.RunStoreTests(t, "FStore", factory)
//	storetesting.RunStoreBenchmarks(b, "FStore", factory)
package testing
