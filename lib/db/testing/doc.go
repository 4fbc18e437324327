// Package testing provides standardised tests and benchmarks for
// record stores that satisfy the db.IRecordDB interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the IRecordDB contract
//     (locked reads and writes, removal, pruning, lock-free listing)
//   - benchmark: Performance tests for the locked read and write paths
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(root string) (db.IRecordDB, error) {
//		return NewMyRecordDB(root)
//	}
//
//	// Running the standard test suite
//	dbtesting.RunRecordDBTests(t, "MyRecordDB", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunRecordDBBenchmarks(b, "MyRecordDB", factory)
package testing
