package testing

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
)

// RunRecordDBBenchmarks runs all benchmarks for a record store implementation
func RunRecordDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Write", func(b *testing.B) {
		benchmarkWrite(b, newDB(b, factory))
	})

	b.Run("WriteExisting", func(b *testing.B) {
		benchmarkWriteExisting(b, newDB(b, factory))
	})

	b.Run("Read", func(b *testing.B) {
		benchmarkRead(b, newDB(b, factory))
	})

	b.Run("List", func(b *testing.B) {
		benchmarkList(b, newDB(b, factory))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Parallel benchmarking for Write with new keys
func benchmarkWrite(b *testing.B, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if err := putKey(database, locks, fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i))); err != nil {
				b.Errorf("Failed to write: %v", err)
			}
		}
	})
}

// Parallel benchmarking for Write with existing keys
func benchmarkWriteExisting(b *testing.B, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)

	// Prepare data
	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		writeKey(b, database, locks, fmt.Sprintf("test-key-%d", i), []byte("initial"))
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if err := putKey(database, locks, fmt.Sprintf("test-key-%d", i%int64(numKeys)), []byte(fmt.Sprintf("test-value-%d", i))); err != nil {
				b.Errorf("Failed to write: %v", err)
			}
		}
	})
}

// Parallel benchmarking for Read
func benchmarkRead(b *testing.B, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)

	// Prepare data
	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		writeKey(b, database, locks, fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)))
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if _, err := readKey(database, locks, fmt.Sprintf("test-key-%d", i%int64(numKeys))); err != nil {
				b.Errorf("Failed to read: %v", err)
			}
		}
	})
}

// Benchmark for List over a populated store
func benchmarkList(b *testing.B, database db.IRecordDB) {
	locks := lockmgr.NewLockManager(0)
	for i := 0; i < 1000; i++ {
		writeKey(b, database, locks, fmt.Sprintf("test-key-%d", i), []byte("value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := database.List(); err != nil {
			b.Fatalf("Failed to list: %v", err)
		}
	}
}
