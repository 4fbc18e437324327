package testing

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/fsKV/lib/store"
)

// RunStoreBenchmarks runs all benchmarks for an IStore implementation
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {

	b.Run("Insert", func(b *testing.B) {
		benchmarkInsert(b, newStore(b, factory))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, newStore(b, factory))
	})

	b.Run("AlterSameKey", func(b *testing.B) {
		benchmarkAlterSameKey(b, newStore(b, factory))
	})

	b.Run("AlterDisjointKeys", func(b *testing.B) {
		benchmarkAlterDisjoint(b, newStore(b, factory))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Parallel benchmarking for Insert with new keys
func benchmarkInsert(b *testing.B, s store.IStore[string, int]) {
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if err := s.Insert(fmt.Sprintf("test-key-%d", i), int(i)); err != nil {
				b.Errorf("Insert failed: %v", err)
			}
		}
	})
}

// Parallel benchmarking for Get
func benchmarkGet(b *testing.B, s store.IStore[string, int]) {
	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		mustInsert(b, s, fmt.Sprintf("test-key-%d", i), i)
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if _, err := s.Get(fmt.Sprintf("test-key-%d", i%int64(numKeys))); err != nil {
				b.Errorf("Get failed: %v", err)
			}
		}
	})
}

// Parallel benchmarking for Alter on a single contended key
func benchmarkAlterSameKey(b *testing.B, s store.IStore[string, int]) {
	mustInsert(b, s, "counter", 0)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := s.Alter("counter", inc); err != nil {
				b.Errorf("Alter failed: %v", err)
			}
		}
	})
}

// Parallel benchmarking for Alter where every goroutine owns its key
func benchmarkAlterDisjoint(b *testing.B, s store.IStore[string, int]) {
	var worker atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		key := fmt.Sprintf("worker-%d", worker.Add(1))
		for pb.Next() {
			if err := s.AlterWithDefault(key, 0, inc); err != nil {
				b.Errorf("Alter failed: %v", err)
			}
		}
	})
}
