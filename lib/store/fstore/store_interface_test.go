package fstore

import (
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/store"
	storetesting "github.com/ValentinKolb/fsKV/lib/store/testing"
	"testing"
)

func Test(t *testing.T) {
	storetesting.RunStoreTests(t, "FStore", func(root string) (store.IStore[string, int], error) {
		return OpenNew[string, int](root, nil)
	})

	storetesting.RunStoreTests(t, "FStoreZstd", func(root string) (store.IStore[string, int], error) {
		return OpenNew[string, int](root, &store.Options[string, int]{Compression: db.CompressionZstd})
	})
}

func Benchmark(b *testing.B) {
	storetesting.RunStoreBenchmarks(b, "FStore", func(root string) (store.IStore[string, int], error) {
		return OpenNew[string, int](root, nil)
	})
}
