package admin

import (
	"errors"
	"github.com/ValentinKolb/fsKV/cmd/util"
	"github.com/ValentinKolb/fsKV/lib/store"
	"github.com/spf13/viper"
	"path/filepath"
	"testing"
)

func setConfig(t *testing.T, root string, overwrite bool) {
	t.Helper()
	viper.Set("root", root)
	viper.Set("codec", "json")
	viper.Set("overwrite", overwrite)
	t.Cleanup(viper.Reset)
}

func TestInitOverwrite(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")

	setConfig(t, root, false)
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	s, err := util.GetConfig().OpenStore()
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := s.Insert("k", "v"); err != nil {
		t.Fatal(err)
	}

	if err := runInit(nil, nil); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("Expected AlreadyExists for a second init, got %v", err)
	}

	setConfig(t, root, true)
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("init --overwrite failed: %v", err)
	}
	s, err = util.GetConfig().OpenStore()
	if err != nil {
		t.Fatal(err)
	}
	if n, err := s.Len(); err != nil || n != 0 {
		t.Errorf("Expected an empty store after init --overwrite, got %d (%v)", n, err)
	}
}

func TestStats(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")

	setConfig(t, root, false)
	if err := runStats(nil, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected NotFound without a store, got %v", err)
	}

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	s, err := util.GetConfig().OpenStore()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Insert("k", "v"); err != nil {
		t.Fatal(err)
	}

	for _, withMetrics := range []bool{false, true} {
		viper.Set("metrics", withMetrics)
		if err := runStats(nil, nil); err != nil {
			t.Errorf("stats (metrics=%t) failed: %v", withMetrics, err)
		}
	}
}
