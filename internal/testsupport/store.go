package testsupport

import (
	"context"
	"testing"

	"storydub/internal/cachestore"
	"storydub/internal/config"
	"storydub/internal/jobs"
)

// MustOpenJobStore opens the job database for tests and registers cleanup.
func MustOpenJobStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.OpenStore(context.Background(), cfg.JobsDBPath())
	if err != nil {
		t.Fatalf("jobs.OpenStore: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCache opens the artifact cache for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *cachestore.Store {
	t.Helper()

	store, err := cachestore.Open(context.Background(), cfg.Paths.CacheDir)
	if err != nil {
		t.Fatalf("cachestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
