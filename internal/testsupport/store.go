package testsupport

import (
	"context"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/job"
	"conveyor/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a freshly created job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, deviceID string) *job.Job {
	t.Helper()

	j := job.New("/models/test.stl", "MiracleGrue", "MakerBotDriver", deviceID)
	if err := store.Insert(context.Background(), j); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return j
}
