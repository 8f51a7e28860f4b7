package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"conveyor/internal/job"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "conveyor.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertJob(t *testing.T, store *queue.Store, device string) *job.Job {
	t.Helper()
	j := job.New("/models/widget.stl", "MiracleGrue", "MakerBotDriver", device)
	if err := store.Insert(context.Background(), j); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return j
}

func TestInsertAndGet(t *testing.T) {
	store := openStore(t)
	j := insertJob(t, store, "dev1")

	loaded, err := store.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.ModelPath != j.ModelPath || loaded.State != job.StateCreated {
		t.Fatalf("unexpected job: %+v", loaded)
	}
	if loaded.DeviceID != "dev1" || loaded.SlicerProfile != "MiracleGrue" {
		t.Fatalf("unexpected job fields: %+v", loaded)
	}
}

func TestGetUnknownJob(t *testing.T) {
	store := openStore(t)
	if _, err := store.Get(context.Background(), "no-such-id"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionRecordsEventAndHistory(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	j := insertJob(t, store, "dev1")

	updated, event, err := store.Transition(ctx, j.ID, job.StateSlicing, "slicing started")
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if updated.State != job.StateSlicing {
		t.Fatalf("unexpected state: %q", updated.State)
	}
	if event.OldState != job.StateCreated || event.NewState != job.StateSlicing {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Seq == 0 {
		t.Fatal("expected assigned event sequence")
	}

	loaded, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(loaded.History) != 1 || loaded.History[0].To != job.StateSlicing {
		t.Fatalf("unexpected history: %+v", loaded.History)
	}
	if err := loaded.ValidateHistory(); err != nil {
		t.Fatalf("persisted history invalid: %v", err)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	j := insertJob(t, store, "dev1")

	if _, _, err := store.Transition(ctx, j.ID, job.StatePrinting, ""); !errors.Is(err, services.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	// The job must be untouched after a rejected transition.
	loaded, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != job.StateCreated || len(loaded.History) != 0 {
		t.Fatalf("job mutated by rejected transition: %+v", loaded)
	}
}

func TestTransitionUnknownJob(t *testing.T) {
	store := openStore(t)
	if _, _, err := store.Transition(context.Background(), "missing", job.StateSlicing, ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionTerminalRecordsErrorDetail(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	j := insertJob(t, store, "dev1")

	if _, _, err := store.Transition(ctx, j.ID, job.StateFailed, "slicer exited 1"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	loaded, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.ErrorDetail != "slicer exited 1" {
		t.Fatalf("unexpected error detail: %q", loaded.ErrorDetail)
	}
	if _, _, err := store.Transition(ctx, j.ID, job.StateCancelled, ""); !errors.Is(err, services.ErrIllegalTransition) {
		t.Fatalf("expected terminal job to reject transitions, got %v", err)
	}
}

func TestEventsSinceCursor(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	j := insertJob(t, store, "dev1")

	for _, to := range []job.State{job.StateSlicing, job.StateQueued, job.StatePrinting, job.StateCompleted} {
		if _, _, err := store.Transition(ctx, j.ID, to, ""); err != nil {
			t.Fatalf("Transition to %q failed: %v", to, err)
		}
	}

	events, err := store.EventsSince(ctx, 0, 10)
	if err != nil {
		t.Fatalf("EventsSince failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("events out of order: %+v", events)
		}
	}

	tail, err := store.EventsSince(ctx, events[1].Seq, 10)
	if err != nil {
		t.Fatalf("EventsSince failed: %v", err)
	}
	if len(tail) != 2 || tail[0].NewState != job.StatePrinting {
		t.Fatalf("unexpected tail: %+v", tail)
	}

	last, err := store.LastEventSeq(ctx)
	if err != nil {
		t.Fatalf("LastEventSeq failed: %v", err)
	}
	if last != events[3].Seq {
		t.Fatalf("unexpected last seq: %d want %d", last, events[3].Seq)
	}
}

func TestUpdateProgress(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	j := insertJob(t, store, "dev1")

	if err := store.UpdateProgress(ctx, j.ID, 50, 200); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	loaded, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Progress.CurrentLine != 50 || loaded.Progress.TotalLines != 200 {
		t.Fatalf("unexpected progress: %+v", loaded.Progress)
	}
	if err := store.UpdateProgress(ctx, "missing", 1, 2); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailNonTerminal(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	active := insertJob(t, store, "dev1")
	done := insertJob(t, store, "dev2")
	for _, to := range []job.State{job.StateSlicing, job.StateQueued, job.StatePrinting, job.StateCompleted} {
		if _, _, err := store.Transition(ctx, done.ID, to, ""); err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
	}

	failed, err := store.FailNonTerminal(ctx, "daemon stopped")
	if err != nil {
		t.Fatalf("FailNonTerminal failed: %v", err)
	}
	if failed != 1 {
		t.Fatalf("unexpected failed count: %d", failed)
	}

	loaded, err := store.Get(ctx, active.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != job.StateFailed || loaded.ErrorDetail != "daemon stopped" {
		t.Fatalf("unexpected job after restart fail: %+v", loaded)
	}
	completed, err := store.Get(ctx, done.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if completed.State != job.StateCompleted {
		t.Fatalf("completed job disturbed: %+v", completed)
	}
}

func TestStats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	insertJob(t, store, "dev1")
	second := insertJob(t, store, "dev2")
	if _, _, err := store.Transition(ctx, second.ID, job.StateSlicing, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("unexpected total: %d", stats.Total)
	}
	if stats.ByState[job.StateCreated] != 1 || stats.ByState[job.StateSlicing] != 1 {
		t.Fatalf("unexpected state counts: %+v", stats.ByState)
	}
}
