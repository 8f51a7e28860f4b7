package job_test

import (
	"testing"
	"time"

	"conveyor/internal/job"
)

func TestCanTransitionForwardPath(t *testing.T) {
	path := []job.State{
		job.StateCreated, job.StateSlicing, job.StateQueued,
		job.StatePrinting, job.StateCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !job.CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %q -> %q to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransitionFailureFromAnyNonTerminal(t *testing.T) {
	nonTerminal := []job.State{
		job.StateCreated, job.StateSlicing, job.StateQueued, job.StatePrinting,
	}
	for _, from := range nonTerminal {
		if !job.CanTransition(from, job.StateFailed) {
			t.Fatalf("expected %q -> failed to be legal", from)
		}
		if !job.CanTransition(from, job.StateCancelled) {
			t.Fatalf("expected %q -> cancelled to be legal", from)
		}
	}
}

func TestCanTransitionRejectsIllegalEdges(t *testing.T) {
	cases := []struct{ from, to job.State }{
		{job.StateCreated, job.StatePrinting},
		{job.StateCreated, job.StateQueued},
		{job.StateSlicing, job.StatePrinting},
		{job.StateQueued, job.StateCompleted},
		{job.StatePrinting, job.StateCreated},
		{job.StateCompleted, job.StateFailed},
		{job.StateFailed, job.StateSlicing},
		{job.StateCancelled, job.StateCancelled},
		{job.StateQueued, job.StateSlicing},
		{"bogus", job.StateSlicing},
	}
	for _, tc := range cases {
		if job.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be illegal", tc.from, tc.to)
		}
	}
}

func TestNewJob(t *testing.T) {
	first := job.New("/models/widget.stl", "MiracleGrue", "MakerBotDriver", "dev1")
	second := job.New("/models/widget.stl", "MiracleGrue", "MakerBotDriver", "dev1")

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected unique job IDs, got %q and %q", first.ID, second.ID)
	}
	if first.State != job.StateCreated {
		t.Fatalf("expected created state, got %q", first.State)
	}
	if first.CreatedAt.IsZero() || !first.CreatedAt.Equal(first.UpdatedAt) {
		t.Fatal("expected creation timestamps to be set and equal")
	}
}

func TestApplyAndValidateHistory(t *testing.T) {
	j := job.New("/models/widget.stl", "MiracleGrue", "MakerBotDriver", "dev1")
	now := time.Now().UTC()

	for _, to := range []job.State{job.StateSlicing, job.StateQueued, job.StatePrinting, job.StateCompleted} {
		j.Apply(to, "", now)
		now = now.Add(time.Second)
	}
	if err := j.ValidateHistory(); err != nil {
		t.Fatalf("ValidateHistory failed: %v", err)
	}
	if len(j.History) != 4 {
		t.Fatalf("unexpected history length: %d", len(j.History))
	}
	if j.History[0].From != job.StateCreated || j.History[3].To != job.StateCompleted {
		t.Fatalf("unexpected history endpoints: %+v", j.History)
	}
}

func TestValidateHistoryDetectsCorruption(t *testing.T) {
	j := job.New("/models/widget.stl", "MiracleGrue", "MakerBotDriver", "dev1")
	now := time.Now().UTC()
	j.Apply(job.StateSlicing, "", now)
	// Corrupt: skip queued.
	j.Apply(job.StatePrinting, "", now.Add(time.Second))
	if err := j.ValidateHistory(); err == nil {
		t.Fatal("expected history validation to fail")
	}
}

func TestProgressFraction(t *testing.T) {
	p := job.Progress{CurrentLine: 50, TotalLines: 200}
	if got := p.Fraction(job.StatePrinting); got != 0.25 {
		t.Fatalf("unexpected fraction: %v", got)
	}
	if got := (job.Progress{}).Fraction(job.StatePrinting); got != 0 {
		t.Fatalf("expected 0 fraction without totals, got %v", got)
	}
	// Completed jobs report full progress regardless of counters.
	if got := (job.Progress{}).Fraction(job.StateCompleted); got != 1.0 {
		t.Fatalf("expected 1.0 for completed, got %v", got)
	}
	over := job.Progress{CurrentLine: 300, TotalLines: 200}
	if got := over.Fraction(job.StatePrinting); got != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", got)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []job.State{job.StateCompleted, job.StateFailed, job.StateCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	for _, s := range []job.State{job.StateCreated, job.StateSlicing, job.StateQueued, job.StatePrinting} {
		if s.Terminal() {
			t.Fatalf("expected %q to be non-terminal", s)
		}
	}
}
