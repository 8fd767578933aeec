package session

import (
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/miru/internal/models"
)

func TestStore_GetOrCreate(t *testing.T) {
	store := NewStore(nil)

	id, created := store.GetOrCreate("")
	if !created || id == "" {
		t.Fatalf("expected new session, got id=%q created=%v", id, created)
	}

	same, created := store.GetOrCreate(id)
	if created || same != id {
		t.Errorf("known id should be returned as-is, got %q created=%v", same, created)
	}

	other, created := store.GetOrCreate("never-seen")
	if !created || other == "never-seen" {
		t.Errorf("unknown id should mint a fresh one, got %q created=%v", other, created)
	}
}

func TestStore_RecordIterationIndices(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")

	for want := 1; want <= 3; want++ {
		got, err := store.RecordIteration(id, []float32{1, 0}, SourceText, []string{"a"}, nil, nil, "")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("iteration index: got %d, want %d", got, want)
		}
	}

	e, _ := store.entry(id)
	for i, it := range e.sess.Iterations {
		if it.Index != i+1 {
			t.Errorf("iterations[%d].Index = %d", i, it.Index)
		}
	}
}

func TestStore_RecordIterationUnknownSession(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RecordIteration("ghost", []float32{1}, SourceText, nil, nil, nil, "")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RecordIterationCopiesVector(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")

	query := []float32{1, 0}
	if _, err := store.RecordIteration(id, query, SourceText, nil, nil, nil, ""); err != nil {
		t.Fatal(err)
	}
	query[0] = -42

	current, _, err := store.CurrentQueryVector(id)
	if err != nil {
		t.Fatal(err)
	}
	if current[0] != 1 {
		t.Errorf("stored vector aliases caller memory: %v", current)
	}
}

func TestStore_BackfillFeedback(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")

	// No iterations: no-op, no error.
	if err := store.BackfillFeedback(id, []string{"p"}, nil, ""); err != nil {
		t.Fatal(err)
	}

	_, _ = store.RecordIteration(id, []float32{1, 0}, SourceText, []string{"a", "b"}, nil, nil, "")
	if err := store.BackfillFeedback(id, []string{"a"}, []string{"b"}, "but in navy"); err != nil {
		t.Fatal(err)
	}

	e, _ := store.entry(id)
	if n := len(e.sess.Iterations); n != 1 {
		t.Fatalf("backfill changed iteration count: %d", n)
	}
	last := e.sess.Iterations[0]
	if len(last.PositiveIDs) != 1 || last.PositiveIDs[0] != "a" {
		t.Errorf("positive backfill: %v", last.PositiveIDs)
	}
	if last.TextFeedback != "but in navy" {
		t.Errorf("text backfill: %q", last.TextFeedback)
	}
}

func TestStore_LastResultIDs(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")
	_, _ = store.RecordIteration(id, []float32{1, 0}, SourceText, []string{"a", "b", "c"}, nil, nil, "")

	got, err := store.LastResultIDs(id, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}

	got, _ = store.LastResultIDs(id, 10)
	if len(got) != 3 {
		t.Errorf("m beyond result count should return all: %v", got)
	}
}

func TestStore_Info(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")
	_, _ = store.RecordIteration(id, []float32{1, 0}, SourceText, []string{"a"}, nil, nil, "")
	_, _ = store.RecordIteration(id, []float32{0, 1}, SourceFeedback, []string{"b"}, []string{"a"}, []string{"x"}, "")

	info, err := store.Info(id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Iterations != 2 || info.LastSource != "feedback" {
		t.Errorf("info: %+v", info)
	}
	if info.FeedbackCounts.Positive != 1 || info.FeedbackCounts.Negative != 1 {
		t.Errorf("feedback counts: %+v", info.FeedbackCounts)
	}
}

func TestStore_ReapExpired(t *testing.T) {
	store := NewStore(nil)
	a, _ := store.GetOrCreate("")
	b, _ := store.GetOrCreate("")

	// maxAge 0 expires everything immediately.
	if reaped := store.ReapExpired(0); reaped != 2 {
		t.Fatalf("reaped %d, want 2", reaped)
	}
	for _, id := range []string{a, b} {
		if _, err := store.Info(id); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("session %s should be gone, got %v", id, err)
		}
	}
}

func TestStore_ReapKeepsFreshSessions(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")
	if reaped := store.ReapExpired(24 * time.Hour); reaped != 0 {
		t.Fatalf("reaped %d fresh sessions", reaped)
	}
	if _, err := store.Info(id); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
}

func TestStore_ProjectTrajectory(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")

	// Empty session: no points.
	points, refs, err := store.ProjectTrajectory(id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 0 || len(refs) != 0 {
		t.Errorf("empty session: %v %v", points, refs)
	}

	// One iteration: single origin point, reducer not invoked.
	_, _ = store.RecordIteration(id, []float32{1, 0, 0}, SourceText, nil, nil, nil, "")
	points, _, err = store.ProjectTrajectory(id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 || points[0].X != 0 || points[0].Y != 0 || points[0].Iteration != 1 {
		t.Errorf("single-iteration shortcut: %+v", points)
	}

	// Two iterations: projected in order.
	_, _ = store.RecordIteration(id, []float32{0, 1, 0}, SourceFeedback, nil, nil, nil, "")
	points, _, err = store.ProjectTrajectory(id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 || points[0].Iteration != 1 || points[1].Iteration != 2 {
		t.Errorf("trajectory: %+v", points)
	}
}

func TestStore_ProjectTrajectoryWithReference(t *testing.T) {
	store := NewStore(nil)
	id, _ := store.GetOrCreate("")
	_, _ = store.RecordIteration(id, []float32{1, 0, 0}, SourceText, nil, nil, nil, "")
	_, _ = store.RecordIteration(id, []float32{0, 1, 0}, SourceFeedback, nil, nil, nil, "")

	reference := [][]float32{{0, 0, 1}, {0.5, 0.5, 0}}
	points, refs, err := store.ProjectTrajectory(id, reference)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Errorf("query points: %d", len(points))
	}
	if len(refs) != 2 {
		t.Errorf("reference points: %d", len(refs))
	}
}

func TestStore_ProjectTrajectoryUnknownSession(t *testing.T) {
	store := NewStore(nil)
	if _, _, err := store.ProjectTrajectory("ghost", nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
