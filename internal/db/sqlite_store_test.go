package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

func newSQLiteFixture(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := NewSQLiteConnection(t.TempDir())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	s, err := NewSQLiteStore(conn)
	if err != nil {
		t.Fatalf("init sqlite store: %v", err)
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func samplePulse(id string) *models.Pulse {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	return &models.Pulse{
		ID:              id,
		OwnerID:         "1",
		Name:            "weekly pulse",
		CreatedAt:       now,
		RecipientEmails: []string{"a@x.com", "b@x.com"},
		SentEmails:      []string{},
		PendingEmails:   []string{"a@x.com", "b@x.com"},
		CustomQuestions: []string{"How is the pace?"},
		LastChecked:     now,
	}
}

func TestSQLitePulseRoundTrip(t *testing.T) {
	s := newSQLiteFixture(t)
	ctx := context.Background()

	if err := s.CreatePulse(ctx, samplePulse("p1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetPulse(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "weekly pulse" || len(got.RecipientEmails) != 2 {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if len(got.PendingEmails) != 2 || len(got.SentEmails) != 0 {
		t.Fatalf("partition lost: %+v", got)
	}
	if len(got.CustomQuestions) != 1 {
		t.Fatalf("questions lost: %v", got.CustomQuestions)
	}

	if _, err := s.GetPulse(ctx, "missing"); !errors.Is(err, store.ErrPulseNotFound) {
		t.Fatalf("missing pulse: %v", err)
	}
}

func TestSQLiteUpdatePulse(t *testing.T) {
	s := newSQLiteFixture(t)
	ctx := context.Background()
	_ = s.CreatePulse(ctx, samplePulse("p1"))

	count := 2
	has := true
	content := "<h2>Done</h2>"
	got, err := s.UpdatePulse(ctx, "p1", models.PulseUpdate{
		SentEmails:      []string{"a@x.com", "b@x.com"},
		PendingEmails:   []string{},
		ResponseCount:   &count,
		HasAnalysis:     &has,
		AnalysisContent: &content,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.HasAnalysis || got.ResponseCount != 2 {
		t.Fatalf("update not applied: %+v", got)
	}

	back, _ := s.GetPulse(ctx, "p1")
	if back.AnalysisContent != content || len(back.PendingEmails) != 0 {
		t.Fatalf("update not persisted: %+v", back)
	}
	// Untouched fields survive the merge.
	if back.Name != "weekly pulse" || len(back.RecipientEmails) != 2 {
		t.Fatalf("merge clobbered fields: %+v", back)
	}
}

func TestSQLiteListPulsesNewestFirst(t *testing.T) {
	s := newSQLiteFixture(t)
	ctx := context.Background()

	older := samplePulse("old")
	newer := samplePulse("new")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	_ = s.CreatePulse(ctx, older)
	_ = s.CreatePulse(ctx, newer)

	got, err := s.ListPulses(ctx, "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" {
		t.Fatalf("order wrong: %v, %v", got[0].ID, got[1].ID)
	}
}

func TestSQLiteResponsesAndAnalysis(t *testing.T) {
	s := newSQLiteFixture(t)
	ctx := context.Background()
	_ = s.CreatePulse(ctx, samplePulse("p1"))

	now := time.Now().UTC()
	for i, text := range []string{"good", "tired"} {
		r := &models.Response{
			ID:           string(rune('a' + i)),
			PulseID:      "p1",
			RespondentID: "tok",
			Text:         text,
			CreatedAt:    now.Add(time.Duration(i) * time.Second),
		}
		if err := s.AddResponse(ctx, r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	n, err := s.CountResponses(ctx, "p1")
	if err != nil || n != 2 {
		t.Fatalf("count = %d err=%v", n, err)
	}
	rs, err := s.ListResponses(ctx, "p1")
	if err != nil || len(rs) != 2 {
		t.Fatalf("list = %d err=%v", len(rs), err)
	}
	if rs[0].Text != "good" {
		t.Fatalf("order wrong: %q", rs[0].Text)
	}

	a := &models.Analysis{PulseID: "p1", Content: "v1", CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertAnalysis(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	a.Content = "v2"
	a.UpdatedAt = now.Add(time.Minute)
	if err := s.UpsertAnalysis(ctx, a); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := s.GetAnalysis(ctx, "p1")
	if err != nil || got.Content != "v2" {
		t.Fatalf("analysis = %+v err=%v", got, err)
	}

	removed, err := s.DeleteResponses(ctx, "p1")
	if err != nil || removed != 2 {
		t.Fatalf("removed = %d err=%v", removed, err)
	}
}

func TestSQLiteDeleteCascades(t *testing.T) {
	s := newSQLiteFixture(t)
	ctx := context.Background()
	_ = s.CreatePulse(ctx, samplePulse("p1"))
	_ = s.AddResponse(ctx, &models.Response{ID: "r1", PulseID: "p1", Text: "x", CreatedAt: time.Now()})
	_ = s.UpsertAnalysis(ctx, &models.Analysis{PulseID: "p1", Content: "c", CreatedAt: time.Now(), UpdatedAt: time.Now()})

	if err := s.DeletePulse(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetPulse(ctx, "p1"); !errors.Is(err, store.ErrPulseNotFound) {
		t.Fatal("pulse survived")
	}
	if _, err := s.GetAnalysis(ctx, "p1"); !errors.Is(err, store.ErrAnalysisNotFound) {
		t.Fatal("analysis survived")
	}
	n, _ := s.CountResponses(ctx, "p1")
	if n != 0 {
		t.Fatal("responses survived")
	}
	if err := s.DeletePulse(ctx, "p1"); !errors.Is(err, store.ErrPulseNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
