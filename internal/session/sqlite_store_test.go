package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

func TestSQLiteSnapshotStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteSnapshotStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	acceptedAt := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	snap := Snapshot{
		RequestID:  "req-1",
		Status:     models.StatusAccepted,
		MeetingURL: "https://rooms.test/instant/req-1",
		SubjectID:  "algebra",
		AcceptedAt: &acceptedAt,
	}

	if err := store.Save(ctx, "student-1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "student-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.RequestID != snap.RequestID || loaded.Status != snap.Status ||
		loaded.MeetingURL != snap.MeetingURL || loaded.SubjectID != snap.SubjectID {
		t.Fatalf("loaded %+v, saved %+v", loaded, snap)
	}
	if loaded.AcceptedAt == nil || !loaded.AcceptedAt.Equal(acceptedAt) {
		t.Fatalf("accepted_at round trip lost: %v", loaded.AcceptedAt)
	}

	// Save is an upsert: a later write under the same key replaces the row.
	snap.Status = models.StatusPending
	snap.AcceptedAt = nil
	if err := store.Save(ctx, "student-1", snap); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	loaded, err = store.Load(ctx, "student-1")
	if err != nil {
		t.Fatalf("load after upsert: %v", err)
	}
	if loaded.Status != models.StatusPending || loaded.AcceptedAt != nil {
		t.Fatalf("upsert did not replace: %+v", loaded)
	}
}

func TestSQLiteSnapshotStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteSnapshotStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Load(ctx, "student-1"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot got %v", err)
	}

	if err := store.Save(ctx, "student-1", Snapshot{RequestID: "req-1", Status: models.StatusPending}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(ctx, "student-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Load(ctx, "student-1"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot after clear got %v", err)
	}

	// Clearing an absent key is a no-op.
	if err := store.Clear(ctx, "student-2"); err != nil {
		t.Fatalf("clear absent key: %v", err)
	}
}

func TestSQLiteSnapshotStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := NewSQLiteSnapshotStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Save(ctx, "student-1", Snapshot{RequestID: "req-1", Status: models.StatusPending, SubjectID: "algebra"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteSnapshotStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "student-1")
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if loaded.RequestID != "req-1" || loaded.SubjectID != "algebra" {
		t.Fatalf("snapshot lost across reopen: %+v", loaded)
	}
}
