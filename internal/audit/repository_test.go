package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "trail.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return repo
}

func TestLogFillsDefaults(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	metadata, _ := json.Marshal(map[string]string{"field": "combustion_temp_c"})
	err := repo.Log(ctx, Entry{
		Actor:     "operator-b",
		Action:    ActionReadingQueued,
		EntryKey:  "plant-a_20260815_07",
		ProjectID: "plant-a",
		Metadata:  metadata,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	entries, err := repo.ListByEntry(ctx, "plant-a_20260815_07")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.ID == "" {
		t.Error("id must be generated")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("timestamp must be stamped")
	}
	if entry.PayloadDigest != DigestJSON(metadata) {
		t.Errorf("digest mismatch: %s", entry.PayloadDigest)
	}
}

func TestTrailOrderedOldestFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 7, 0, 0, 0, time.UTC)
	actions := []string{ActionReadingQueued, ActionSyncMerged, ActionSyncConfirmed}
	for i, action := range actions {
		err := repo.Log(ctx, Entry{
			Actor:     "operator-b",
			Action:    action,
			EntryKey:  "plant-a_20260815_07",
			ProjectID: "plant-a",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("log %s: %v", action, err)
		}
	}

	entries, err := repo.ListByEntry(ctx, "plant-a_20260815_07")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, action := range actions {
		if entries[i].Action != action {
			t.Errorf("position %d: expected %s, got %s", i, action, entries[i].Action)
		}
	}
}

func TestListSinceFiltersOldEntries(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_ = repo.Log(ctx, Entry{
			Actor:     "operator-b",
			Action:    ActionReadingQueued,
			EntryKey:  "plant-a_20260815_07",
			ProjectID: "plant-a",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	entries, err := repo.ListSince(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestBuildTrailPDF(t *testing.T) {
	entries := []Entry{
		{
			ID:            NewID(),
			Actor:         "operator-b",
			Action:        ActionSyncConfirmed,
			EntryKey:      "plant-a_20260815_07",
			ProjectID:     "plant-a",
			PayloadDigest: DigestJSON([]byte(`{"version":2}`)),
			CreatedAt:     time.Date(2026, 8, 15, 8, 0, 0, 0, time.UTC),
		},
	}

	data, err := BuildTrailPDF("plant-a", entries, time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty document")
	}
	if string(data[:5]) != "%PDF-" {
		t.Fatalf("not a PDF header: %q", data[:5])
	}
}
