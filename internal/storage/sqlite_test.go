package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same directory and verifies
// migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) == 0 || len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_label_events_created", "idx_label_events_batch", "idx_checkpoints_created"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestRecordAndListEvents(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	events := []LabelEvent{
		{BatchFile: "b.json", ArticleIndex: 0, Action: ActionLabel, Label: "news", CreatedAt: now},
		{BatchFile: "b.json", ArticleIndex: 1, Action: ActionSkip, CreatedAt: now},
		{BatchFile: "b.json", ArticleIndex: 2, Action: ActionLabel, Label: "advertisement", CreatedAt: now.Add(time.Second)},
	}
	for _, e := range events {
		if err := s.RecordEvent(e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	got, err := s.ListEvents(10, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ArticleIndex != 2 || got[0].Label != "advertisement" {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].ArticleIndex != 1 || got[1].Action != ActionSkip {
		t.Errorf("second = %+v, want skip of index 1 (rowid tie-break)", got[1])
	}
	if got[0].ID == "" {
		t.Error("ID not generated")
	}

	labeled, err := s.CountEvents(ActionLabel)
	if err != nil {
		t.Fatal(err)
	}
	if labeled != 2 {
		t.Errorf("CountEvents(label) = %d, want 2", labeled)
	}

	page, err := s.ListEvents(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ArticleIndex != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestRecordAndGetCheckpoint(t *testing.T) {
	s := openTestStore(t)

	rec := CheckpointRecord{
		Filename:      "labels_20250301_120000.json",
		BatchFile:     "rss_articles_1.json",
		TotalArticles: 30,
		LabeledCount:  10,
		Cursor:        12,
	}
	if err := s.RecordCheckpoint(rec); err != nil {
		t.Fatalf("RecordCheckpoint: %v", err)
	}

	got, err := s.GetCheckpoint(rec.Filename)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got.LabeledCount != 10 || got.Cursor != 12 || got.TotalArticles != 30 {
		t.Errorf("got = %+v", got)
	}

	if _, err := s.GetCheckpoint("missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := s.RecordCheckpoint(rec); err == nil {
		t.Error("expected unique constraint error for duplicate filename")
	}
}

func TestListCheckpoints_NewestFirst(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	for i, name := range []string{"labels_a.json", "labels_b.json", "labels_c.json"} {
		err := s.RecordCheckpoint(CheckpointRecord{
			Filename:     name,
			LabeledCount: (i + 1) * 10,
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListCheckpoints(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Filename != "labels_c.json" || got[1].Filename != "labels_b.json" {
		t.Errorf("order = %s, %s", got[0].Filename, got[1].Filename)
	}
}
