package labeling

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalambet/rsslabel/internal/dataset"
	"github.com/kalambet/rsslabel/internal/storage"
)

// stepClock returns a time one second later on every call so checkpoint
// names sort in write order.
type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func writeBatch(t *testing.T, dir string, n int) {
	t.Helper()
	articles := make([]map[string]string, n)
	for i := range articles {
		articles[i] = map[string]string{"title": fmt.Sprintf("article %d", i), "content": "body"}
	}
	data, err := json.Marshal(articles)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rss_articles_20250301_000000.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeLegacyCheckpoint(t *testing.T, dir, labels string) {
	t.Helper()
	content := `{"timestamp":"20250301_000001","total_articles":5,"labeled_count":2,"labels":` + labels + `}`
	if err := os.WriteFile(filepath.Join(dir, "labels_20250301_000001.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestSession(t *testing.T, n int) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	writeBatch(t, dir, n)
	s := NewSession(Options{DataDir: dir, Clock: newClock()})
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s, dir
}

func checkpointCount(t *testing.T, dir string) int {
	t.Helper()
	infos, err := dataset.ListCheckpoints(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(infos)
}

func TestScenario_LabelSkipLabel(t *testing.T) {
	s, _ := newTestSession(t, 3)

	if _, err := s.RecordLabel("news"); err != nil {
		t.Fatalf("label 0: %v", err)
	}
	if _, err := s.Skip(); err != nil {
		t.Fatalf("skip 1: %v", err)
	}
	res, err := s.RecordLabel("advertisement")
	if err != nil {
		t.Fatalf("label 2: %v", err)
	}

	if !res.Complete || s.Phase() != PhaseComplete {
		t.Errorf("phase = %v, want complete", s.Phase())
	}
	if res.Checkpoint == "" {
		t.Fatal("entering complete should write a checkpoint")
	}

	st := s.Stats()
	if st.LabeledCount != 2 || st.News != 1 || st.Advertisements != 1 || st.Cursor != 3 || st.Skipped != 1 {
		t.Errorf("stats = %+v", st)
	}

	cp, err := dataset.ReadCheckpoint(res.Checkpoint)
	if err != nil {
		t.Fatal(err)
	}
	if cp.LabeledCount != 2 {
		t.Errorf("checkpoint labeled_count = %d, want 2", cp.LabeledCount)
	}
	if cp.Cursor == nil || *cp.Cursor != 3 {
		t.Errorf("checkpoint cursor = %v, want 3", cp.Cursor)
	}

	if _, err := s.Current(); !errors.Is(err, ErrComplete) {
		t.Errorf("Current err = %v, want ErrComplete", err)
	}
}

func TestScenario_ResumeFromLegacyCheckpoint(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 5)
	writeLegacyCheckpoint(t, dir, `{"0":"news","1":"advertisement"}`)

	s := NewSession(Options{DataDir: dir, Clock: newClock()})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}

	if s.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", s.Cursor())
	}
	v, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	if v.Index != 2 || v.Position != 3 || v.Article.Title != "article 2" {
		t.Errorf("view = %+v", v)
	}
	if !v.Resumed {
		t.Error("view should report resume")
	}
	if l, ok := s.LabelOf(1); !ok || l != Advertisement {
		t.Errorf("LabelOf(1) = %q, %v", l, ok)
	}
}

func TestResume_UsesPersistedCursorAfterSkips(t *testing.T) {
	s, dir := newTestSession(t, 6)

	s.RecordLabel("news")
	s.Skip()
	s.Skip()
	s.RecordLabel("advertisement")
	if _, err := s.SaveCheckpoint(); err != nil {
		t.Fatal(err)
	}

	resumed := NewSession(Options{DataDir: dir, Clock: newClock()})
	if err := resumed.Initialize(); err != nil {
		t.Fatal(err)
	}
	if resumed.Cursor() != 4 {
		t.Errorf("cursor = %d, want 4 (skips must not be replayed)", resumed.Cursor())
	}
	if st := resumed.Stats(); st.LabeledCount != 2 || st.Skipped != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRecordLabel_InvalidLeavesStateUnchanged(t *testing.T) {
	s, dir := newTestSession(t, 3)
	s.RecordLabel("news")

	for _, v := range []string{"", "News", "spam", "advertisement "} {
		res, err := s.RecordLabel(v)
		if !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("RecordLabel(%q) err = %v, want ErrInvalidLabel", v, err)
		}
		if res.Cursor != 1 || s.Cursor() != 1 {
			t.Errorf("RecordLabel(%q) moved cursor to %d", v, s.Cursor())
		}
	}
	if st := s.Stats(); st.LabeledCount != 1 {
		t.Errorf("labeled = %d, want 1", st.LabeledCount)
	}
	if n := checkpointCount(t, dir); n != 0 {
		t.Errorf("invalid labels wrote %d checkpoints", n)
	}
}

func TestAutosaveEveryTenLabels(t *testing.T) {
	s, dir := newTestSession(t, 40)

	for i := 0; i < 9; i++ {
		if res, _ := s.RecordLabel("news"); res.Checkpoint != "" {
			t.Fatalf("checkpoint after %d labels", i+1)
		}
	}
	s.Skip()
	res, err := s.RecordLabel("advertisement")
	if err != nil {
		t.Fatal(err)
	}
	if res.Checkpoint == "" {
		t.Fatal("10th label should write a checkpoint")
	}
	cp, err := dataset.ReadCheckpoint(res.Checkpoint)
	if err != nil {
		t.Fatal(err)
	}
	if len(cp.Labels) != 10 {
		t.Errorf("checkpoint has %d labels, want 10", len(cp.Labels))
	}

	for i := 0; i < 10; i++ {
		s.RecordLabel("news")
	}
	if n := checkpointCount(t, dir); n != 2 {
		t.Errorf("checkpoints = %d, want 2", n)
	}

	latest, err := dataset.LoadLatestCheckpoint(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest.Labels) != 20 {
		t.Errorf("latest checkpoint has %d labels, want 20", len(latest.Labels))
	}
}

func TestAutosaveInterval_Configurable(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 10)
	s := NewSession(Options{DataDir: dir, AutosaveEvery: 3, Clock: newClock()})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		s.RecordLabel("news")
	}
	if n := checkpointCount(t, dir); n != 2 {
		t.Errorf("checkpoints = %d, want 2", n)
	}
}

func TestCursorMonotonicAndBounded(t *testing.T) {
	const total = 25
	s, _ := newTestSession(t, total)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < total+10; i++ {
		before := s.Cursor()
		var err error
		if rng.Intn(3) == 0 {
			_, err = s.Skip()
		} else {
			_, err = s.RecordLabel(string(AllLabels[rng.Intn(2)]))
		}

		if before < total {
			if err != nil {
				t.Fatalf("op %d: %v", i, err)
			}
			if s.Cursor() != before+1 {
				t.Fatalf("op %d: cursor %d -> %d", i, before, s.Cursor())
			}
		} else {
			if !errors.Is(err, ErrComplete) {
				t.Fatalf("op %d after complete: err = %v", i, err)
			}
			if s.Cursor() != total {
				t.Fatalf("cursor = %d exceeds total", s.Cursor())
			}
		}
	}
}

func TestCompletionSummary(t *testing.T) {
	s, dir := newTestSession(t, 4)
	s.RecordLabel("news")
	s.RecordLabel("advertisement")
	s.Skip()

	sum, err := s.CompletionSummary()
	if err != nil {
		t.Fatal(err)
	}
	if sum.LabelsFile == "" {
		t.Fatal("summary should name a checkpoint")
	}
	if sum.Advertisements+sum.News != sum.LabeledCount {
		t.Errorf("ads %d + news %d != labeled %d", sum.Advertisements, sum.News, sum.LabeledCount)
	}

	again, err := s.CompletionSummary()
	if err != nil {
		t.Fatal(err)
	}
	if again.LabelsFile != sum.LabelsFile {
		t.Errorf("unchanged session wrote a new checkpoint: %s", again.LabelsFile)
	}
	if n := checkpointCount(t, dir); n != 1 {
		t.Errorf("checkpoints = %d, want 1", n)
	}

	s.RecordLabel("news")
	final, err := s.CompletionSummary()
	if err != nil {
		t.Fatal(err)
	}
	if final.LabelsFile == sum.LabelsFile {
		t.Error("summary after new label must reference a new checkpoint")
	}
	if final.Phase != PhaseComplete.String() {
		t.Errorf("phase = %s", final.Phase)
	}
}

func TestFlush_SavesOnlyUnsavedChanges(t *testing.T) {
	s, dir := newTestSession(t, 5)

	path, err := s.Flush()
	if err != nil || path != "" {
		t.Fatalf("Flush on fresh session = %q, %v", path, err)
	}

	s.RecordLabel("news")
	s.Skip()
	if s.Unsaved() != 2 {
		t.Errorf("Unsaved = %d, want 2", s.Unsaved())
	}
	path, err = s.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if path == "" || s.Unsaved() != 0 {
		t.Fatalf("Flush = %q, unsaved %d", path, s.Unsaved())
	}

	cp, err := dataset.ReadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}
	if cp.ResumeCursor() != 2 || len(cp.Labels) != 1 {
		t.Errorf("checkpoint cursor %d, labels %v", cp.ResumeCursor(), cp.Labels)
	}

	if path, _ := s.Flush(); path != "" {
		t.Errorf("second Flush wrote %q", path)
	}
	if n := checkpointCount(t, dir); n != 1 {
		t.Errorf("checkpoints = %d, want 1", n)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s, dir := newTestSession(t, 5)
	s.RecordLabel("news")
	s.RecordLabel("advertisement")
	s.Skip()
	s.RecordLabel("news")

	path, err := s.SaveCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	cp, err := dataset.LoadLatestCheckpoint(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Path != path {
		t.Errorf("latest = %s, want %s", cp.Path, path)
	}
	want := dataset.Labels{0: "news", 1: "advertisement", 3: "news"}
	if len(cp.Labels) != len(want) {
		t.Fatalf("labels = %v, want %v", cp.Labels, want)
	}
	for k, v := range want {
		if cp.Labels[k] != v {
			t.Errorf("labels[%d] = %q, want %q", k, cp.Labels[k], v)
		}
	}
}

func TestInitialize_NoArticlesThenRetry(t *testing.T) {
	dir := t.TempDir()
	s := NewSession(Options{DataDir: dir, Clock: newClock()})

	if err := s.Initialize(); !errors.Is(err, ErrNoArticles) {
		t.Fatalf("err = %v, want ErrNoArticles", err)
	}
	if s.Phase() != PhaseUninitialized {
		t.Errorf("phase = %v, want uninitialized", s.Phase())
	}
	if _, err := s.Current(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Current err = %v, want ErrNotInitialized", err)
	}
	if _, err := s.RecordLabel("news"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("RecordLabel err = %v, want ErrNotInitialized", err)
	}

	writeBatch(t, dir, 2)
	if err := s.Initialize(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.Phase() != PhaseActive || s.Total() != 2 {
		t.Errorf("phase = %v total = %d", s.Phase(), s.Total())
	}
}

func TestInitialize_LoadsOnce(t *testing.T) {
	s, dir := newTestSession(t, 2)
	s.RecordLabel("news")

	writeLegacyCheckpoint(t, dir, `{"0":"advertisement","1":"advertisement"}`)
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	if s.Cursor() != 1 {
		t.Errorf("second Initialize reloaded state: cursor = %d", s.Cursor())
	}
}

func TestInitialize_MalformedCheckpoint(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 3)
	writeLegacyCheckpoint(t, dir, `{"0":"spam"}`)

	s := NewSession(Options{DataDir: dir})
	err := s.Initialize()
	if !errors.Is(err, ErrInvalidLabel) {
		t.Fatalf("err = %v, want ErrInvalidLabel", err)
	}
	if s.Phase() != PhaseUninitialized {
		t.Errorf("phase = %v", s.Phase())
	}
}

func TestInitialize_CursorClampedToTotal(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 1)
	writeLegacyCheckpoint(t, dir, `{"0":"news","1":"news"}`)

	s := NewSession(Options{DataDir: dir})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	if s.Cursor() != 1 || s.Phase() != PhaseComplete {
		t.Errorf("cursor = %d phase = %v", s.Cursor(), s.Phase())
	}
}

func TestRecordLabel_WriteFailureKeepsLabel(t *testing.T) {
	s, dir := newTestSession(t, 2)

	// Replace the data directory with a regular file so the write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(dir) })

	s.RecordLabel("news")
	res, err := s.RecordLabel("advertisement")
	if err == nil {
		t.Fatal("expected checkpoint write error")
	}
	if res.Cursor != 2 {
		t.Errorf("cursor = %d, want 2", res.Cursor)
	}
	if st := s.Stats(); st.LabeledCount != 2 {
		t.Errorf("labeled = %d, want 2", st.LabeledCount)
	}
}

func TestProgressIsCursorOverTotal(t *testing.T) {
	s, _ := newTestSession(t, 4)
	s.Skip()

	v, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	if v.ProgressPercent != 25 {
		t.Errorf("view progress = %v, want 25", v.ProgressPercent)
	}
	if p := s.Stats().ProgressPercent; p != 25 {
		t.Errorf("stats progress = %v, want 25", p)
	}
}

type fakeJournal struct {
	events      []storage.LabelEvent
	checkpoints []storage.CheckpointRecord
	err         error
}

func (f *fakeJournal) RecordEvent(e storage.LabelEvent) error {
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeJournal) RecordCheckpoint(c storage.CheckpointRecord) error {
	f.checkpoints = append(f.checkpoints, c)
	return f.err
}

func TestJournal_ReceivesEvents(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 2)
	j := &fakeJournal{}
	s := NewSession(Options{DataDir: dir, Journal: j, Clock: newClock()})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}

	s.RecordLabel("news")
	s.RecordLabel("bogus")
	s.Skip()

	if len(j.events) != 2 {
		t.Fatalf("events = %d, want 2", len(j.events))
	}
	if j.events[0].Action != storage.ActionLabel || j.events[0].Label != "news" || j.events[0].ArticleIndex != 0 {
		t.Errorf("event 0 = %+v", j.events[0])
	}
	if j.events[1].Action != storage.ActionSkip || j.events[1].ArticleIndex != 1 {
		t.Errorf("event 1 = %+v", j.events[1])
	}
	if len(j.checkpoints) != 1 || j.checkpoints[0].LabeledCount != 1 || j.checkpoints[0].Cursor != 2 {
		t.Errorf("checkpoints = %+v", j.checkpoints)
	}
}

func TestJournal_FailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	writeBatch(t, dir, 1)
	j := &fakeJournal{err: errors.New("disk on fire")}
	s := NewSession(Options{DataDir: dir, Journal: j, Clock: newClock()})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}

	res, err := s.RecordLabel("news")
	if err != nil {
		t.Fatalf("journal error leaked: %v", err)
	}
	if res.Checkpoint == "" {
		t.Error("checkpoint should still be written")
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    Label
		wantErr bool
	}{
		{"advertisement", Advertisement, false},
		{"news", News, false},
		{"ad", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLabel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLabel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
