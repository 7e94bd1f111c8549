// Package labeling tracks a single operator's progress through an article
// batch: the cursor, the label mapping, periodic checkpoints and the final
// summary.
//
// A Session is not safe for concurrent use. The tool serves one operator and
// the presentation layer is expected to drive it one request at a time.
package labeling

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kalambet/rsslabel/internal/dataset"
	"github.com/kalambet/rsslabel/internal/storage"
)

// DefaultAutosaveEvery is the number of new labels between automatic checkpoints.
const DefaultAutosaveEvery = 10

// Journal receives label, skip and checkpoint events. Implemented by storage.Store.
type Journal interface {
	RecordEvent(e storage.LabelEvent) error
	RecordCheckpoint(c storage.CheckpointRecord) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options configures a Session.
type Options struct {
	DataDir       string
	AutosaveEvery int     // defaults to DefaultAutosaveEvery when <= 0
	Journal       Journal // optional
	Clock         Clock   // optional
}

// Session holds the loaded batch, the label mapping and the cursor.
type Session struct {
	dataDir       string
	autosaveEvery int
	journal       Journal
	clock         Clock

	phase    Phase
	batch    dataset.Batch
	labels   dataset.Labels
	cursor   int
	resumed  string
	lastSave string

	// changes counts label/skip mutations; savedChanges is its value at the last checkpoint.
	changes      int
	savedChanges int
}

// View is the article awaiting a label.
type View struct {
	Article         dataset.Article `json:"article"`
	Index           int             `json:"index"`
	Position        int             `json:"position"`
	Total           int             `json:"total"`
	ProgressPercent float64         `json:"progress_percent"`
	Resumed         bool            `json:"resumed"`
	LabeledCount    int             `json:"labeled_count"`
}

// Result is the outcome of a label or skip.
type Result struct {
	Cursor     int    `json:"next_index"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Complete   bool   `json:"complete"`
}

// Stats is a derived view of session progress.
type Stats struct {
	TotalArticles   int     `json:"total_articles"`
	LabeledCount    int     `json:"labeled_count"`
	Advertisements  int     `json:"advertisements"`
	News            int     `json:"news"`
	Skipped         int     `json:"skipped"`
	Cursor          int     `json:"current_index"`
	ProgressPercent float64 `json:"progress_percent"`
	Phase           string  `json:"phase"`
}

// Summary is the completion report.
type Summary struct {
	Stats
	LabelsFile string `json:"labels_file"`
}

// NewSession returns an uninitialized Session. Call Initialize before use.
func NewSession(opts Options) *Session {
	every := opts.AutosaveEvery
	if every <= 0 {
		every = DefaultAutosaveEvery
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Session{
		dataDir:       opts.DataDir,
		autosaveEvery: every,
		journal:       opts.Journal,
		clock:         clock,
		labels:        dataset.Labels{},
	}
}

// Initialize loads the newest batch and, if present, resumes from the newest
// checkpoint. It loads once; later calls return nil without touching state.
// When the load fails the session stays uninitialized so a later call can retry.
func (s *Session) Initialize() error {
	if s.phase != PhaseUninitialized {
		return nil
	}
	s.phase = PhaseLoading

	batch, err := dataset.LoadArticles(s.dataDir)
	if err != nil {
		s.phase = PhaseUninitialized
		if errors.Is(err, dataset.ErrNotFound) {
			return ErrNoArticles
		}
		return fmt.Errorf("loading articles: %w", err)
	}
	slog.Info("loaded articles", "count", len(batch.Articles), "file", batch.Path)

	labels := dataset.Labels{}
	cursor := 0
	var resumed string

	cp, err := dataset.LoadLatestCheckpoint(s.dataDir)
	switch {
	case err == nil:
		for idx, v := range cp.Labels {
			if !Label(v).Valid() {
				s.phase = PhaseUninitialized
				return fmt.Errorf("loading checkpoint %s: %w: %q at index %d", filepath.Base(cp.Path), ErrInvalidLabel, v, idx)
			}
		}
		labels = cp.Labels
		cursor = cp.ResumeCursor()
		resumed = cp.Path
	case errors.Is(err, dataset.ErrNotFound):
	default:
		s.phase = PhaseUninitialized
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	total := len(batch.Articles)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > total {
		cursor = total
	}

	s.batch = batch
	s.labels = labels
	s.cursor = cursor
	s.resumed = resumed
	s.lastSave = resumed
	s.changes, s.savedChanges = 0, 0

	if resumed != "" {
		slog.Info("resumed labeling", "file", resumed, "labeled", len(labels), "cursor", cursor)
	}

	s.phase = PhaseActive
	if s.cursor >= total {
		s.phase = PhaseComplete
	}
	return nil
}

// Phase reports the lifecycle state.
func (s *Session) Phase() Phase { return s.phase }

// Total returns the number of articles in the loaded batch.
func (s *Session) Total() int { return len(s.batch.Articles) }

// Cursor returns the index of the next article awaiting a label.
func (s *Session) Cursor() int { return s.cursor }

// BatchPath returns the loaded batch file.
func (s *Session) BatchPath() string { return s.batch.Path }

// ResumedFrom returns the checkpoint the session resumed from, if any.
func (s *Session) ResumedFrom() string { return s.resumed }

// LastCheckpoint returns the newest checkpoint written or resumed from.
func (s *Session) LastCheckpoint() string { return s.lastSave }

// LabelOf returns the label recorded for the article at idx.
func (s *Session) LabelOf(idx int) (Label, bool) {
	v, ok := s.labels[idx]
	return Label(v), ok
}

// Unsaved returns the number of labels and skips recorded since the last checkpoint.
func (s *Session) Unsaved() int { return s.changes - s.savedChanges }

// Flush writes a checkpoint when there are unsaved changes and returns its
// path, or "" when nothing needed saving.
func (s *Session) Flush() (string, error) {
	if s.ready() != nil || s.Unsaved() == 0 {
		return "", nil
	}
	return s.SaveCheckpoint()
}

func (s *Session) ready() error {
	if s.phase == PhaseUninitialized || s.phase == PhaseLoading {
		return ErrNotInitialized
	}
	return nil
}

// Current returns the article at the cursor, or ErrComplete.
func (s *Session) Current() (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	total := s.Total()
	if s.cursor >= total {
		return View{}, ErrComplete
	}
	return View{
		Article:         s.batch.Articles[s.cursor],
		Index:           s.cursor,
		Position:        s.cursor + 1,
		Total:           total,
		ProgressPercent: s.progress(),
		Resumed:         s.resumed != "" && len(s.labels) > 0 && s.cursor > 0,
		LabeledCount:    len(s.labels),
	}, nil
}

// RecordLabel labels the article at the cursor and advances. A checkpoint is
// written when the label count reaches a multiple of the autosave interval and
// when the last article is reached. Invalid values leave the session unchanged.
// A checkpoint write error is returned with the label still recorded.
func (s *Session) RecordLabel(value string) (Result, error) {
	if err := s.ready(); err != nil {
		return Result{Cursor: s.cursor}, err
	}
	label, err := ParseLabel(value)
	if err != nil {
		return Result{Cursor: s.cursor, Complete: s.phase == PhaseComplete}, err
	}
	if s.cursor >= s.Total() {
		return Result{Cursor: s.cursor, Complete: true}, ErrComplete
	}

	idx := s.cursor
	_, relabel := s.labels[idx]
	s.labels[idx] = string(label)
	s.cursor++
	s.changes++
	s.journalEvent(idx, storage.ActionLabel, label)

	autosave := !relabel && len(s.labels)%s.autosaveEvery == 0
	return s.afterAdvance(autosave)
}

// Skip advances the cursor without recording a label.
func (s *Session) Skip() (Result, error) {
	if err := s.ready(); err != nil {
		return Result{Cursor: s.cursor}, err
	}
	if s.cursor >= s.Total() {
		return Result{Cursor: s.cursor, Complete: true}, ErrComplete
	}

	idx := s.cursor
	s.cursor++
	s.changes++
	s.journalEvent(idx, storage.ActionSkip, "")

	return s.afterAdvance(false)
}

func (s *Session) afterAdvance(autosave bool) (Result, error) {
	entered := false
	if s.cursor >= s.Total() {
		s.phase = PhaseComplete
		entered = true
		slog.Info("labeling complete", "labeled", len(s.labels), "total", s.Total())
	}

	res := Result{Cursor: s.cursor, Complete: s.phase == PhaseComplete}
	if autosave || entered {
		path, err := s.SaveCheckpoint()
		if err != nil {
			return res, err
		}
		res.Checkpoint = path
	}
	return res, nil
}

// SaveCheckpoint writes the full label mapping as a new checkpoint file and
// returns its path.
func (s *Session) SaveCheckpoint() (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	now := s.clock.Now()
	batchFile := filepath.Base(s.batch.Path)
	cp := dataset.NewCheckpoint(now, s.Total(), s.cursor, batchFile, s.labels)

	path, err := dataset.WriteCheckpoint(s.dataDir, cp)
	if err != nil {
		return "", fmt.Errorf("saving checkpoint: %w", err)
	}
	s.lastSave = path
	s.savedChanges = s.changes
	slog.Info("labels saved", "file", path, "labeled", cp.LabeledCount, "cursor", s.cursor)

	if s.journal != nil {
		err := s.journal.RecordCheckpoint(storage.CheckpointRecord{
			Filename:      filepath.Base(path),
			BatchFile:     batchFile,
			TotalArticles: cp.TotalArticles,
			LabeledCount:  cp.LabeledCount,
			Cursor:        s.cursor,
			CreatedAt:     now,
		})
		if err != nil {
			slog.Warn("journaling checkpoint failed", "file", path, "error", err)
		}
	}
	return path, nil
}

// Stats returns the current progress counts.
func (s *Session) Stats() Stats {
	st := Stats{
		TotalArticles:   s.Total(),
		LabeledCount:    len(s.labels),
		Cursor:          s.cursor,
		ProgressPercent: s.progress(),
		Phase:           s.phase.String(),
	}
	for _, v := range s.labels {
		switch Label(v) {
		case Advertisement:
			st.Advertisements++
		case News:
			st.News++
		}
	}
	if skipped := s.cursor - s.labeledBefore(s.cursor); skipped > 0 {
		st.Skipped = skipped
	}
	return st
}

// CompletionSummary makes sure a checkpoint reflecting the current state
// exists, writing one unless nothing changed since the last save, and returns
// the final stats with that checkpoint's path.
func (s *Session) CompletionSummary() (Summary, error) {
	if err := s.ready(); err != nil {
		return Summary{}, err
	}
	if s.lastSave == "" || s.changes != s.savedChanges {
		if _, err := s.SaveCheckpoint(); err != nil {
			return Summary{Stats: s.Stats()}, err
		}
	}
	return Summary{Stats: s.Stats(), LabelsFile: s.lastSave}, nil
}

// progress is the single progress metric: cursor over total, in percent.
func (s *Session) progress() float64 {
	total := s.Total()
	if total == 0 {
		return 100
	}
	return float64(s.cursor) / float64(total) * 100
}

func (s *Session) labeledBefore(n int) int {
	count := 0
	for idx := range s.labels {
		if idx < n {
			count++
		}
	}
	return count
}

func (s *Session) journalEvent(idx int, action string, label Label) {
	if s.journal == nil {
		return
	}
	err := s.journal.RecordEvent(storage.LabelEvent{
		BatchFile:    filepath.Base(s.batch.Path),
		ArticleIndex: idx,
		Action:       action,
		Label:        string(label),
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		slog.Warn("journaling event failed", "action", action, "index", idx, "error", err)
	}
}
