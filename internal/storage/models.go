package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Event actions.
const (
	ActionLabel = "label"
	ActionSkip  = "skip"
)

type LabelEvent struct {
	ID           string
	BatchFile    string
	ArticleIndex int
	Action       string // "label" or "skip"
	Label        string // empty for skips
	CreatedAt    time.Time
}

type CheckpointRecord struct {
	ID            string
	Filename      string
	BatchFile     string
	TotalArticles int
	LabeledCount  int
	Cursor        int
	CreatedAt     time.Time
}
