package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ErrNotFound is returned when no batch or checkpoint file matches in the data directory.
var ErrNotFound = errors.New("not found")

const (
	// BatchPrefix is the filename prefix of article batch files.
	BatchPrefix = "rss_articles_"
	// CheckpointPrefix is the filename prefix of label checkpoint files.
	CheckpointPrefix = "labels_"
	fileSuffix       = ".json"

	// TimestampLayout is the layout of checkpoint timestamps and filenames.
	TimestampLayout = "20060102_150405"
)

// Article is one RSS item from a batch file. The common feed fields are
// decoded for display; Raw keeps the original object so it round-trips unchanged.
type Article struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Summary   string `json:"summary"`
	Content   string `json:"content"`
	Published string `json:"published"`
	Source    string `json:"source"`

	Raw json.RawMessage `json:"-"`
}

func (a *Article) UnmarshalJSON(data []byte) error {
	type fields Article
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Article(f)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (a Article) MarshalJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}
	type fields Article
	return json.Marshal(fields(a))
}

// Batch is a parsed article batch file.
type Batch struct {
	Path     string
	Articles []Article
}

// Labels maps article index to its label value. Keys are serialized as
// decimal strings to match the checkpoint schema.
type Labels map[int]string

func (l Labels) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(l))
	for idx, v := range l {
		m[strconv.Itoa(idx)] = v
	}
	return json.Marshal(m)
}

func (l *Labels) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Labels, len(m))
	for k, v := range m {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return fmt.Errorf("invalid article index %q", k)
		}
		out[idx] = v
	}
	*l = out
	return nil
}

// Indices returns the labeled article indices in ascending order.
func (l Labels) Indices() []int {
	idx := make([]int, 0, len(l))
	for i := range l {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Checkpoint is the persisted snapshot of a labeling session.
type Checkpoint struct {
	Timestamp     string `json:"timestamp"`
	TotalArticles int    `json:"total_articles"`
	LabeledCount  int    `json:"labeled_count"`
	// Cursor is nil in files written before the cursor was persisted.
	Cursor    *int   `json:"cursor,omitempty"`
	BatchFile string `json:"batch_file,omitempty"`
	Labels    Labels `json:"labels"`

	// Path is the file the checkpoint was read from or written to.
	Path string `json:"-"`
}

// ResumeCursor returns the persisted cursor, or the label count for
// checkpoints that predate it.
func (c Checkpoint) ResumeCursor() int {
	if c.Cursor != nil {
		return *c.Cursor
	}
	return len(c.Labels)
}

// NewCheckpoint builds a snapshot stamped with t.
func NewCheckpoint(t time.Time, total, cursor int, batchFile string, labels Labels) Checkpoint {
	cp := make(Labels, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	c := cursor
	return Checkpoint{
		Timestamp:     t.Format(TimestampLayout),
		TotalArticles: total,
		LabeledCount:  len(cp),
		Cursor:        &c,
		BatchFile:     batchFile,
		Labels:        cp,
	}
}
