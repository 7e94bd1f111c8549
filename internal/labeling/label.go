package labeling

import (
	"errors"
	"fmt"
)

var (
	// ErrNoArticles is returned when the data directory holds no article batch.
	ErrNoArticles = errors.New("no articles found")
	// ErrInvalidLabel is returned for label values outside the fixed set.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrComplete is returned when every article has been labeled or skipped.
	ErrComplete = errors.New("labeling session complete")
	// ErrNotInitialized is returned when the session has not loaded a batch yet.
	ErrNotInitialized = errors.New("labeling session not initialized")
)

// Label is a classification value applied to an article.
type Label string

const (
	Advertisement Label = "advertisement"
	News          Label = "news"
)

// AllLabels lists every valid label value.
var AllLabels = []Label{Advertisement, News}

func (l Label) Valid() bool {
	return l == Advertisement || l == News
}

// ParseLabel returns the Label for s, or an error wrapping ErrInvalidLabel.
func ParseLabel(s string) (Label, error) {
	l := Label(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidLabel, s, Advertisement, News)
	}
	return l, nil
}

// Phase is the lifecycle state of a Session.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseActive
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseActive:
		return "active"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}
