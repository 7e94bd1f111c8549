package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/kalambet/rsslabel/internal/labeling"
)

const maxRequestBodySize = 1 << 10 // 1KB

// NoArticlesMessage is shown to the operator when the data directory has no batch.
const NoArticlesMessage = "No articles found. Please run the data collection step first."

var validate = validator.New()

// LabelRequest is the body of POST /api/label.
type LabelRequest struct {
	Label string `json:"label" validate:"required,oneof=advertisement news"`
}

type labelResponse struct {
	Accepted   bool   `json:"accepted"`
	NextIndex  int    `json:"next_index"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Complete   bool   `json:"complete"`
	Error      string `json:"error,omitempty"`
}

// LabelingDeps holds what the labeling handlers need.
type LabelingDeps struct {
	Session *labeling.Session
	Metrics *Metrics // optional
}

// NewLabelingHandler returns the router serving the JSON labeling API and the
// operator pages.
func NewLabelingHandler(deps LabelingDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requireSession(deps.Session, deps.Metrics))
		r.Get("/current", handleCurrent(deps))
		r.Post("/label", handleLabel(deps))
		r.Post("/skip", handleSkip(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/summary", handleSummary(deps))
	})

	r.Get("/", handleIndexPage(deps))
	r.Get("/completed", handleCompletedPage(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// requireSession lazily initializes the session and answers every API call
// with the no-articles message while the data directory has no batch.
func requireSession(s *labeling.Session, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.Initialize(); err != nil {
				if errors.Is(err, labeling.ErrNoArticles) {
					httpError(w, http.StatusServiceUnavailable, "no_articles", NoArticlesMessage)
					return
				}
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load session: %v", err)
				return
			}
			m.observeSession(s)
			next.ServeHTTP(w, r)
		})
	}
}

func handleCurrent(deps LabelingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := deps.Session.Current()
		if errors.Is(err, labeling.ErrComplete) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"complete": true,
				"redirect": "/completed",
			})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get current article: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleLabel(deps LabelingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req LabelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := validate.Struct(req); err != nil {
			deps.Metrics.observeRejected()
			writeJSON(w, http.StatusUnprocessableEntity, labelResponse{
				Accepted:  false,
				NextIndex: deps.Session.Cursor(),
				Complete:  deps.Session.Phase() == labeling.PhaseComplete,
				Error:     "label must be one of: advertisement, news",
			})
			return
		}

		res, err := deps.Session.RecordLabel(req.Label)
		switch {
		case errors.Is(err, labeling.ErrComplete):
			writeJSON(w, http.StatusConflict, labelResponse{NextIndex: res.Cursor, Complete: true, Error: err.Error()})
			return
		case errors.Is(err, labeling.ErrInvalidLabel):
			deps.Metrics.observeRejected()
			writeJSON(w, http.StatusUnprocessableEntity, labelResponse{NextIndex: res.Cursor, Error: err.Error()})
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "label recorded but checkpoint failed: %v", err)
			return
		}

		deps.Metrics.observeLabel(req.Label, res)
		writeJSON(w, http.StatusOK, labelResponse{
			Accepted:   true,
			NextIndex:  res.Cursor,
			Checkpoint: res.Checkpoint,
			Complete:   res.Complete,
		})
	}
}

func handleSkip(deps LabelingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Session.Skip()
		if errors.Is(err, labeling.ErrComplete) {
			writeJSON(w, http.StatusConflict, res)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "skip recorded but checkpoint failed: %v", err)
			return
		}
		deps.Metrics.observeSkip(res)
		writeJSON(w, http.StatusOK, res)
	}
}

func handleStats(deps LabelingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Session.Stats())
	}
}

func handleSummary(deps LabelingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := deps.Session.CompletionSummary()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save labels: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stats":       sum.Stats,
			"labels_file": sum.LabelsFile,
		})
	}
}
