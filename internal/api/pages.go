package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/kalambet/rsslabel/internal/labeling"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

func handleIndexPage(deps LabelingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !initPage(w, deps.Session) {
			return
		}

		view, err := deps.Session.Current()
		if errors.Is(err, labeling.ErrComplete) {
			http.Redirect(w, r, "/completed", http.StatusFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		renderPage(w, "labeling.html", view)
	}
}

func handleCompletedPage(deps LabelingDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !initPage(w, deps.Session) {
			return
		}

		sum, err := deps.Session.CompletionSummary()
		if err != nil {
			http.Error(w, "failed to save labels: "+err.Error(), http.StatusInternalServerError)
			return
		}
		renderPage(w, "completed.html", sum)
	}
}

func initPage(w http.ResponseWriter, s *labeling.Session) bool {
	err := s.Initialize()
	if err == nil {
		return true
	}
	if errors.Is(err, labeling.ErrNoArticles) {
		http.Error(w, NoArticlesMessage, http.StatusServiceUnavailable)
		return false
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
	return false
}

func renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("rendering page", "page", name, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
