package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/conneroisu/scribe/internal/entry"
	"github.com/conneroisu/scribe/internal/version"
)

const htmlContentType = "text/html; charset=utf-8"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/blog", http.StatusFound)
}

// handleHome renders the recent view. Entries are collected under the
// store's read lock and rendered after it is released so a slow template
// never holds up ingest.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	recent := make([]*entry.Entry, 0, s.config.Content.MaxRecent)
	s.entries.IterateRecent(func(e *entry.Entry) {
		recent = append(recent, e)
	})

	html, _ := s.renderer.RenderHome(r.Context(), recent)
	s.writeHTML(w, r, http.StatusOK, html)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if e, ok := s.entries.Get(name); ok {
		html, _ := s.renderer.RenderEntry(r.Context(), e)
		s.writeHTML(w, r, http.StatusOK, html)
		return
	}

	html, _ := s.renderer.RenderNotFound(r.Context(), name)
	s.writeHTML(w, r, s.config.Server.MissingStatus, html)
}

func (s *Server) writeHTML(w http.ResponseWriter, r *http.Request, status int, html string) {
	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(status)
	if _, err := io.WriteString(w, html); err != nil {
		s.logger.Debug(r.Context(), "Write failed", "path", r.URL.Path, "error", err.Error())
	}
}

// handleFiles serves raw assets. The request path is cleaned as an absolute
// path before joining so ".." can never climb out of the files directory.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	rel := path.Clean("/" + r.PathValue("path"))
	full := filepath.Join(s.config.Files.Path, filepath.FromSlash(rel))

	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(full))
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Entries     int       `json:"entries"`
	Subscribers int       `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Version:     version.GetShortVersion(),
		Entries:     s.entries.Len(),
		Subscribers: s.bus.SubscriberCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Debug(r.Context(), "Failed to encode health response", "error", err.Error())
	}
}
