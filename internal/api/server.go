// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/lanshare/lanshare/internal/catalog"
	"github.com/lanshare/lanshare/internal/hub"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/storage"
	"github.com/lanshare/lanshare/webapp"
)

// Server is the HTTP server. It owns no state of its own: all session and
// catalog mutations go through the hub, all bytes through the backend.
type Server struct {
	hub           *hub.Hub
	backend       storage.Backend
	maxUploadSize int64
}

// NewServer creates a new server.
func NewServer(h *hub.Hub, backend storage.Backend, maxUploadSize int64) *Server {
	return &Server{
		hub:           h,
		backend:       backend,
		maxUploadSize: maxUploadSize,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Session event stream; connecting to it creates the session.
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	// File operations
	mux.HandleFunc("POST /api/v1/upload", s.handleUpload)
	mux.HandleFunc("GET /api/v1/download/{id}", s.handleDownload)
	mux.HandleFunc("POST /api/v1/share-folder", s.handleShareFolder)
	mux.HandleFunc("DELETE /api/v1/files/{id}", s.handleRemoveFile)

	// Web app (WEBAPP_DIR overrides embedded assets during development)
	var appHandler http.Handler
	if dir := os.Getenv("WEBAPP_DIR"); dir != "" {
		logging.Info("serving webapp from disk", zap.String("dir", dir))
		appHandler = http.StripPrefix("/app/", http.FileServer(http.Dir(dir)))
	} else {
		appHandler = http.StripPrefix("/app/", http.FileServer(http.FS(webapp.Assets)))
	}
	mux.Handle("/app/", appHandler)
	mux.HandleFunc("GET /app", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/app/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/app/", http.StatusMovedPermanently)
	})

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": "1.0"})
}

// sendError writes a JSON error response.
func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// sendHubError maps the core error taxonomy onto HTTP status codes.
func (s *Server) sendHubError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, catalog.ErrPermissionDenied):
		s.sendError(w, http.StatusForbidden, "Permission denied")
	case errors.Is(err, catalog.ErrValidation):
		s.sendError(w, http.StatusBadRequest, "Invalid file metadata")
	case errors.Is(err, hub.ErrNoConnection):
		s.sendError(w, http.StatusBadRequest, "Client not connected")
	default:
		s.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

// peerAddress extracts the client address from a request, without the
// ephemeral port.
func peerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
