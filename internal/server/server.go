// Package server implements the HTTP panorama viewer: a library of panoramas
// under a root directory, per-client viewing sessions rendering rectilinear
// frames on demand, and saved viewpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/panoview/internal/config"
	"github.com/cwbudde/panoview/internal/scene"
	"github.com/cwbudde/panoview/internal/store"
)

// Server represents the HTTP viewer.
type Server struct {
	cfg       *config.Config
	library   *Library
	sessions  *SessionManager
	bookmarks store.Store
	server    *http.Server
}

// NewServer wires the viewer from its configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	bookmarkDir := cfg.Server.BookmarkDir
	if bookmarkDir == "" {
		bookmarkDir = filepath.Join(cfg.Server.PanoramaRoot, ".panoview")
	}
	bookmarks, err := store.NewFSStore(bookmarkDir)
	if err != nil {
		return nil, fmt.Errorf("create bookmark store: %w", err)
	}

	return &Server{
		cfg:       cfg,
		library:   NewLibrary(cfg.Server.PanoramaRoot, cfg.Server.ThumbnailSize),
		sessions:  NewSessionManager(cfg.SessionIdle()),
		bookmarks: bookmarks,
	}, nil
}

// Start scans the library, launches the background watchers and serves HTTP
// until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.library.Rescan(); err != nil {
		return err
	}

	go func() {
		if err := s.library.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Library watcher stopped", "error", err)
		}
	}()
	go s.sessions.Janitor(ctx)

	s.server = &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.cfg.Server.Addr)
	return s.server.ListenAndServe()
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI routes
	mux.HandleFunc("/", s.handleIndex)

	// API routes
	mux.HandleFunc("/api/v1/panoramas", s.handlePanoramas)
	mux.HandleFunc("/api/v1/panoramas/", s.handlePanoramasWithName)
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Shutdown gracefully shuts down the server and closes all sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.sessions.CloseAll()
	return err
}

// handlePanoramas handles /api/v1/panoramas
func (s *Server) handlePanoramas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.library.List())
}

// handlePanoramasWithName handles /api/v1/panoramas/:name/*
func (s *Server) handlePanoramasWithName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/panoramas/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Panorama name required", http.StatusBadRequest)
		return
	}

	name := parts[0]
	if _, exists := s.library.Get(name); !exists {
		http.Error(w, "Panorama not found", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1 || parts[1] == "info":
		s.handlePanoramaInfo(w, r, name)
	case parts[1] == "thumb.png":
		s.handleThumbnail(w, r, name)
	case parts[1] == "viewpoints":
		s.handleViewpoints(w, r, name)
	case parts[1] == "next" || parts[1] == "prev":
		s.handleNeighbor(w, r, name, parts[1])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleNeighbor handles GET /api/v1/panoramas/:name/{next,prev}: directory
// playlist navigation with wrap-around, restricted to pictures sharing the
// reference's extension.
func (s *Server) handleNeighbor(w http.ResponseWriter, r *http.Request, name, direction string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := s.library.Get(name)

	playlist, err := scene.NewPlaylist(p.Picture)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to build playlist: %v", err), http.StatusInternalServerError)
		return
	}

	var neighbor scene.Entry
	if direction == "next" {
		neighbor = playlist.Next()
	} else {
		neighbor = playlist.Prev()
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"name": filepath.Base(neighbor.Picture),
	})
}

// handlePanoramaInfo handles GET /api/v1/panoramas/:name/info
func (s *Server) handlePanoramaInfo(w http.ResponseWriter, r *http.Request, name string) {
	p, _ := s.library.Get(name)

	geom, err := scene.NewGeometry(p.Meta)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid panorama metadata: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":                   p.Name,
		"projection":             p.Meta.Projection.String(),
		"cropSize":               geom.CropSize,
		"is360":                  geom.Is360,
		"fovH":                   geom.CenteredHorizonFOV.H,
		"fovV":                   geom.CenteredHorizonFOV.V,
		"minZoomCenteredHorizon": geom.MinZoomCenteredHorizon,
		"minZoomNoMargin":        geom.MinZoomNonCentered,
	})
}

// handleThumbnail handles GET /api/v1/panoramas/:name/thumb.png
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request, name string) {
	thumb, err := s.library.Thumbnail(name)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render thumbnail: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(thumb)
}

// handleViewpoints handles /api/v1/panoramas/:name/viewpoints
func (s *Server) handleViewpoints(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodGet:
		viewpoints, err := s.bookmarks.LoadViewpoints(name)
		if errors.Is(err, store.ErrNotFound) {
			viewpoints = []store.Viewpoint{}
		} else if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load viewpoints: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, viewpoints)

	case http.MethodPost:
		var vp store.Viewpoint
		if err := json.NewDecoder(r.Body).Decode(&vp); err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
		if err := vp.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vp.Created = time.Now().UTC()

		viewpoints, err := s.bookmarks.LoadViewpoints(name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Failed to load viewpoints: %v", err), http.StatusInternalServerError)
			return
		}

		// Same-named viewpoint is replaced.
		replaced := false
		for i := range viewpoints {
			if viewpoints[i].Name == vp.Name {
				viewpoints[i] = vp
				replaced = true
				break
			}
		}
		if !replaced {
			viewpoints = append(viewpoints, vp)
		}

		if err := s.bookmarks.SaveViewpoints(name, viewpoints); err != nil {
			http.Error(w, fmt.Sprintf("Failed to save viewpoints: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, vp)

	case http.MethodDelete:
		vpName := r.URL.Query().Get("name")
		if vpName == "" {
			http.Error(w, "Viewpoint name required", http.StatusBadRequest)
			return
		}

		viewpoints, err := s.bookmarks.LoadViewpoints(name)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Viewpoint not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load viewpoints: %v", err), http.StatusInternalServerError)
			return
		}

		kept := viewpoints[:0]
		for _, existing := range viewpoints {
			if existing.Name != vpName {
				kept = append(kept, existing)
			}
		}
		if len(kept) == len(viewpoints) {
			http.Error(w, "Viewpoint not found", http.StatusNotFound)
			return
		}

		if err := s.bookmarks.SaveViewpoints(name, kept); err != nil {
			http.Error(w, fmt.Sprintf("Failed to save viewpoints: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessions handles /api/v1/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Panorama string `json:"panorama"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	p, exists := s.library.Get(req.Panorama)
	if !exists {
		http.Error(w, "Panorama not found", http.StatusNotFound)
		return
	}

	session, err := s.sessions.Create(p)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open panorama: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       session.ID,
		"panorama": session.Panorama,
	})
}

// handleSessionsWithID handles /api/v1/sessions/:id/*
func (s *Server) handleSessionsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	session, exists := s.sessions.Get(parts[0])
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method == http.MethodDelete {
			s.sessions.Delete(session.ID)
			w.WriteHeader(http.StatusNoContent)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case parts[1] == "view.png":
		s.handleViewFrame(w, r, session)
	case parts[1] == "state":
		writeJSON(w, http.StatusOK, session.State())
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleViewFrame handles
// GET /api/v1/sessions/:id/view.png?w=&h=&phi=&theta=&zoom=
func (s *Server) handleViewFrame(w http.ResponseWriter, r *http.Request, session *Session) {
	width, err := intQuery(r, "w", s.cfg.Snapshot.Width)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := intQuery(r, "h", s.cfg.Snapshot.Height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if width <= 0 || height <= 0 || width > 8192 || height > 8192 {
		http.Error(w, "Display size out of range", http.StatusBadRequest)
		return
	}

	state := session.State()
	phi, err := floatQuery(r, "phi", state.Phi)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	theta, err := floatQuery(r, "theta", state.Theta)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	zoom, err := zoomQuery(r, state.Zoom)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	frame, fitted, err := session.RenderPNG(width, height, zoom, phi, theta)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render frame: %v", err), http.StatusInternalServerError)
		return
	}

	// The fitted perspective may differ from the request; expose it so the
	// client stays in sync without a second round trip.
	stateJSON, _ := json.Marshal(fitted)
	w.Header().Set("X-View-State", string(stateJSON))
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(frame)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
