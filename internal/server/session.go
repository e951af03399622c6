package server

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/panoview/internal/projector"
)

// Session is one interactive viewing session: a Projector bound to a
// panorama, rendered on demand. The Projector requires single-goroutine use,
// so every operation goes through the session mutex.
type Session struct {
	ID       string
	Panorama string

	mu       sync.Mutex
	proj     *projector.Projector
	lastUsed time.Time
}

// ViewState describes the session's perspective after the last render.
type ViewState struct {
	Zoom           float64 `json:"zoom"`
	NormalizedZoom float64 `json:"normalizedZoom"`
	Phi            float64 `json:"phi"`
	Theta          float64 `json:"theta"`
	DisplayFOVH    float64 `json:"displayFovH"`
	DisplayFOVV    float64 `json:"displayFovV"`
}

// RenderPNG renders a frame for the requested perspective and returns it PNG
// encoded, together with the fitted view state (offsets may have been
// clamped).
func (s *Session) RenderPNG(w, h int, zoom projector.Zoom, phi, theta float64) ([]byte, ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	if size := s.proj.DisplaySize(); size.X != w || size.Y != h {
		if err := s.proj.SetDisplaySize(w, h, false); err != nil {
			return nil, ViewState{}, fmt.Errorf("set display size: %w", err)
		}
	}
	if err := s.proj.SetView(zoom, phi, theta, false); err != nil {
		return nil, ViewState{}, fmt.Errorf("set view: %w", err)
	}

	// Encode while still holding the lock: the display buffer is reused by
	// the next render.
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.proj.Display()); err != nil {
		return nil, ViewState{}, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), s.viewState(), nil
}

// State returns the current perspective.
func (s *Session) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return s.viewState()
}

func (s *Session) viewState() ViewState {
	return ViewState{
		Zoom:           s.proj.CurrentZoom(),
		NormalizedZoom: s.proj.NormalizedZoom(),
		Phi:            s.proj.OffsetPhi(),
		Theta:          s.proj.OffsetTheta(),
		DisplayFOVH:    s.proj.DisplayFOV().H,
		DisplayFOVV:    s.proj.DisplayFOV().V,
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proj.Close()
}

// SessionManager tracks live viewing sessions and drops idle ones.
type SessionManager struct {
	idle time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager that expires sessions after the given
// idle duration.
func NewSessionManager(idle time.Duration) *SessionManager {
	return &SessionManager{
		idle:     idle,
		sessions: make(map[string]*Session),
	}
}

// Create opens the panorama and registers a new session for it.
func (sm *SessionManager) Create(p Panorama) (*Session, error) {
	proj, err := projector.Open(p.Picture, p.Meta)
	if err != nil {
		return nil, fmt.Errorf("open panorama %s: %w", p.Name, err)
	}

	s := &Session{
		ID:       uuid.New().String(),
		Panorama: p.Name,
		proj:     proj,
		lastUsed: time.Now(),
	}

	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()

	slog.Info("Viewing session created", "session_id", s.ID, "panorama", p.Name)
	return s, nil
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.sessions[id]
	return s, exists
}

// Delete closes and removes a session.
func (sm *SessionManager) Delete(id string) bool {
	sm.mu.Lock()
	s, exists := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if exists {
		s.close()
		slog.Info("Viewing session closed", "session_id", id)
	}
	return exists
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CloseAll closes every session.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// Janitor periodically drops sessions that have been idle for longer than the
// configured timeout, until the context is cancelled.
func (sm *SessionManager) Janitor(ctx context.Context) {
	ticker := time.NewTicker(sm.idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.expire(time.Now().Add(-sm.idle))
		}
	}
}

// expire closes sessions whose last use is before the cutoff.
func (sm *SessionManager) expire(cutoff time.Time) {
	sm.mu.Lock()
	var expired []*Session
	for id, s := range sm.sessions {
		s.mu.Lock()
		idle := s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		s.close()
		slog.Info("Idle viewing session expired", "session_id", s.ID, "panorama", s.Panorama)
	}
}
