package memory

import (
	"context"
	"sync"
	"time"
)

// WindowConfig holds configuration for SessionWindows.
type WindowConfig struct {
	// Size is the number of turns kept per session. When exceeded, the
	// oldest turn is dropped. Default: 5.
	Size int

	// IdleTTL is how long a session may go without a new turn before Sweep
	// forgets it. Zero disables expiry. Default: 1 hour.
	IdleTTL time.Duration
}

// DefaultWindowConfig returns a WindowConfig with the documented defaults.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{Size: 5, IdleTTL: time.Hour}
}

// SessionWindows is the in-process Window: a map from session ID to a
// bounded FIFO of turns. It is safe for concurrent use; sessions never
// observe each other's turns.
type SessionWindows struct {
	mu       sync.Mutex
	config   WindowConfig
	sessions map[string]*sessionWindow
	now      func() time.Time
}

type sessionWindow struct {
	turns    []Turn
	lastSeen time.Time
}

// NewSessionWindows creates an empty SessionWindows.
func NewSessionWindows(cfg WindowConfig) *SessionWindows {
	if cfg.Size <= 0 {
		cfg.Size = DefaultWindowConfig().Size
	}
	if cfg.IdleTTL < 0 {
		cfg.IdleTTL = 0
	}
	return &SessionWindows{
		config:   cfg,
		sessions: make(map[string]*sessionWindow),
		now:      time.Now,
	}
}

// Turns implements Window. The returned slice is a copy.
func (w *SessionWindows) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.sessions[sessionID]
	if s == nil {
		return nil, nil
	}
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// Append implements Window.
func (w *SessionWindows) Append(_ context.Context, sessionID string, turn Turn) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if turn.At.IsZero() {
		turn.At = now
	}

	s := w.sessions[sessionID]
	if s == nil {
		s = &sessionWindow{}
		w.sessions[sessionID] = s
	}
	s.turns = append(s.turns, turn)
	if excess := len(s.turns) - w.config.Size; excess > 0 {
		s.turns = append([]Turn(nil), s.turns[excess:]...)
	}
	s.lastSeen = now
	return nil
}

// Sweep forgets sessions idle for longer than IdleTTL and returns how many
// were dropped.
func (w *SessionWindows) Sweep(now time.Time) int {
	if w.config.IdleTTL == 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	dropped := 0
	for id, s := range w.sessions {
		if now.Sub(s.lastSeen) > w.config.IdleTTL {
			delete(w.sessions, id)
			dropped++
		}
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (w *SessionWindows) RunSweeper(ctx context.Context, interval time.Duration) {
	if w.config.IdleTTL == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.Sweep(now)
		}
	}
}

// Len returns the number of live sessions.
func (w *SessionWindows) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

var _ Window = (*SessionWindows)(nil)
