package proxy

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSessionTTL is how long a session stays readable after creation.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultSweepInterval is how often the background sweeper removes
	// expired sessions.
	DefaultSweepInterval = time.Hour

	// activeWindow defines "active" for SessionStats: a session counts as
	// active if it was looked up within this window.
	activeWindow = 30 * time.Minute

	idPrefix = "play_"
	idLength = 12
)

var (
	// ErrInvalidArgument is returned by Create when sourceURL or title is empty.
	ErrInvalidArgument = errors.New("sourceUrl and title must be non-empty")

	// ErrSessionNotFound is returned by Get for absent or expired sessions.
	ErrSessionNotFound = errors.New("play session not found or expired")
)

// SessionManager is the concurrency-safe owner of the session table. All
// access goes through Create/Get/Delete/Stats; the underlying Store is never
// exposed to callers.
type SessionManager struct {
	mu    sync.Mutex
	store Store
	ttl   time.Duration
}

// NewSessionManager constructs a manager with a default in-memory store.
// If ttl <= 0, DefaultSessionTTL is used.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return NewSessionManagerWithStore(NewInMemoryStore(), ttl)
}

// NewSessionManagerWithStore constructs a manager that uses the given Store.
// Useful for testing or for plugging in a different backend.
func NewSessionManagerWithStore(store Store, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{store: store, ttl: ttl}
}

// Create issues a new session for the given source URL and title. sourceID is
// optional and may be empty. It returns the opaque session id. Expired
// sessions are swept opportunistically as a side effect.
func (m *SessionManager) Create(sourceURL, title, sourceID string) (SessionID, error) {
	if strings.TrimSpace(sourceURL) == "" || strings.TrimSpace(title) == "" {
		return "", ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.sweepLocked(now)

	var id SessionID
	for {
		var err error
		id, err = newSessionID(sourceURL, title, now)
		if err != nil {
			return "", err
		}
		// Regenerate on the off chance a live session already holds this id.
		if _, exists := m.store.GetSession(id); !exists {
			break
		}
	}

	m.store.SetSession(&PlaySession{
		ID:        id,
		SourceURL: sourceURL,
		Title:     title,
		SourceID:  sourceID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	})

	return id, nil
}

// Get looks up a session by id. Expired entries are deleted as a side effect
// and reported as ErrSessionNotFound. On success the access counter and
// last-access timestamp are bumped and a snapshot of the session is returned;
// callers never see the internal mutable record.
func (m *SessionManager) Get(id SessionID) (PlaySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.store.GetSession(id)
	if !ok {
		return PlaySession{}, ErrSessionNotFound
	}

	now := time.Now().UTC()
	if now.After(s.ExpiresAt) {
		m.store.DeleteSession(id)
		return PlaySession{}, ErrSessionNotFound
	}

	s.AccessCount++
	s.LastAccessAt = now

	return *s, nil
}

// Delete removes a session if present and reports whether it existed.
func (m *SessionManager) Delete(id SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteSession(id)
}

// Stats sweeps expired sessions and returns counts over the remaining table.
func (m *SessionManager) Stats() SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.sweepLocked(now)

	var stats SessionStats
	for _, id := range m.store.ListSessionIDs() {
		s, ok := m.store.GetSession(id)
		if !ok {
			continue
		}
		stats.TotalSessions++
		if !s.LastAccessAt.IsZero() && now.Sub(s.LastAccessAt) < activeWindow {
			stats.ActiveSessions++
		}
	}
	return stats
}

// Sweep removes all expired sessions and returns how many were removed.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(time.Now().UTC())
}

// RunSweeper periodically sweeps expired sessions until ctx is cancelled,
// bounding memory growth from abandoned sessions. onSweep, if non-nil, is
// invoked with the removed count after each sweep that removed anything.
// Intended to be run as a goroutine owned by the process lifecycle.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// sweepLocked removes expired sessions. Caller must hold m.mu.
func (m *SessionManager) sweepLocked(now time.Time) int {
	removed := 0
	for _, id := range m.store.ListSessionIDs() {
		if s, ok := m.store.GetSession(id); ok && now.After(s.ExpiresAt) {
			m.store.DeleteSession(id)
			removed++
		}
	}
	return removed
}

// newSessionID derives an unpredictable, collision-resistant id from the
// session inputs, the current time, and a fresh random nonce, truncated and
// prefixed with the "play_" namespace tag.
func newSessionID(sourceURL, title string, now time.Time) (SessionID, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|", sourceURL, title, now.UnixNano())
	h.Write(nonce)

	return SessionID(idPrefix + hex.EncodeToString(h.Sum(nil))[:idLength]), nil
}
