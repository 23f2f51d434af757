package proxy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSessionManager_create_then_get(t *testing.T) {
	m := NewSessionManager(0)

	id, err := m.Create("https://host/path/stream.m3u8", "Episode 1", "vid-42")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(string(id), "play_") {
		t.Errorf("id should carry the play_ prefix, got %q", id)
	}

	s, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.SourceURL != "https://host/path/stream.m3u8" || s.Title != "Episode 1" || s.SourceID != "vid-42" {
		t.Errorf("session fields do not match inputs: %+v", s)
	}
	if s.AccessCount != 1 {
		t.Errorf("expected accessCount 1 after first lookup, got %d", s.AccessCount)
	}
	if s.LastAccessAt.IsZero() {
		t.Error("lastAccessAt should be set after first lookup")
	}
	if !s.ExpiresAt.Equal(s.CreatedAt.Add(DefaultSessionTTL)) {
		t.Errorf("expiresAt should be createdAt + TTL: %v vs %v", s.ExpiresAt, s.CreatedAt)
	}
}

func TestSessionManager_get_increments_access_count(t *testing.T) {
	m := NewSessionManager(0)
	id, err := m.Create("https://host/s.m3u8", "T", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 1; i <= 3; i++ {
		s, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if s.AccessCount != int64(i) {
			t.Errorf("lookup %d: expected accessCount %d, got %d", i, i, s.AccessCount)
		}
	}
}

func TestSessionManager_create_invalid_input(t *testing.T) {
	m := NewSessionManager(0)

	if _, err := m.Create("", "Title", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty sourceUrl: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := m.Create("https://host/s.m3u8", "", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty title: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := m.Create("   ", "Title", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("whitespace sourceUrl: expected ErrInvalidArgument, got %v", err)
	}
}

func TestSessionManager_get_missing(t *testing.T) {
	m := NewSessionManager(0)
	if _, err := m.Get(SessionID("play_doesnotexist")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionManager_get_expired(t *testing.T) {
	store := NewInMemoryStore()
	m := NewSessionManagerWithStore(store, time.Hour)

	id, err := m.Create("https://host/s.m3u8", "T", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Push the session past its TTL.
	s, _ := store.GetSession(id)
	s.ExpiresAt = time.Now().UTC().Add(-time.Minute)

	if _, err := m.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for expired session, got %v", err)
	}
	// Expired entries are deleted lazily by the failed lookup.
	if _, ok := store.GetSession(id); ok {
		t.Error("expired session should be removed on lookup")
	}
	if stats := m.Stats(); stats.TotalSessions != 0 {
		t.Errorf("expired session should not count toward totals: %+v", stats)
	}
}

func TestSessionManager_delete(t *testing.T) {
	m := NewSessionManager(0)
	id, err := m.Create("https://host/s.m3u8", "T", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !m.Delete(id) {
		t.Error("deleting an existing session should report true")
	}
	if m.Delete(id) {
		t.Error("second delete should report false")
	}
	if _, err := m.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestSessionManager_stats_active_window(t *testing.T) {
	m := NewSessionManager(0)

	idle, err := m.Create("https://host/a.m3u8", "A", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	active, err := m.Create("https://host/b.m3u8", "B", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Get(active); err != nil {
		t.Fatalf("Get: %v", err)
	}

	stats := m.Stats()
	if stats.TotalSessions != 2 {
		t.Errorf("expected 2 total sessions, got %d", stats.TotalSessions)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("only the looked-up session is active, got %d", stats.ActiveSessions)
	}
	_ = idle
}

func TestSessionManager_sweep_removes_expired(t *testing.T) {
	store := NewInMemoryStore()
	m := NewSessionManagerWithStore(store, time.Hour)

	keep, _ := m.Create("https://host/a.m3u8", "A", "")
	drop, _ := m.Create("https://host/b.m3u8", "B", "")
	s, _ := store.GetSession(drop)
	s.ExpiresAt = time.Now().UTC().Add(-time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Errorf("expected 1 session swept, got %d", n)
	}
	if _, ok := store.GetSession(keep); !ok {
		t.Error("live session should survive the sweep")
	}
	if _, ok := store.GetSession(drop); ok {
		t.Error("expired session should be swept")
	}
}

func TestSessionManager_sweeper_stops_on_cancel(t *testing.T) {
	m := NewSessionManager(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, time.Millisecond, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancel")
	}
}

func TestNewSessionID_distinct(t *testing.T) {
	const n = 10000
	now := time.Now().UTC()
	seen := make(map[SessionID]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := newSessionID("https://host/s.m3u8", "T", now)
		if err != nil {
			t.Fatalf("newSessionID: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id after %d generations: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestSessionManager_create_distinct_ids(t *testing.T) {
	m := NewSessionManager(0)
	seen := make(map[SessionID]struct{})
	for i := 0; i < 500; i++ {
		id, err := m.Create("https://host/s.m3u8", "T", "")
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate live session id: %s", id)
		}
		seen[id] = struct{}{}
	}
}
