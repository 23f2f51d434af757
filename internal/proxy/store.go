package proxy

// Store is the persistence abstraction for play sessions. The SessionManager
// uses Store for all reads and writes and adds locking, expiry, and id
// generation on top; Store implementations themselves are not required to be
// concurrency-safe.
type Store interface {
	GetSession(id SessionID) (*PlaySession, bool)
	SetSession(s *PlaySession)
	DeleteSession(id SessionID) bool
	ListSessionIDs() []SessionID
}

// InMemoryStore is an in-memory implementation of Store. Sessions are lost on
// process restart, which is acceptable: they are meant to be short-lived.
type InMemoryStore struct {
	sessions map[SessionID]*PlaySession
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[SessionID]*PlaySession),
	}
}

// GetSession implements Store.GetSession.
func (s *InMemoryStore) GetSession(id SessionID) (*PlaySession, bool) {
	ps, ok := s.sessions[id]
	return ps, ok
}

// SetSession implements Store.SetSession.
func (s *InMemoryStore) SetSession(ps *PlaySession) {
	s.sessions[ps.ID] = ps
}

// DeleteSession implements Store.DeleteSession. It reports whether a session
// with the given id existed.
func (s *InMemoryStore) DeleteSession(id SessionID) bool {
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// ListSessionIDs implements Store.ListSessionIDs.
func (s *InMemoryStore) ListSessionIDs() []SessionID {
	ids := make([]SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
