package proxy

import "time"

// SessionID is the opaque token handed to players (e.g. "play_1a2b3c4d5e6f").
type SessionID string

// PlaySession is the server-side record behind one play token. It maps the
// token to the upstream source URL so the raw URL never has to reach the
// player UI directly.
type PlaySession struct {
	ID        SessionID
	SourceURL string
	Title     string
	SourceID  string // optional catalog id supplied at creation

	CreatedAt time.Time
	ExpiresAt time.Time

	// Access metadata, mutated only by SessionManager.Get.
	LastAccessAt time.Time // zero until the first successful lookup
	AccessCount  int64
}

// SessionStats summarizes the session table. ActiveSessions counts sessions
// looked up within the last 30 minutes.
type SessionStats struct {
	TotalSessions  int
	ActiveSessions int
}
