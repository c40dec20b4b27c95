// Package types provides the core data types for the reasoner server.
package types

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents a conversation with the orchestration engine.
type Session struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	History []Turn      `json:"history"`
	Time    SessionTime `json:"time"`
}

// Turn is a single exchange entry in a session history.
type Turn struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// SessionTime contains timestamps for a session.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// SessionInfo is the list view of a session.
type SessionInfo struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Turns int         `json:"turns"`
	Time  SessionTime `json:"time"`
}

// Info returns the list view of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:    s.ID,
		Title: s.Title,
		Turns: len(s.History),
		Time:  s.Time,
	}
}

// Clone returns a deep copy so callers never share the history slice.
func (s *Session) Clone() *Session {
	c := *s
	c.History = make([]Turn, len(s.History))
	copy(c.History, s.History)
	return &c
}

// LastTurns returns at most n trailing turns.
func (s *Session) LastTurns(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n >= len(s.History) {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
