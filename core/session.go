package core

import (
	"sync"

	"github.com/google/uuid"
)

// Session tracks what has already been pushed on one live HTTP/2
// connection. It is owned by exactly one connection: created when the
// connection opens, discarded when it closes, never shared.
type Session struct {
	// ID identifies the connection in logs.
	ID uuid.UUID

	mu        sync.Mutex
	pushed    map[string]struct{}
	remaining int
}

// NewSession creates a session with a connection-lifetime push budget.
// budget <= 0 means the connection never pushes.
func NewSession(budget int) *Session {
	return &Session{
		ID:        uuid.New(),
		pushed:    make(map[string]struct{}),
		remaining: budget,
	}
}

// Claim reserves a push slot for path. It returns false if the path was
// already promised on this connection or the budget is exhausted.
// Claiming is idempotent per path: the first caller wins.
func (s *Session) Claim(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return false
	}
	if _, ok := s.pushed[path]; ok {
		return false
	}
	s.pushed[path] = struct{}{}
	s.remaining--
	return true
}

// Release returns a claimed slot, used when a candidate fails after
// claiming. The path stays in the pushed set so it is not retried on
// this connection.
func (s *Session) Release() {
	s.mu.Lock()
	s.remaining++
	s.mu.Unlock()
}

// Pushed reports whether path has been promised on this connection.
func (s *Session) Pushed(path string) bool {
	s.mu.Lock()
	_, ok := s.pushed[path]
	s.mu.Unlock()
	return ok
}

// Remaining returns the remaining connection-lifetime budget.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}
