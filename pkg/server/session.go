package server

import (
	"sync"

	"github.com/google/uuid"
)

// ============================================================
// Session Manager
// ============================================================

// Sessions maps bearer tokens to user IDs. Tokens live in memory and
// die with the process.
type Sessions struct {
	mu     sync.Mutex
	tokens map[string]string // token -> userID
}

func NewSessions() *Sessions {
	return &Sessions{
		tokens: make(map[string]string),
	}
}

func (m *Sessions) Issue(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.NewString()
	m.tokens[token] = userID
	return token
}

func (m *Sessions) Resolve(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.tokens[token]
	return userID, ok
}

func (m *Sessions) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, token)
}
