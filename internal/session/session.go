// Package session keeps per-conversation chat history in memory.
//
// History is bounded per session; the oldest messages fall off once the
// limit is reached. State is process-local: restarting the server clears
// all conversations.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plantia/plantia/internal/log"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an in-memory, bounded chat history keyed by session id.
// Safe for concurrent use.
type Store struct {
	maxMessages int
	logger      log.Logger

	mu       sync.RWMutex
	sessions map[string][]Message
}

// NewStore creates a store keeping at most maxMessages per session.
func NewStore(maxMessages int, logger log.Logger) *Store {
	if maxMessages < 1 {
		maxMessages = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		maxMessages: maxMessages,
		logger:      logger.With("component", "session"),
		sessions:    make(map[string][]Message),
	}
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a well-formed session identifier.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Append records one message, evicting the oldest when the session exceeds
// the configured limit.
func (s *Store) Append(sessionID, role, content string) {
	msg := Message{Role: role, Content: content, CreatedAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], msg)
	if overflow := len(history) - s.maxMessages; overflow > 0 {
		history = history[overflow:]
	}
	s.sessions[sessionID] = history
}

// History returns a copy of the session's messages, oldest first.
func (s *Store) History(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Clear drops a session's history.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
