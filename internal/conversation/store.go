// Package conversation provides the in-memory bounded conversation store.
//
// Each conversation key (a channel ID, a "channel:thread" composite, a chat
// ID, or a phone number) owns an independent ordered log of turns, capped at
// a fixed number of entries. Logs live for the lifetime of the process; there
// is no persistence layer.
package conversation

import "sync"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultLimit is the per-key history cap used when none is configured.
const DefaultLimit = 20

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store keeps a bounded ordered message log per conversation key.
//
// A single adapter dispatches events run-to-completion, so most access is
// effectively serial. The webhook adapter however processes deliveries on
// detached goroutines, so the store locks anyway.
type Store struct {
	mu    sync.RWMutex
	limit int
	logs  map[string][]Message
}

// NewStore creates a store with the given per-key cap.
// A limit of 0 or less uses DefaultLimit.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit: limit,
		logs:  make(map[string][]Message),
	}
}

// Limit returns the per-key history cap.
func (s *Store) Limit() int {
	return s.limit
}

// Append adds a message to the keyed log, evicting the oldest entries
// when the log would exceed the cap. The log is created on first append.
func (s *Store) Append(key string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.logs[key], msg)
	if len(history) > s.limit {
		history = history[len(history)-s.limit:]
	}
	s.logs[key] = history
}

// Get returns a copy of the keyed log in order. A key that has never been
// appended to yields nil.
func (s *Store) Get(key string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.logs[key]
	if history == nil {
		return nil
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Len returns the number of messages stored for key.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[key])
}
