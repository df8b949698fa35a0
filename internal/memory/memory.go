// Package memory keeps bounded per-session conversation history for
// the chat mode.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Memory is a FIFO-bounded conversation history. Oldest turns are
// evicted when either the turn or character budget is exceeded.
type Memory struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
	maxChars int
}

// New creates a conversation memory. maxTurns <= 0 defaults to 20;
// maxChars <= 0 disables the character budget.
func New(maxTurns, maxChars int) *Memory {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &Memory{maxTurns: maxTurns, maxChars: maxChars}
}

// Append records a single turn and evicts from the front as needed.
func (m *Memory) Append(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(role, content)
}

// AppendExchange records a user/assistant pair atomically, so eviction
// can never separate a question from its answer mid-update.
func (m *Memory) AppendExchange(user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.append("user", user)
	m.append("assistant", assistant)
}

func (m *Memory) append(role, content string) {
	m.turns = append(m.turns, Turn{Role: role, Content: content, At: time.Now().UTC()})
	for len(m.turns) > m.maxTurns {
		m.turns = m.turns[1:]
	}
	if m.maxChars > 0 {
		for len(m.turns) > 1 && m.chars() > m.maxChars {
			m.turns = m.turns[1:]
		}
	}
}

func (m *Memory) chars() int {
	total := 0
	for _, t := range m.turns {
		total += len(t.Content)
	}
	return total
}

// History returns a copy of the retained turns, oldest first.
func (m *Memory) History() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Last returns a copy of the most recent n turns, oldest first.
func (m *Memory) Last(n int) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.turns) {
		n = len(m.turns)
	}
	out := make([]Turn, n)
	copy(out, m.turns[len(m.turns)-n:])
	return out
}

// ContextString renders the last n turns as prompt context.
func (m *Memory) ContextString(n int) string {
	turns := m.Last(n)
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case "user":
			b.WriteString("User: ")
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			b.WriteString(t.Role + ": ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Len returns the number of retained turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Clear drops all history.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// SessionStore holds one Memory per session key.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Memory
	maxTurns int
	maxChars int
}

// NewSessionStore creates a store whose sessions share the given
// budgets.
func NewSessionStore(maxTurns, maxChars int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Memory),
		maxTurns: maxTurns,
		maxChars: maxChars,
	}
}

// Get returns the session's memory, creating it on first use.
func (s *SessionStore) Get(key string) *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem, ok := s.sessions[key]
	if !ok {
		mem = New(s.maxTurns, s.maxChars)
		s.sessions[key] = mem
	}
	return mem
}

// Drop removes a session entirely.
func (s *SessionStore) Drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}
