package chattypes

import (
	"sync"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	// RoleUser marks text typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks text produced by the model.
	RoleAssistant Role = "assistant"
)

// Message represents a single turn in the conversation history.
// Messages are immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSettings holds the per-session selections made in the presentation shell.
type SessionSettings struct {
	SelectedModel    string `json:"selected_model"`
	WebSearchEnabled bool   `json:"web_search_enabled"`
}

// ChatSession is the conversation state for one active session: the ordered
// message history, the current settings and the single-turn guard.
// History only ever grows; existing entries are never edited.
type ChatSession struct {
	id        string
	createdAt time.Time

	mu        sync.RWMutex
	messages  []Message
	settings  SessionSettings
	updatedAt time.Time
	turnBusy  bool
}

// SessionSnapshot is a point-in-time copy of a ChatSession for rendering.
type SessionSnapshot struct {
	ID        string          `json:"session_id"`
	Settings  SessionSettings `json:"settings"`
	Messages  []Message       `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewChatSession creates an empty session with the given id and settings.
func NewChatSession(id string, settings SessionSettings, now time.Time) *ChatSession {
	return &ChatSession{
		id:        id,
		createdAt: now,
		updatedAt: now,
		settings:  settings,
	}
}

// ID returns the session identifier.
func (s *ChatSession) ID() string {
	return s.id
}

// AppendMessage adds a message to the end of the history.
func (s *ChatSession) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if msg.Timestamp.After(s.updatedAt) {
		s.updatedAt = msg.Timestamp
	}
}

// Messages returns a copy of the conversation history.
func (s *ChatSession) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len returns the number of messages in the history.
func (s *ChatSession) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Settings returns the current session settings.
func (s *ChatSession) Settings() SessionSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the session settings. Callers validate the model first.
func (s *ChatSession) SetSettings(settings SessionSettings, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.updatedAt = now
}

// TryBeginTurn marks the session as having an active turn.
// It returns false when a turn is already running.
func (s *ChatSession) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnBusy {
		return false
	}
	s.turnBusy = true
	return true
}

// EndTurn clears the active turn marker.
func (s *ChatSession) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnBusy = false
}

// TurnActive reports whether a turn is currently running.
func (s *ChatSession) TurnActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnBusy
}

// LastActivity returns the time of the last settings change or appended message.
func (s *ChatSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Touch records activity without changing state.
func (s *ChatSession) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.updatedAt) {
		s.updatedAt = now
	}
}

// Snapshot returns a copy of the session suitable for serialization.
func (s *ChatSession) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return SessionSnapshot{
		ID:        s.id,
		Settings:  s.settings,
		Messages:  messages,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}
