package domain

import (
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser    Role = "user"
	RoleHandler Role = "handler"
)

// Message is a single entry of the dialogue timeline.
// Once appended to a DialogueState it must not be modified.
type Message struct {
	Role Role `json:"role"`

	// Handler is the name of the handler that produced the message.
	// Empty for user messages.
	Handler string `json:"handler,omitempty"`

	Content string `json:"content"`

	// Position is the zero-based index of the message in the history.
	Position int `json:"position"`

	CreatedAt time.Time `json:"created_at"`
}

// DialogueState is the ordered, append-only message history of a session.
// It is not safe for concurrent use: callers serialize turns per session.
type DialogueState struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// NewDialogueState creates an empty history for the given session.
func NewDialogueState(sessionID string) *DialogueState {
	return &DialogueState{
		SessionID: sessionID,
		Messages:  []Message{},
	}
}

// Append adds a message at the end of the history and returns it.
func (s *DialogueState) Append(role Role, handler, content string) Message {
	msg := Message{
		Role:      role,
		Handler:   handler,
		Content:   content,
		Position:  len(s.Messages),
		CreatedAt: time.Now().UTC(),
	}
	s.Messages = append(s.Messages, msg)
	return msg
}

// Len returns the number of messages in the history.
func (s *DialogueState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Messages)
}

// Last returns the most recent message, if any.
func (s *DialogueState) Last() (Message, bool) {
	if s.Len() == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Since returns a copy of the messages appended at or after pos.
func (s *DialogueState) Since(pos int) []Message {
	if pos < 0 {
		pos = 0
	}
	if pos >= s.Len() {
		return []Message{}
	}
	out := make([]Message, len(s.Messages)-pos)
	copy(out, s.Messages[pos:])
	return out
}

// History returns a copy of the full timeline, safe to hand to handlers.
func (s *DialogueState) History() []Message {
	return s.Since(0)
}

// Snapshot creates a deep copy of the state.
func (s *DialogueState) Snapshot() *DialogueState {
	if s == nil {
		return nil
	}
	return &DialogueState{
		SessionID: s.SessionID,
		Messages:  s.History(),
	}
}
