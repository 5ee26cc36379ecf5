// Package dialogue drives the per-session slot-filling conversation.
//
// The state machine is pure in-memory: it mutates a Session and its
// document's slot Registry, and returns the assistant messages produced by
// each transition. Durable storage of sessions and registries is the
// caller's concern, which keeps every transition free of I/O.
package dialogue

import (
	"time"
)

// Role identifies the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// State is the session's conversation state.
type State string

const (
	// StateIdle means no slot is current: the dialogue has not started.
	StateIdle State = "IDLE"
	// StateAwaitingInput means a prompt is out and a reply is expected.
	StateAwaitingInput State = "AWAITING_INPUT"
	// StateComplete is terminal: every slot is resolved.
	StateComplete State = "COMPLETE"
)

// NoSlot is the cursor value when no slot is awaiting a reply.
const NoSlot int64 = -1

// Message is one entry in the append-only conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// SlotID links the message to the slot it concerns, or NoSlot.
	SlotID int64 `json:"slot_id"`
}

// Session is one active dialogue over one document snapshot. It holds a
// non-owning reference to the document by id; the slot registry is passed
// into each transition alongside it.
type Session struct {
	ID         string    `json:"session_id"`
	DocumentID int64     `json:"document_id"`
	State      State     `json:"state"`
	Cursor     int64     `json:"cursor"` // slot awaiting a reply, or NoSlot
	History    []Message `json:"history"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewSession creates an IDLE session bound to a document.
func NewSession(id string, documentID int64, now time.Time) *Session {
	return &Session{
		ID:         id,
		DocumentID: documentID,
		State:      StateIdle,
		Cursor:     NoSlot,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// append records a history message and bumps UpdatedAt.
func (s *Session) append(m Message) {
	s.History = append(s.History, m)
	s.UpdatedAt = m.Timestamp
}
