package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Message is a single turn in a session transcript. Text is mutable only
// while a stream is writing into it or while an edit rewrites it; a message
// with IsThinking set is owned by the stream controller until the stream
// finishes or aborts.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
	IsThinking  bool         `json:"isThinking,omitempty"`
}

// NewMessageID returns a ULID, sortable by arrival within a session.
func NewMessageID() string {
	return ulid.Make().String()
}

// Clone returns a copy with its own attachment slice.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return out
}
