package chat

import "time"

// Session is one conversation: an ordered transcript plus display metadata.
// Messages only ever grow by append or shrink by truncate-and-append; they
// are never reordered.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy so callers can mutate snapshots freely.
func (s Session) Clone() Session {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// FindMessage returns the position of a message by identifier.
func (s Session) FindMessage(messageID string) (int, bool) {
	for i, m := range s.Messages {
		if m.ID == messageID {
			return i, true
		}
	}
	return -1, false
}
