package chat

import (
	"time"

	"github.com/meetai-labs/meetai/backend/internal/model/chat"
)

// RewriteHistory computes the transcript that results from editing one
// message: everything after the edited message is discarded and the message
// itself is replaced in place, keeping its identity slot but taking the new
// text and a refreshed timestamp. The rewrite happens even when the new
// text equals the old one, since an edit always triggers regeneration.
func RewriteHistory(session chat.Session, messageID, newText string, now time.Time) ([]chat.Message, error) {
	idx, ok := session.FindMessage(messageID)
	if !ok {
		return nil, ErrMessageNotFound
	}

	edited := session.Messages[idx].Clone()
	edited.Text = newText
	edited.Timestamp = now

	history := make([]chat.Message, 0, idx+1)
	for _, m := range session.Messages[:idx] {
		history = append(history, m.Clone())
	}
	return append(history, edited), nil
}
