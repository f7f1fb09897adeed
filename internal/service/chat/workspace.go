package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetai-labs/meetai/backend/internal/logging"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
)

const defaultTitle = "New Chat"

// titleLimit caps the derived session title length, in runes.
const titleLimit = 30

// ProfileStore persists the display name of the active user.
type ProfileStore interface {
	SaveUserName(name string) error
}

// Workspace is the session lifecycle manager: it tracks which session is
// current, creates and deletes sessions, and funnels send/edit actions
// into the stream controller. The current-session reference and the
// in-flight stream flags live here, not on the persisted session records.
type Workspace struct {
	store      *Store
	controller *Controller
	profile    ProfileStore

	mu        sync.Mutex
	currentID string
	userName  string
}

// NewWorkspace builds a workspace over a store and controller. profile
// may be nil, in which case the display name is kept in memory only.
func NewWorkspace(store *Store, controller *Controller, profile ProfileStore) *Workspace {
	return &Workspace{
		store:      store,
		controller: controller,
		profile:    profile,
		userName:   "Guest",
	}
}

// Restore seeds the workspace from persisted state and guarantees that a
// current session is resolvable: with nothing persisted, a fresh default
// session is created.
func (w *Workspace) Restore(sessions []chat.Session, userName string) {
	for _, s := range sessions {
		w.store.Upsert(s)
	}
	if userName != "" {
		w.mu.Lock()
		w.userName = userName
		w.mu.Unlock()
	}

	if len(sessions) == 0 {
		w.CreateSession()
		return
	}

	w.mu.Lock()
	w.currentID = mostRecent(sessions).ID
	w.mu.Unlock()
}

// CreateSession provisions a new empty session and makes it current.
func (w *Workspace) CreateSession() chat.Session {
	session := chat.Session{
		ID:        uuid.NewString(),
		Title:     defaultTitle,
		CreatedAt: time.Now().UTC(),
	}
	w.store.Upsert(session)

	w.mu.Lock()
	w.currentID = session.ID
	w.mu.Unlock()

	logging.Info().Str("session", session.ID).Msg("session created")
	return session
}

// DeleteSession removes a session, first cancelling any stream writing
// into it. Deleting the current session re-selects the most recent
// remaining one; deleting the last session bootstraps a replacement so
// "current" never dangles.
func (w *Workspace) DeleteSession(id string) error {
	w.controller.Cancel(id)

	if err := w.store.Delete(id); err != nil {
		return err
	}
	logging.Info().Str("session", id).Msg("session deleted")

	w.mu.Lock()
	wasCurrent := w.currentID == id
	w.mu.Unlock()
	if !wasCurrent {
		return nil
	}

	remaining := w.store.List()
	if len(remaining) == 0 {
		w.CreateSession()
		return nil
	}

	w.mu.Lock()
	w.currentID = mostRecent(remaining).ID
	w.mu.Unlock()
	return nil
}

// Select makes an existing session current.
func (w *Workspace) Select(id string) error {
	if _, err := w.store.Get(id); err != nil {
		return err
	}
	w.mu.Lock()
	w.currentID = id
	w.mu.Unlock()
	return nil
}

// Current returns the current session.
func (w *Workspace) Current() (chat.Session, error) {
	w.mu.Lock()
	id := w.currentID
	w.mu.Unlock()
	return w.store.Get(id)
}

// CurrentID returns the current session identifier.
func (w *Workspace) CurrentID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentID
}

// Session returns a snapshot of one session.
func (w *Workspace) Session(id string) (chat.Session, error) {
	return w.store.Get(id)
}

// SetMessageText rewrites one message's text, targeting it by identifier.
// Used after export-tag extraction to store the stripped content.
func (w *Workspace) SetMessageText(sessionID, messageID, text string) error {
	return w.store.UpdateMessage(sessionID, messageID, func(m *chat.Message) {
		m.Text = text
	})
}

// Sessions lists sessions most recent first.
func (w *Workspace) Sessions() []chat.Session {
	sessions := w.store.List()
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

// SendMessage appends a user turn and streams the model's reply. A send
// with no text and no attachments is a no-op. A send while a stream is
// active is rejected; callers normally prevent this by disabling input.
// The stream slot is claimed before the user turn is appended, so a
// racing send cannot leave behind a user message no stream will answer.
func (w *Workspace) SendMessage(ctx context.Context, sessionID, text string, attachments []chat.Attachment, sink DeltaSink) (TurnResult, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return TurnResult{}, ErrEmptyMessage
	}

	reservation, err := w.controller.Reserve(sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	session, err := w.store.Get(sessionID)
	if err != nil {
		reservation.Release()
		return TurnResult{}, err
	}

	userMsg := chat.Message{
		ID:          chat.NewMessageID(),
		Role:        chat.RoleUser,
		Text:        text,
		Timestamp:   time.Now().UTC(),
		Attachments: attachments,
	}
	if err := w.store.AppendMessage(sessionID, userMsg); err != nil {
		reservation.Release()
		return TurnResult{}, err
	}

	// First message names the session.
	if len(session.Messages) == 0 {
		if title := deriveTitle(text); title != "" {
			if err := w.store.SetTitle(sessionID, title); err != nil {
				reservation.Release()
				return TurnResult{}, err
			}
		}
	}

	history := append(session.Messages, userMsg)
	return reservation.Run(ctx, history, sink)
}

// EditMessage rewrites history at the edited message and regenerates the
// reply from the truncated context. Rejected while a stream is appending
// to the same transcript.
func (w *Workspace) EditMessage(ctx context.Context, sessionID, messageID, newText string, sink DeltaSink) (TurnResult, error) {
	reservation, err := w.controller.Reserve(sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	session, err := w.store.Get(sessionID)
	if err != nil {
		reservation.Release()
		return TurnResult{}, err
	}

	history, err := RewriteHistory(session, messageID, newText, time.Now().UTC())
	if err != nil {
		reservation.Release()
		return TurnResult{}, err
	}

	if err := w.store.ReplaceMessages(sessionID, history); err != nil {
		reservation.Release()
		return TurnResult{}, err
	}

	return reservation.Run(ctx, history, sink)
}

// Stop signals cooperative cancellation of the session's active stream.
func (w *Workspace) Stop(sessionID string) {
	w.controller.Cancel(sessionID)
}

// Busy reports whether the session has a stream in flight.
func (w *Workspace) Busy(sessionID string) bool {
	return w.controller.Busy(sessionID)
}

// UserName returns the active display name.
func (w *Workspace) UserName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.userName
}

// SetUserName updates and persists the display name. Persistence failures
// are logged and do not block the in-memory update.
func (w *Workspace) SetUserName(name string) {
	w.mu.Lock()
	w.userName = name
	w.mu.Unlock()

	if w.profile != nil {
		if err := w.profile.SaveUserName(name); err != nil {
			logging.Warn().Err(err).Msg("profile persistence failed")
		}
	}
}

func deriveTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= titleLimit {
		return trimmed
	}
	return string(runes[:titleLimit]) + "..."
}

func mostRecent(sessions []chat.Session) chat.Session {
	best := sessions[0]
	for _, s := range sessions[1:] {
		if s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	return best
}
