package chat

import (
	"errors"
	"sync"

	"github.com/meetai-labs/meetai/backend/internal/logging"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
)

var (
	// ErrSessionNotFound reports an unknown session identifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMessageNotFound reports an unknown message identifier within a session.
	ErrMessageNotFound = errors.New("message not found")
	// ErrStreamActive reports that a stream is already running for the session.
	ErrStreamActive = errors.New("stream already active for session")
	// ErrStreamFailed reports that the model call failed before or during consumption.
	ErrStreamFailed = errors.New("stream failed")
	// ErrEmptyMessage reports a send with no text and no attachments.
	ErrEmptyMessage = errors.New("empty message")
)

// Persister receives the full session list after every store mutation.
// Failures are logged by the store and never block in-memory operation.
type Persister interface {
	SaveSessions(sessions []chat.Session) error
	ClearSessions() error
}

// Store holds every session, keyed by identifier, in insertion order.
// Reads hand out deep copies and writes replace whole session records, so
// callers patch the freshest snapshot instead of mutating shared state.
type Store struct {
	mu        sync.RWMutex
	order     []string
	sessions  map[string]chat.Session
	persister Persister
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]chat.Session)}
}

// SetPersister attaches the persistence collaborator. Pass nil to detach.
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	s.persister = p
	s.mu.Unlock()
}

// Get returns a deep copy of the session.
func (s *Store) Get(id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Upsert inserts or replaces a whole session record.
func (s *Store) Upsert(session chat.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		s.order = append(s.order, session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	s.persistLocked()
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}

	delete(s.sessions, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.persistLocked()
	return nil
}

// List returns deep copies of every session in insertion order. Display
// ordering is the caller's concern.
func (s *Store) List() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

// Len reports the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// AppendMessage appends a message to the session transcript.
func (s *Store) AppendMessage(sessionID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	session = session.Clone()
	session.Messages = append(session.Messages, msg.Clone())
	s.sessions[sessionID] = session
	s.persistLocked()
	return nil
}

// UpdateMessage patches one message, located by identifier, against the
// latest snapshot. The patch function receives a copy and its result is
// written back as a whole-session replacement.
func (s *Store) UpdateMessage(sessionID, messageID string, patch func(*chat.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	session = session.Clone()
	idx, ok := session.FindMessage(messageID)
	if !ok {
		return ErrMessageNotFound
	}

	patch(&session.Messages[idx])
	s.sessions[sessionID] = session
	s.persistLocked()
	return nil
}

// ReplaceMessages swaps the whole transcript.
func (s *Store) ReplaceMessages(sessionID string, messages []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	session = session.Clone()
	session.Messages = make([]chat.Message, len(messages))
	for i, m := range messages {
		session.Messages[i] = m.Clone()
	}
	s.sessions[sessionID] = session
	s.persistLocked()
	return nil
}

// SetTitle updates a session's display title.
func (s *Store) SetTitle(sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	session = session.Clone()
	session.Title = title
	s.sessions[sessionID] = session
	s.persistLocked()
	return nil
}

func (s *Store) listLocked() []chat.Session {
	out := make([]chat.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Clone())
	}
	return out
}

// persistLocked mirrors the current list to the persistence collaborator.
// An empty list clears the persisted entry instead of writing one.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}

	var err error
	if len(s.sessions) == 0 {
		err = s.persister.ClearSessions()
	} else {
		err = s.persister.SaveSessions(s.listLocked())
	}
	if err != nil {
		logging.Warn().Err(err).Msg("session persistence failed")
	}
}
