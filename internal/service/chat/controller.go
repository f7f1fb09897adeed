package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/meetai-labs/meetai/backend/internal/logging"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
)

// FailureNotice is written into the placeholder message when the model call
// fails; it becomes part of the transcript.
const FailureNotice = "Sorry, I encountered an error. Please try again."

// ChunkStream is a lazy, finite, non-restartable sequence of text
// fragments. Recv returns io.EOF after the last fragment.
type ChunkStream interface {
	Recv() (string, error)
	Close()
}

// Streamer is the remote generative collaborator. It is stateless per
// call: every invocation receives the complete ordered history.
type Streamer interface {
	StreamTurn(ctx context.Context, history []chat.Message) (ChunkStream, error)
}

// DeltaSink observes each applied chunk, in arrival order. May be nil.
type DeltaSink func(delta string)

// phase enumerates the controller's states for one turn.
type phase int

const (
	phaseIdle phase = iota
	phaseRequesting
	phaseStreaming
	phaseFinalizing
	phaseAborted
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseRequesting:
		return "requesting"
	case phaseStreaming:
		return "streaming"
	case phaseFinalizing:
		return "finalizing"
	case phaseAborted:
		return "aborted"
	case phaseFailed:
		return "failed"
	}
	return "unknown"
}

// streamHandle is the transient control state of one in-flight turn. It is
// runtime-only and never persisted with the session record.
type streamHandle struct {
	abort chan struct{}
	once  sync.Once
}

func newStreamHandle() *streamHandle {
	return &streamHandle{abort: make(chan struct{})}
}

func (h *streamHandle) signal() {
	h.once.Do(func() { close(h.abort) })
}

func (h *streamHandle) aborted() bool {
	select {
	case <-h.abort:
		return true
	default:
		return false
	}
}

// TurnResult reports the outcome of one turn.
type TurnResult struct {
	// Message is the final state of the response message.
	Message chat.Message
	// Aborted is set when the turn was cancelled; partial text is kept.
	Aborted bool
}

// Controller owns the single in-flight streaming operation per session.
// It creates exactly one thinking placeholder per invocation, applies
// chunks in arrival order against fresh store snapshots, and honors
// cooperative cancellation between chunk applications.
type Controller struct {
	store    *Store
	streamer Streamer

	mu     sync.Mutex
	active map[string]*streamHandle
}

// NewController wires the controller to its store and model collaborator.
func NewController(store *Store, streamer Streamer) *Controller {
	return &Controller{
		store:    store,
		streamer: streamer,
		active:   make(map[string]*streamHandle),
	}
}

// Busy reports whether a stream is active for the session.
func (c *Controller) Busy(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[sessionID]
	return ok
}

// Cancel signals the session's in-flight stream, if any, to stop before
// applying its next chunk. Already-applied text is kept.
func (c *Controller) Cancel(sessionID string) {
	c.mu.Lock()
	handle, ok := c.active[sessionID]
	c.mu.Unlock()
	if ok {
		handle.signal()
	}
}

// Reservation holds a session's stream slot between claiming it and the
// turn that uses it. Callers that mutate the transcript before streaming
// reserve first, so a racing send cannot slip in between the mutation and
// the turn it belongs to.
type Reservation struct {
	c         *Controller
	sessionID string
	handle    *streamHandle
}

// Reserve claims the session's stream slot without starting a turn. Fails
// with ErrStreamActive while another turn holds it.
func (c *Controller) Reserve(sessionID string) (*Reservation, error) {
	handle, err := c.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	return &Reservation{c: c, sessionID: sessionID, handle: handle}, nil
}

// Release frees the slot without running a turn. Safe to call twice.
func (r *Reservation) Release() {
	if r.handle == nil {
		return
	}
	r.handle = nil
	r.c.release(r.sessionID)
}

// RunTurn drives one full response turn for a session: it appends a
// thinking placeholder, invokes the streamer with the supplied history,
// and folds chunks into the placeholder until the stream ends, fails, or
// is cancelled. At most one turn may run per session; concurrent calls
// fail with ErrStreamActive.
func (c *Controller) RunTurn(ctx context.Context, sessionID string, history []chat.Message, sink DeltaSink) (TurnResult, error) {
	reservation, err := c.Reserve(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	return reservation.Run(ctx, history, sink)
}

// Run consumes the reservation and drives the turn.
func (r *Reservation) Run(ctx context.Context, history []chat.Message, sink DeltaSink) (TurnResult, error) {
	c, sessionID, handle := r.c, r.sessionID, r.handle
	defer r.Release()

	placeholder := chat.Message{
		ID:         chat.NewMessageID(),
		Role:       chat.RoleModel,
		Timestamp:  time.Now().UTC(),
		IsThinking: true,
	}
	if err := c.store.AppendMessage(sessionID, placeholder); err != nil {
		return TurnResult{}, err
	}

	state := phaseRequesting
	logging.Debug().Str("session", sessionID).Str("phase", state.String()).Msg("turn started")

	stream, err := c.streamer.StreamTurn(ctx, history)
	if err != nil {
		c.fail(sessionID, placeholder.ID, state, err)
		return c.result(sessionID, placeholder.ID, false), fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	defer stream.Close()

	var accumulated string
	for {
		if handle.aborted() || ctx.Err() != nil {
			state = phaseAborted
			break
		}

		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			state = phaseFinalizing
			break
		}
		if recvErr != nil {
			c.fail(sessionID, placeholder.ID, state, recvErr)
			return c.result(sessionID, placeholder.ID, false), fmt.Errorf("%w: %v", ErrStreamFailed, recvErr)
		}
		if chunk == "" {
			continue
		}

		// Re-check between receipt and application: a cancel observed
		// here drops the chunk rather than applying it.
		if handle.aborted() {
			state = phaseAborted
			break
		}

		state = phaseStreaming
		accumulated += chunk
		// Always patch the freshest snapshot, targeting the message by
		// identifier, never by position.
		if err := c.store.UpdateMessage(sessionID, placeholder.ID, func(m *chat.Message) {
			m.Text = accumulated
			m.IsThinking = false
		}); err != nil {
			// Session vanished mid-stream (deleted); stop consuming.
			logging.Warn().Err(err).Str("session", sessionID).Msg("write target gone, abandoning stream")
			state = phaseAborted
			break
		}
		if sink != nil {
			sink(chunk)
		}
	}

	aborted := state == phaseAborted
	// Clear the thinking flag on every exit path, even when no chunk was
	// ever applied.
	_ = c.store.UpdateMessage(sessionID, placeholder.ID, func(m *chat.Message) {
		m.IsThinking = false
	})

	logging.Debug().
		Str("session", sessionID).
		Str("phase", state.String()).
		Int("chars", len(accumulated)).
		Msg("turn finished")

	return c.result(sessionID, placeholder.ID, aborted), nil
}

func (c *Controller) acquire(sessionID string) (*streamHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[sessionID]; ok {
		return nil, ErrStreamActive
	}
	handle := newStreamHandle()
	c.active[sessionID] = handle
	return handle, nil
}

func (c *Controller) release(sessionID string) {
	c.mu.Lock()
	delete(c.active, sessionID)
	c.mu.Unlock()
}

// fail replaces the placeholder's text with the fixed notice and clears
// the thinking flag. The transcript is the only user-visible error surface.
func (c *Controller) fail(sessionID, messageID string, state phase, cause error) {
	logging.Error().Err(cause).Str("session", sessionID).Str("phase", state.String()).Msg("stream failed")
	_ = c.store.UpdateMessage(sessionID, messageID, func(m *chat.Message) {
		m.Text = FailureNotice
		m.IsThinking = false
	})
}

func (c *Controller) result(sessionID, messageID string, aborted bool) TurnResult {
	res := TurnResult{Aborted: aborted}
	session, err := c.store.Get(sessionID)
	if err != nil {
		return res
	}
	if idx, ok := session.FindMessage(messageID); ok {
		res.Message = session.Messages[idx]
	}
	return res
}
