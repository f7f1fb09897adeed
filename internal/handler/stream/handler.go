package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meetai-labs/meetai/backend/internal/export"
	"github.com/meetai-labs/meetai/backend/internal/ingest"
	"github.com/meetai-labs/meetai/backend/internal/logging"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
	chatservice "github.com/meetai-labs/meetai/backend/internal/service/chat"
	"github.com/meetai-labs/meetai/backend/pkg/utils"
)

// Handler streams model responses via Server-Sent Events.
type Handler struct {
	workspace *chatservice.Workspace
}

// New creates the stream handler.
func New(workspace *chatservice.Workspace) *Handler {
	return &Handler{workspace: workspace}
}

// RegisterRoutes registers the streaming endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{sessionID}/messages", h.handleSend)
	r.Post("/sessions/{sessionID}/messages/{messageID}", h.handleEdit)
	r.Post("/sessions/{sessionID}/stop", h.handleStop)
}

// StreamResponse is one streaming event frame.
type StreamResponse struct {
	Event     string            `json:"event"`
	Content   string            `json:"content,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	MessageID string            `json:"messageId,omitempty"`
	Finished  bool              `json:"finished,omitempty"`
	Error     string            `json:"error,omitempty"`
	Export    *export.Directive `json:"export,omitempty"`
}

type sendRequest struct {
	Text        string            `json:"text"`
	Attachments []chat.Attachment `json:"attachments"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	req, ok := h.decodeSendRequest(w, r)
	if !ok {
		return
	}

	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		// Empty input is a no-op: nothing appended, no stream started.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !h.precheck(w, sessionID) {
		return
	}

	h.streamTurn(w, r, sessionID, func(sink chatservice.DeltaSink) (chatservice.TurnResult, error) {
		return h.workspace.SendMessage(r.Context(), sessionID, req.Text, req.Attachments, sink)
	})
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messageID := chi.URLParam(r, "messageID")

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.precheck(w, sessionID) {
		return
	}
	session, err := h.workspace.Session(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if _, ok := session.FindMessage(messageID); !ok {
		utils.RespondError(w, http.StatusNotFound, chatservice.ErrMessageNotFound.Error())
		return
	}

	h.streamTurn(w, r, sessionID, func(sink chatservice.DeltaSink) (chatservice.TurnResult, error) {
		return h.workspace.EditMessage(r.Context(), sessionID, messageID, payload.Text, sink)
	})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.workspace.Session(sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.workspace.Stop(sessionID)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// precheck rejects before any SSE byte is written, so busy and not-found
// still surface as plain HTTP statuses.
func (h *Handler) precheck(w http.ResponseWriter, sessionID string) bool {
	if _, err := h.workspace.Session(sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return false
	}
	if h.workspace.Busy(sessionID) {
		utils.RespondError(w, http.StatusConflict, chatservice.ErrStreamActive.Error())
		return false
	}
	return true
}

func (h *Handler) decodeSendRequest(w http.ResponseWriter, r *http.Request) (sendRequest, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
			return sendRequest{}, false
		}
		return sendRequest{
			Text:        r.FormValue("text"),
			Attachments: ingest.FromMultipart(r.MultipartForm),
		}, true
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return sendRequest{}, false
	}
	return req, true
}

// streamTurn drives one turn and relays it as SSE frames: start, one delta
// per applied chunk, the assembled message, an export directive when the
// completed text carries one, then end.
func (h *Handler) streamTurn(w http.ResponseWriter, r *http.Request, sessionID string, run func(chatservice.DeltaSink) (chatservice.TurnResult, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	h.send(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	result, err := run(func(delta string) {
		h.send(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   delta,
		})
	})
	if err != nil && !errors.Is(err, chatservice.ErrStreamFailed) {
		// Failed before a placeholder existed; nothing in the transcript
		// to point at.
		h.send(w, flusher, StreamResponse{Event: "error", Error: err.Error()})
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("session", sessionID).Msg("turn failed")
	}

	final := result.Message
	if directive, found := h.extractExport(sessionID, final); found {
		final.Text = directive.Content
		h.send(w, flusher, StreamResponse{
			Event:     "export",
			SessionID: sessionID,
			MessageID: final.ID,
			Export:    directive,
		})
	}

	h.send(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		MessageID: final.ID,
		Content:   final.Text,
	})
	h.send(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})
}

// extractExport inspects a completed response for a trailing export
// directive, stores the stripped text, and returns the directive.
func (h *Handler) extractExport(sessionID string, msg chat.Message) (*export.Directive, bool) {
	directive, found := export.Extract(msg.Text)
	if !found {
		return nil, false
	}

	if err := h.workspace.SetMessageText(sessionID, msg.ID, directive.Content); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("failed to strip export tag")
	}
	return &directive, true
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}
