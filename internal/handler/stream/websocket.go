package stream

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/meetai-labs/meetai/backend/internal/export"
	"github.com/meetai-labs/meetai/backend/internal/logging"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
	chatservice "github.com/meetai-labs/meetai/backend/internal/service/chat"
)

// WebSocketHandler carries the same send/edit/stop operations as the SSE
// endpoints over a single WebSocket connection.
type WebSocketHandler struct {
	workspace *chatservice.Workspace
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket transport.
func NewWebSocketHandler(workspace *chatservice.Workspace) *WebSocketHandler {
	return &WebSocketHandler{
		workspace: workspace,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundFrame struct {
	Type        string            `json:"type"`
	Text        string            `json:"text,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
}

type outboundFrame struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	MessageID string            `json:"messageId,omitempty"`
	Content   string            `json:"content,omitempty"`
	Error     string            `json:"error,omitempty"`
	Export    *export.Directive `json:"export,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// wsConn serializes writes; turns run in their own goroutine so stop
// frames are read while a stream is in flight.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(frame outboundFrame) {
	frame.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		logging.Debug().Err(err).Msg("websocket write failed")
	}
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.workspace.Session(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer raw.Close()

	conn := &wsConn{conn: raw}
	logging.Info().Str("session", sessionID).Msg("websocket connected")

	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		var frame inboundFrame
		if err := raw.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug().Err(err).Str("session", sessionID).Msg("websocket closed")
			}
			// The peer is gone; stop any stream still writing.
			h.workspace.Stop(sessionID)
			return
		}

		switch frame.Type {
		case "send":
			if strings.TrimSpace(frame.Text) == "" && len(frame.Attachments) == 0 {
				continue
			}
			turns.Add(1)
			go func(f inboundFrame) {
				defer turns.Done()
				h.runTurn(conn, sessionID, func(sink chatservice.DeltaSink) (chatservice.TurnResult, error) {
					return h.workspace.SendMessage(r.Context(), sessionID, f.Text, f.Attachments, sink)
				})
			}(frame)
		case "edit":
			turns.Add(1)
			go func(f inboundFrame) {
				defer turns.Done()
				h.runTurn(conn, sessionID, func(sink chatservice.DeltaSink) (chatservice.TurnResult, error) {
					return h.workspace.EditMessage(r.Context(), sessionID, f.MessageID, f.Text, sink)
				})
			}(frame)
		case "stop":
			h.workspace.Stop(sessionID)
		default:
			conn.send(outboundFrame{Type: "error", SessionID: sessionID, Error: "unknown frame type"})
		}
	}
}

func (h *WebSocketHandler) runTurn(conn *wsConn, sessionID string, run func(chatservice.DeltaSink) (chatservice.TurnResult, error)) {
	conn.send(outboundFrame{Type: "start", SessionID: sessionID})

	result, err := run(func(delta string) {
		conn.send(outboundFrame{Type: "delta", SessionID: sessionID, Content: delta})
	})
	if err != nil {
		conn.send(outboundFrame{Type: "error", SessionID: sessionID, Error: err.Error()})
		if !result.Aborted && result.Message.ID == "" {
			return
		}
	}

	final := result.Message
	if directive, found := export.Extract(final.Text); found {
		if err := h.workspace.SetMessageText(sessionID, final.ID, directive.Content); err == nil {
			final.Text = directive.Content
		}
		conn.send(outboundFrame{
			Type:      "export",
			SessionID: sessionID,
			MessageID: final.ID,
			Export:    &directive,
		})
	}

	conn.send(outboundFrame{Type: "message", SessionID: sessionID, MessageID: final.ID, Content: final.Text})
	conn.send(outboundFrame{Type: "end", SessionID: sessionID})
}
