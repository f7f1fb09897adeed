package stream_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/meetai-labs/meetai/backend/internal/export"
	streamhandler "github.com/meetai-labs/meetai/backend/internal/handler/stream"
	chatservice "github.com/meetai-labs/meetai/backend/internal/service/chat"
)

type wsFrame struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId"`
	MessageID string            `json:"messageId"`
	Content   string            `json:"content"`
	Error     string            `json:"error"`
	Export    *export.Directive `json:"export"`
	Timestamp int64             `json:"timestamp"`
}

func newWebSocketServer(streamer chatservice.Streamer) (*httptest.Server, *chatservice.Workspace) {
	store := chatservice.NewStore()
	controller := chatservice.NewController(store, streamer)
	workspace := chatservice.NewWorkspace(store, controller, nil)
	workspace.Restore(nil, "")

	r := chi.NewRouter()
	streamhandler.NewWebSocketHandler(workspace).RegisterRoutes(r)
	return httptest.NewServer(r), workspace
}

func dialWebSocket(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readWSFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read err: %v", err)
	}
	return frame
}

func TestWebSocketSendStreamsFrameSequence(t *testing.T) {
	streamer := &scriptedStreamer{stream: &scriptedStream{chunks: []string{"Hel", "lo"}}}
	server, workspace := newWebSocketServer(streamer)
	defer server.Close()

	conn := dialWebSocket(t, server, workspace.CurrentID())
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "send", "text": "hi"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	var kinds []string
	var finalText string
	for {
		frame := readWSFrame(t, conn)
		kinds = append(kinds, frame.Type)
		if frame.Type == "message" {
			finalText = frame.Content
		}
		if frame.Type == "end" {
			break
		}
	}

	want := []string{"start", "delta", "delta", "message", "end"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected frame sequence: %v", kinds)
	}
	if finalText != "Hello" {
		t.Fatalf("unexpected final text: %q", finalText)
	}
}

func TestWebSocketRejectsUnknownSession(t *testing.T) {
	server, _ := newWebSocketServer(&scriptedStreamer{stream: &scriptedStream{}})
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/missing"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func TestWebSocketUnknownFrameType(t *testing.T) {
	server, workspace := newWebSocketServer(&scriptedStreamer{stream: &scriptedStream{}})
	defer server.Close()

	conn := dialWebSocket(t, server, workspace.CurrentID())
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "bogus"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	frame := readWSFrame(t, conn)
	if frame.Type != "error" || frame.Error == "" {
		t.Fatalf("expected an error frame, got %+v", frame)
	}
}

func TestWebSocketStopFrameAbortsMidStream(t *testing.T) {
	streamer := &blockingStreamer{started: make(chan struct{}), gate: make(chan struct{})}
	server, workspace := newWebSocketServer(streamer)
	defer server.Close()

	conn := dialWebSocket(t, server, workspace.CurrentID())
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "send", "text": "hi"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	if frame := readWSFrame(t, conn); frame.Type != "start" {
		t.Fatalf("expected start frame, got %+v", frame)
	}
	if frame := readWSFrame(t, conn); frame.Type != "delta" || frame.Content != "Hel" {
		t.Fatalf("expected first delta, got %+v", frame)
	}

	// The read loop keeps consuming while the turn goroutine is blocked in
	// the stream, so the stop frame lands mid-turn. Give it time to be
	// dispatched before the next chunk is released; the released chunk must
	// then be dropped, not applied.
	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	close(streamer.gate)

	var kinds []string
	var finalText string
	for {
		frame := readWSFrame(t, conn)
		kinds = append(kinds, frame.Type)
		if frame.Type == "message" {
			finalText = frame.Content
		}
		if frame.Type == "end" {
			break
		}
	}

	if strings.Join(kinds, ",") != "message,end" {
		t.Fatalf("unexpected frames after stop: %v", kinds)
	}
	if finalText != "Hel" {
		t.Fatalf("partial text should be kept as-is, got %q", finalText)
	}

	session, _ := workspace.Session(workspace.CurrentID())
	last := session.Messages[len(session.Messages)-1]
	if last.Text != "Hel" || last.IsThinking {
		t.Fatalf("unexpected transcript state: %+v", last)
	}
}

func TestWebSocketPeerDisconnectCancelsStream(t *testing.T) {
	streamer := &blockingStreamer{started: make(chan struct{}), gate: make(chan struct{})}
	server, workspace := newWebSocketServer(streamer)
	defer server.Close()
	sessionID := workspace.CurrentID()

	conn := dialWebSocket(t, server, sessionID)
	if err := conn.WriteJSON(map[string]string{"type": "send", "text": "hi"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	if frame := readWSFrame(t, conn); frame.Type != "start" {
		t.Fatalf("expected start frame, got %+v", frame)
	}
	if frame := readWSFrame(t, conn); frame.Type != "delta" || frame.Content != "Hel" {
		t.Fatalf("expected first delta, got %+v", frame)
	}

	// Dropping the connection must cancel the in-flight stream.
	conn.Close()
	time.Sleep(200 * time.Millisecond)
	close(streamer.gate)

	deadline := time.Now().Add(5 * time.Second)
	for workspace.Busy(sessionID) {
		if time.Now().After(deadline) {
			t.Fatal("stream did not abort after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	session, _ := workspace.Session(sessionID)
	last := session.Messages[len(session.Messages)-1]
	if last.Text != "Hel" {
		t.Fatalf("partial text lost: %q", last.Text)
	}
	if last.IsThinking {
		t.Fatal("thinking flag must be cleared after the aborted turn")
	}
}
