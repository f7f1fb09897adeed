package chat_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/meetai-labs/meetai/backend/internal/handler/chat"
	model "github.com/meetai-labs/meetai/backend/internal/model/chat"
	chatservice "github.com/meetai-labs/meetai/backend/internal/service/chat"
)

func newTestServer() (*httptest.Server, *chatservice.Workspace) {
	store := chatservice.NewStore()
	controller := chatservice.NewController(store, nil)
	workspace := chatservice.NewWorkspace(store, controller, nil)
	workspace.Restore(nil, "")

	r := chi.NewRouter()
	chathandler.New(workspace).RegisterRoutes(r)
	return httptest.NewServer(r), workspace
}

func TestCreateAndListSessions(t *testing.T) {
	server, _ := newTestServer()
	defer server.Close()

	resp, err := http.Post(server.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /sessions err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var created model.Session
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created session has no identifier")
	}

	resp, err = http.Get(server.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET /sessions err: %v", err)
	}
	defer resp.Body.Close()

	var listing struct {
		Sessions  []model.Session `json:"sessions"`
		CurrentID string          `json:"currentId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(listing.Sessions) != 2 {
		t.Fatalf("expected bootstrap + created session, got %d", len(listing.Sessions))
	}
	if listing.CurrentID != created.ID {
		t.Fatalf("new session should be current, got %s", listing.CurrentID)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	server, _ := newTestServer()
	defer server.Close()

	resp, err := http.Get(server.URL + "/sessions/missing")
	if err != nil {
		t.Fatalf("GET err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestSelectSession(t *testing.T) {
	server, workspace := newTestServer()
	defer server.Close()

	first := workspace.CurrentID()
	workspace.CreateSession()

	resp, err := http.Post(server.URL+"/sessions/"+first+"/select", "application/json", nil)
	if err != nil {
		t.Fatalf("POST select err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if workspace.CurrentID() != first {
		t.Fatalf("selection not applied, current is %s", workspace.CurrentID())
	}
}

func TestDeleteSession(t *testing.T) {
	server, workspace := newTestServer()
	defer server.Close()

	only := workspace.CurrentID()
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/sessions/"+only, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var payload struct {
		CurrentID string `json:"currentId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	// Deleting the last session yields a fresh replacement.
	if payload.CurrentID == "" || payload.CurrentID == only {
		t.Fatalf("expected a replacement session, got %q", payload.CurrentID)
	}
}

func TestDeleteUnknownSessionReturns404(t *testing.T) {
	server, _ := newTestServer()
	defer server.Close()

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/sessions/missing", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	server, _ := newTestServer()
	defer server.Close()

	resp, err := http.Get(server.URL + "/profile")
	if err != nil {
		t.Fatalf("GET /profile err: %v", err)
	}
	defer resp.Body.Close()

	var profile struct {
		UserName string `json:"userName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if profile.UserName != "Guest" {
		t.Fatalf("unexpected default name: %q", profile.UserName)
	}

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/profile", strings.NewReader(`{"userName":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /profile err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/profile")
	if err != nil {
		t.Fatalf("GET /profile err: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if profile.UserName != "Ada" {
		t.Fatalf("unexpected name: %q", profile.UserName)
	}
}

func TestUpdateProfileRejectsEmptyName(t *testing.T) {
	server, _ := newTestServer()
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/profile", strings.NewReader(`{"userName":""}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /profile err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}
