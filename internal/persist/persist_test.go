package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meetai-labs/meetai/backend/internal/model/chat"
)

func TestSessionsRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	sessions := []chat.Session{{
		ID:        "s1",
		Title:     "Cloud security",
		CreatedAt: created,
		Messages: []chat.Message{{
			ID:        "m1",
			Role:      chat.RoleUser,
			Text:      "hi",
			Timestamp: created.Add(time.Minute),
			Attachments: []chat.Attachment{{
				Name:     "notes.txt",
				MimeType: "text/plain",
				Data:     "aGVsbG8=",
			}},
		}},
	}}

	if err := store.SaveSessions(sessions); err != nil {
		t.Fatalf("SaveSessions err: %v", err)
	}

	loaded, err := store.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 session, got %d", len(loaded))
	}
	if !loaded[0].CreatedAt.Equal(created) {
		t.Fatalf("createdAt did not rehydrate: %v", loaded[0].CreatedAt)
	}
	if !loaded[0].Messages[0].Timestamp.Equal(created.Add(time.Minute)) {
		t.Fatalf("timestamp did not rehydrate: %v", loaded[0].Messages[0].Timestamp)
	}
	if loaded[0].Messages[0].Attachments[0].Data != "aGVsbG8=" {
		t.Fatal("attachment payload lost in round trip")
	}
}

func TestLoadSessionsMissingFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	sessions, err := store.LoadSessions()
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	if sessions != nil {
		t.Fatalf("expected nil, got %v", sessions)
	}
}

func TestClearSessionsRemovesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	if err := store.SaveSessions([]chat.Session{{ID: "s1"}}); err != nil {
		t.Fatalf("SaveSessions err: %v", err)
	}
	if err := store.ClearSessions(); err != nil {
		t.Fatalf("ClearSessions err: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, sessionsFile)); !os.IsNotExist(err) {
		t.Fatal("sessions file should be gone")
	}

	// Clearing twice is fine.
	if err := store.ClearSessions(); err != nil {
		t.Fatalf("second ClearSessions err: %v", err)
	}
}

func TestUserNameRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	name, err := store.LoadUserName()
	if err != nil {
		t.Fatalf("LoadUserName err: %v", err)
	}
	if name != "" {
		t.Fatalf("expected empty name, got %q", name)
	}

	if err := store.SaveUserName("Ada"); err != nil {
		t.Fatalf("SaveUserName err: %v", err)
	}
	name, err = store.LoadUserName()
	if err != nil {
		t.Fatalf("LoadUserName err: %v", err)
	}
	if name != "Ada" {
		t.Fatalf("unexpected name: %q", name)
	}
}
