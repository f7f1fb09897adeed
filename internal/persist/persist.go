// Package persist stores the session list and the active display name as
// JSON files, mirroring the two fixed storage keys the app has always
// used. Failures here are non-fatal: callers log and continue in memory.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meetai-labs/meetai/backend/internal/model/chat"
)

const (
	sessionsFile = "meetai_sessions.json"
	userFile     = "meetai_username"
)

// FileStore persists under a single directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// SaveSessions writes the full session list. Timestamps round-trip through
// their JSON form and rehydrate as time values on load.
func (f *FileStore) SaveSessions(sessions []chat.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	return f.writeAtomic(sessionsFile, data)
}

// ClearSessions removes the persisted entry entirely; an empty list is
// never written.
func (f *FileStore) ClearSessions() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(filepath.Join(f.dir, sessionsFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}

// LoadSessions reads the persisted session list; a missing file yields nil.
func (f *FileStore) LoadSessions() ([]chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(f.dir, sessionsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	var sessions []chat.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

// SaveUserName persists the display name.
func (f *FileStore) SaveUserName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeAtomic(userFile, []byte(name))
}

// LoadUserName reads the persisted display name; a missing file yields "".
func (f *FileStore) LoadUserName() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(f.dir, userFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read user name: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// writeAtomic writes via a temp file and rename so a crash never leaves a
// half-written entry behind.
func (f *FileStore) writeAtomic(name string, data []byte) error {
	target := filepath.Join(f.dir, name)
	tmp, err := os.CreateTemp(f.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
