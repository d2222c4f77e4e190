// Package snapshot defines the report document and persists it to a flat
// JSON file that is replaced atomically.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// ErrNoSnapshot is returned when no snapshot has been written yet
var ErrNoSnapshot = errors.New("no snapshot available")

// Store keeps the latest snapshot in memory and on disk
type Store struct {
	path   string
	mu     sync.RWMutex
	latest *Snapshot
}

// NewStore creates a store backed by path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path
func (s *Store) Path() string {
	return s.path
}

// Write replaces the snapshot file with snap. Readers never observe a
// partially written file.
func (s *Store) Write(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	slog.Info("Snapshot written",
		"path", s.path,
		"run_id", snap.Data.RunID,
		"users", snap.Data.TotalUsers,
		"bytes", len(data),
	)
	return nil
}

// Latest returns the last snapshot, reading the file when nothing has been
// written by this process
func (s *Store) Latest() (*Snapshot, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil {
		return latest, nil
	}

	snap, err := s.Load()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.latest == nil {
		s.latest = snap
	}
	s.mu.Unlock()
	return snap, nil
}

// Load reads the snapshot file
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.path, err)
	}
	return &snap, nil
}

// ModTime returns the modification time of the snapshot file
func (s *Store) ModTime() (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ErrNoSnapshot
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
