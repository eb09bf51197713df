package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore persists a single JSON snapshot on disk. Writes go through a temp
// file and a rename so a crash never leaves a half-written snapshot.
type JSONStore struct {
	mu       sync.Mutex
	filePath string
}

// NewJSONStore creates the data directory and returns a store for filename inside it.
func NewJSONStore(dataDir, filename string) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return &JSONStore{
		filePath: filepath.Join(dataDir, filename),
	}, nil
}

func (s *JSONStore) Path() string {
	return s.filePath
}

// Load decodes the snapshot into v. It reports false when no snapshot exists yet.
func (s *JSONStore) Load(v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return true, fmt.Errorf("decode %s: %w", s.filePath, err)
	}
	return true, nil
}

// Save replaces the snapshot with v.
func (s *JSONStore) Save(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.filePath)
}
