package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the in-progress partial catalog between memory-pressure
// flushes. It belongs to exactly one run; the partial file is removed when
// the run finishes, successfully or not.
type Store struct {
	path string
}

// NewStore creates a Store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the partial catalog location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the partial device set, or an empty set when no partial catalog
// exists yet.
func (s *Store) Load() ([]DeviceRecord, error) {
	//nolint:gosec // File path is internally managed by the Store, not user input
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read partial catalog: %w", err)
	}

	var devices []DeviceRecord
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal partial catalog: %w", err)
	}
	return devices, nil
}

// Save writes the partial device set atomically (temporary file, then
// rename), so a crashed flush never leaves a truncated partial catalog.
func (s *Store) Save(devices []DeviceRecord) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal partial catalog: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary partial catalog: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename partial catalog: %w", err)
	}

	return nil
}

// Remove deletes the partial catalog if present.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete partial catalog: %w", err)
	}
	return nil
}
