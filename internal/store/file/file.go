// Package file implements store.Slots as one JSON file per key in a directory.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// validKey restricts slot keys to names that are safe as file names.
var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Config holds file store configuration
type Config struct {
	Dir string // Directory holding <key>.json files
}

// Slots implements store.Slots for file-based storage
type Slots struct {
	dir string // Resolved absolute path
}

// New creates a file store rooted at cfg.Dir, creating the directory if needed
func New(cfg Config) (*Slots, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}

	// Resolve relative paths
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Slots{dir: dir}, nil
}

func (s *Slots) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid slot key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Get returns the contents of <key>.json
func (s *Slots) Get(key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put writes value to a temp file and renames it over <key>.json so readers
// never observe a partial write
func (s *Slots) Put(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Dir returns the resolved storage directory
func (s *Slots) Dir() string {
	return s.dir
}

// Close closes the store
func (s *Slots) Close() error {
	return nil
}
