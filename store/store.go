// Package store exposes a flat directory of named files as the shared
// store behind the LIST, UPLOAD, DOWNLOAD, and DELETE commands.
//
// The store is addressed only by base file name. Names containing path
// separators or the parent-directory token are rejected on every
// name-bearing operation; this is the sole namespace-safety invariant.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Common errors for shared store access
var (
	// ErrInvalidName indicates a name violating the flat-namespace invariant
	ErrInvalidName = errors.New("invalid file name")

	// ErrNotFound indicates the named entry does not exist in the store
	ErrNotFound = errors.New("file not found")
)

// Entry is one regular file in the shared store.
type Entry struct {
	Name string
	Size uint64
}

// Store is a flat namespace of named files inside one directory. It is
// accessed concurrently by multiple sessions without coordination; a
// listing may race with an upload or delete, which is accepted staleness
// rather than an error.
type Store struct {
	dir string
}

// New opens a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}

	logrus.WithFields(logrus.Fields{
		"dir": dir,
	}).Info("Shared store ready")

	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// ValidateName enforces the namespace-safety invariant: entry names are
// base file names only, with no separators and no parent-directory token.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return ErrInvalidName
	}
	return nil
}

// Path resolves a validated name to its location inside the store.
func (s *Store) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Stat returns the entry for name, or ErrNotFound when the name does not
// resolve to an existing regular file.
func (s *Store) Stat(name string) (Entry, error) {
	path, err := s.Path(name)
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return Entry{}, ErrNotFound
	}

	return Entry{Name: name, Size: uint64(info.Size())}, nil
}

// List enumerates the store's regular files in name order.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store %s: %w", s.dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil || !info.Mode().IsRegular() {
			// Raced with a concurrent delete, or not a regular file.
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Size: uint64(info.Size())})
	}
	return entries, nil
}

// Remove deletes the named entry. Deletion is immediate and
// unrecoverable; an absent name yields ErrNotFound.
func (s *Store) Remove(name string) error {
	if _, err := s.Stat(name); err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{
		"file_name": name,
	}).Info("Removed file from shared store")

	return nil
}

// FormatSize renders a byte count in human-readable form.
func FormatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
