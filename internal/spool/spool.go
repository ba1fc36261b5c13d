// Package spool keeps finalized answer containers on disk until delivered.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rbright/viva/internal/exam"
)

// Spool is a directory of durable answer containers.
type Spool struct {
	dir string
}

// Open creates dir if needed.
func Open(dir string) (*Spool, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("spool directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

func (s *Spool) Dir() string {
	return s.dir
}

// Put writes payload atomically and durably and returns its path.
func (s *Spool) Put(target exam.Target, attemptID string, payload []byte) (string, error) {
	name := fmt.Sprintf("%s-%s-q%d-%s.wav",
		sanitize(target.Room), sanitize(target.ParticipantID), target.Question.Index, sanitize(attemptID))
	path := filepath.Join(s.dir, name)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return "", fmt.Errorf("create pending answer file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(payload); err != nil {
		return "", fmt.Errorf("write answer data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace answer file: %w", err)
	}
	return path, nil
}

// Remove deletes a delivered container. A missing file is not an error.
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spooled answer: %w", err)
	}
	return nil
}

// List returns spooled containers in name order.
func (s *Spool) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.wav"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, raw)
}
