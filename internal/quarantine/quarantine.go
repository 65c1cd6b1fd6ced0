// Package quarantine persists raw messages that the pipeline could not
// process, so an operator can inspect and replay them later.
package quarantine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Store writes failed messages to a directory, one file per message.
type Store struct {
	dir    string
	logger *log.Logger
}

// StoreOption customizes the store.
type StoreOption func(*Store)

// NewStore builds a quarantine store rooted at dir, creating it if needed.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("quarantine: directory required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("quarantine: create %s: %w", dir, err)
	}
	s := &Store{dir: dir, logger: log.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// WithStoreLogger overrides the logger used for diagnostics.
func WithStoreLogger(logger *log.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Save writes the raw message bytes under a name derived from the mailbox
// message id. An existing file for the same id is overwritten; a retried
// message holds the same bytes.
func (s *Store) Save(messageID string, raw []byte) (string, error) {
	path := filepath.Join(s.dir, fileName(messageID))
	if err := os.WriteFile(path, raw, 0o640); err != nil {
		return "", fmt.Errorf("quarantine: write %s: %w", path, err)
	}
	s.logf("quarantined message %s to %s", messageID, path)
	return path, nil
}

// fileName keeps the id recognizable while staying safe as a file name.
func fileName(messageID string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, messageID)
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("message-err-%s.eml", id)
}

func (s *Store) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
