// Package snapshot keeps the most recent picture of each kind per channel type on disk.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store writes pictures into a single directory. Every save of the same
// (type, kind) pair overwrites the previous file; no history is kept.
type Store struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at dir. An empty dir disables saving.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Enabled reports whether pictures are written at all.
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// Path returns the file a (channelType, kind) picture is written to.
func (s *Store) Path(channelType, kind string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%sPicture_%s.jpg", sanitize(kind), sanitize(strings.ToUpper(channelType))))
}

// Save atomically replaces the picture for (channelType, kind) and returns its path.
func (s *Store) Save(channelType, kind string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty %s picture", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	target := s.Path(channelType, kind)
	tmp := filepath.Join(s.dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Debug("Snapshot saved",
		zap.String("channel_type", channelType),
		zap.String("kind", kind),
		zap.String("path", target),
		zap.Int("bytes", len(data)),
	)
	return target, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
