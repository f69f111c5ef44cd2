package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/protocol"
)

// fallbackSession names the transcript for envelopes with no session id.
const fallbackSession = "default"

// Store writes each session's envelope stream to its own JSONL file under a
// root directory. Files open lazily on first append and are shared by all
// appends for that session.
type Store struct {
	dir     string
	mu      sync.Mutex
	writers map[string]*BufferedWriter
	closed  bool
}

// NewStore creates the transcript directory if needed and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating transcript directory: %w", err)
	}
	return &Store{
		dir:     dir,
		writers: make(map[string]*BufferedWriter),
	}, nil
}

// Dir returns the transcript root.
func (s *Store) Dir() string { return s.dir }

// Path returns where a session's transcript lives.
func (s *Store) Path(sessionID string) string {
	if sessionID == "" {
		sessionID = fallbackSession
	}
	return filepath.Join(s.dir, sanitizeName(sessionID)+".jsonl")
}

// Append records one envelope in its session's transcript. The original wire
// bytes are written when available so a replay sees exactly what the live
// stream saw.
func (s *Store) Append(env protocol.Envelope) error {
	line, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}

	key := env.SessionID
	if key == "" {
		key = fallbackSession
	}

	w, ok := s.writers[key]
	if !ok {
		path := s.Path(env.SessionID)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) // #nosec G304 -- path built from sanitized session id
		if err != nil {
			return fmt.Errorf("opening transcript %s: %w", path, err)
		}
		w = NewBufferedWriter(file)
		s.writers[key] = w
		log.Debug(log.CatHistory, "Transcript opened", "sessionId", key, "path", path)
	}

	return w.Write(line)
}

// Flush forces all open transcripts to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, w := range s.writers {
		if err := w.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flushing transcript %s: %w", id, err)
		}
	}
	return firstErr
}

// Close flushes and closes every open transcript.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}
	s.closed = true

	var firstErr error
	for id, w := range s.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing transcript %s: %w", id, err)
		}
	}
	return firstErr
}

// encodeEnvelope renders one transcript line, newline included. Envelopes
// parsed off a wire keep their original bytes; synthesized ones are
// marshalled fresh.
func encodeEnvelope(env protocol.Envelope) ([]byte, error) {
	if len(env.Raw) > 0 {
		line := make([]byte, 0, len(env.Raw)+1)
		line = append(line, env.Raw...)
		return append(line, '\n'), nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return append(data, '\n'), nil
}

// sanitizeName keeps session ids from escaping the transcript directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	return strings.ReplaceAll(name, "..", "_")
}
