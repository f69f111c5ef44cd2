package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zjrosen/weft/internal/history"
	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/protocol"
)

// followDebounce collapses bursts of transcript writes into one wakeup.
const followDebounce = 200 * time.Millisecond

// ReplayConfig configures a transcript replay.
type ReplayConfig struct {
	// Path is the JSONL transcript to replay.
	Path string
	// Delay inserts a pause between envelopes so the replay streams like a
	// live session. Zero replays as fast as the reader drains.
	Delay time.Duration
	// Follow keeps the source alive after end of file and streams lines
	// appended by another process, like tail -f.
	Follow bool
}

// ReplaySource streams envelopes from a saved JSONL transcript.
// Implements EnvelopeSource.
type ReplaySource struct {
	file       *os.File
	path       string
	delay      time.Duration
	follow     bool
	status     SourceStatus
	events     chan protocol.Envelope
	errors     chan error
	cancelFunc context.CancelFunc
	ctx        context.Context
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// Replay opens the transcript and begins streaming it.
func Replay(ctx context.Context, cfg ReplayConfig) (*ReplaySource, error) {
	cleanPath := filepath.Clean(cfg.Path)
	file, err := os.Open(cleanPath) // #nosec G304 -- path is cleaned above
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}

	srcCtx, cancel := context.WithCancel(ctx)
	s := &ReplaySource{
		file:       file,
		path:       cleanPath,
		delay:      cfg.Delay,
		follow:     cfg.Follow,
		status:     SourceRunning,
		events:     make(chan protocol.Envelope, 100),
		errors:     make(chan error, 10),
		cancelFunc: cancel,
		ctx:        srcCtx,
	}

	log.Debug(logCat, "Replaying transcript",
		"path", cleanPath, "delay", cfg.Delay.String(), "follow", cfg.Follow)

	s.wg.Add(1)
	go s.readLines()

	return s, nil
}

// Events returns the envelope channel. Closed at end of file.
func (s *ReplaySource) Events() <-chan protocol.Envelope { return s.events }

// Errors returns transport-level failures.
func (s *ReplaySource) Errors() <-chan error { return s.errors }

// Status returns the current lifecycle state.
func (s *ReplaySource) Status() SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Cancel stops the replay.
func (s *ReplaySource) Cancel() error {
	s.setStatus(SourceCancelled)
	s.cancelFunc()
	return nil
}

// Wait blocks until the reader goroutine has finished.
func (s *ReplaySource) Wait() error {
	s.wg.Wait()
	return nil
}

func (s *ReplaySource) setStatus(st SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *ReplaySource) readLines() {
	defer s.wg.Done()
	defer close(s.events)
	defer func() {
		if err := s.file.Close(); err != nil {
			log.Debug(logCat, "Closing transcript failed", "error", err)
		}
	}()

	var wake <-chan struct{}
	if s.follow {
		w, err := history.NewWatcher(history.WatcherConfig{
			Dir:         filepath.Dir(s.path),
			DebounceDur: followDebounce,
		})
		if err != nil {
			s.fail(fmt.Errorf("watching transcript: %w", err))
			return
		}
		ch, err := w.Start()
		if err != nil {
			s.fail(fmt.Errorf("watching transcript: %w", err))
			return
		}
		wake = ch
		defer func() {
			if err := w.Stop(); err != nil {
				log.Debug(logCat, "Stopping transcript watcher failed", "error", err)
			}
		}()
	}

	reader := bufio.NewReaderSize(s.file, 64*1024)
	// Holds an incomplete trailing line until the writer finishes it.
	var partial []byte

	for {
		chunk, err := reader.ReadBytes('\n')

		switch {
		case err == nil:
			line := chunk
			if len(partial) > 0 {
				line = append(partial, chunk...)
				partial = nil
			}
			if !s.emit(bytes.TrimRight(line, "\n")) {
				return
			}

		case errors.Is(err, io.EOF):
			partial = append(partial, chunk...)
			if !s.follow {
				s.finish(partial)
				return
			}
			select {
			case <-wake:
			case <-s.ctx.Done():
				return
			}

		default:
			s.fail(fmt.Errorf("reading transcript: %w", err))
			return
		}
	}
}

// emit parses one line and sends it downstream, honoring the replay delay.
// Returns false when the source context is done.
func (s *ReplaySource) emit(line []byte) bool {
	if len(line) == 0 {
		return true
	}

	env, err := protocol.ParseEnvelope(line)
	if err != nil {
		log.Debug(logCat, "Skipping unparseable transcript line", "error", err)
		return true
	}

	select {
	case s.events <- env:
	case <-s.ctx.Done():
		return false
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return false
		}
	}
	return true
}

// finish flushes a final unterminated line and marks the replay completed.
func (s *ReplaySource) finish(partial []byte) {
	if len(partial) > 0 {
		s.emit(partial)
	}

	s.mu.Lock()
	if s.status == SourceRunning {
		s.status = SourceCompleted
	}
	s.mu.Unlock()
}

func (s *ReplaySource) fail(err error) {
	s.setStatus(SourceFailed)
	select {
	case s.errors <- err:
	default:
	}
}
