package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/protocol"
)

const logCat = log.CatTransport

// ErrTimeout is returned when an agent process exceeds its configured timeout.
var ErrTimeout = fmt.Errorf("agent process timed out")

// ProcessConfig holds configuration for spawning an agent process.
type ProcessConfig struct {
	// Command is the agent binary, e.g. "claude".
	Command string
	// Args are passed verbatim before the prompt.
	Args []string
	// WorkDir is the process working directory.
	WorkDir string
	// Prompt, when set, is appended after a -- separator.
	Prompt string
	// Timeout caps the process lifetime. Zero means no limit.
	Timeout time.Duration
}

// ProcessSource streams envelopes from an agent subprocess's stdout.
// Implements EnvelopeSource.
type ProcessSource struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     io.ReadCloser
	status     SourceStatus
	events     chan protocol.Envelope
	errors     chan error
	cancelFunc context.CancelFunc
	ctx        context.Context
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// Spawn starts the agent process and begins streaming its output.
func Spawn(ctx context.Context, cfg ProcessConfig) (*ProcessSource, error) {
	var procCtx context.Context
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		procCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	} else {
		procCtx, cancel = context.WithCancel(ctx)
	}

	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	args := cfg.Args
	if cfg.Prompt != "" {
		args = append(append([]string{}, args...), "--", cfg.Prompt)
	}
	log.Debug(logCat, "Spawning agent process",
		"command", command, "args", strings.Join(args, " "), "workDir", cfg.WorkDir)

	// #nosec G204 -- command and args come from config, not remote input
	cmd := exec.CommandContext(procCtx, command, args...)
	cmd.Dir = cfg.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	s := &ProcessSource{
		cmd:        cmd,
		stdout:     stdout,
		stderr:     stderr,
		status:     SourcePending,
		events:     make(chan protocol.Envelope, 100),
		errors:     make(chan error, 10),
		cancelFunc: cancel,
		ctx:        procCtx,
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}

	log.Debug(logCat, "Agent process started", "pid", cmd.Process.Pid)
	s.setStatus(SourceRunning)

	s.wg.Add(3)
	go s.readStdout()
	go s.readStderr()
	go s.waitForExit()

	return s, nil
}

// Events returns the envelope channel. Closed when stdout is exhausted.
func (s *ProcessSource) Events() <-chan protocol.Envelope { return s.events }

// Errors returns transport-level failures.
func (s *ProcessSource) Errors() <-chan error { return s.errors }

// Status returns the current lifecycle state.
func (s *ProcessSource) Status() SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PID returns the agent process id, or 0 before start.
func (s *ProcessSource) PID() int {
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// Cancel terminates the agent process. The status is set first so
// waitForExit doesn't race it into failed.
func (s *ProcessSource) Cancel() error {
	s.setStatus(SourceCancelled)
	s.cancelFunc()
	return nil
}

// Wait blocks until all reader goroutines have finished.
func (s *ProcessSource) Wait() error {
	s.wg.Wait()
	return nil
}

func (s *ProcessSource) setStatus(st SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// sendError forwards a failure without blocking; a full channel drops it
// with a log entry.
func (s *ProcessSource) sendError(err error) {
	select {
	case s.errors <- err:
	default:
		log.Debug(logCat, "Error channel full, dropping error", "error", err)
	}
}

func (s *ProcessSource) readStdout() {
	defer s.wg.Done()
	defer close(s.events)

	scanner := bufio.NewScanner(s.stdout)
	// Large tool results can blow past the default scanner buffer
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineCount := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		lineCount++
		if len(line) == 0 {
			continue
		}

		env, err := protocol.ParseEnvelope(line)
		if err != nil {
			log.Debug(logCat, "Skipping unparseable line",
				"error", err, "line", string(line[:min(100, len(line))]))
			continue
		}
		if env.Timestamp.IsZero() {
			env.Timestamp = time.Now()
		}

		select {
		case s.events <- env:
		case <-s.ctx.Done():
			log.Debug(logCat, "Context done, stopping stdout reader")
			return
		}
	}

	log.Debug(logCat, "Stdout exhausted", "totalLines", lineCount)
	if err := scanner.Err(); err != nil {
		s.sendError(fmt.Errorf("stdout scanner error: %w", err))
	}
}

func (s *ProcessSource) readStderr() {
	defer s.wg.Done()

	scanner := bufio.NewScanner(s.stderr)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			log.Debug(logCat, "Agent stderr", "line", line)
		}
	}
}

func (s *ProcessSource) waitForExit() {
	defer s.wg.Done()

	err := s.cmd.Wait()

	s.mu.Lock()
	cancelled := s.status == SourceCancelled
	s.mu.Unlock()
	if cancelled {
		return
	}

	switch {
	case err == nil:
		s.setStatus(SourceCompleted)
	case s.ctx.Err() == context.DeadlineExceeded:
		s.setStatus(SourceFailed)
		s.sendError(ErrTimeout)
	default:
		s.setStatus(SourceFailed)
		s.sendError(fmt.Errorf("agent process exited: %w", err))
	}
}
