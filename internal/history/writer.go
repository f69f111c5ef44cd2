// Package history persists envelope streams as JSONL transcripts, one file
// per session, so a session can be replayed or archived later. Writes are
// buffered off the hot path: the event loop appends to a ring buffer and a
// background goroutine owns the disk.
package history

import (
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBufferSize is the ring buffer capacity in lines.
	DefaultBufferSize = 256

	// DefaultFlushInterval is how often the background goroutine flushes.
	DefaultFlushInterval = 100 * time.Millisecond

	// flushThresholdPercent is the buffer fill level that forces an
	// immediate flush instead of waiting for the ticker.
	flushThresholdPercent = 75
)

// BufferedWriter batches line writes to a transcript file. Write errors
// never panic or stop the stream; they are counted and the latest one is
// kept for inspection.
type BufferedWriter struct {
	file           *os.File
	buffer         [][]byte
	bufferSize     int
	flushThreshold int
	flushInterval  time.Duration

	mu          sync.Mutex
	writeErrors atomic.Int64
	lastError   atomic.Value
	done        chan struct{}
	wg          sync.WaitGroup
	closed      bool
}

// NewBufferedWriter wraps file with default buffering.
func NewBufferedWriter(file *os.File) *BufferedWriter {
	return NewBufferedWriterWithConfig(file, DefaultBufferSize, DefaultFlushInterval)
}

// NewBufferedWriterWithConfig wraps file with a custom buffer size and flush
// interval. Non-positive values fall back to the defaults.
func NewBufferedWriterWithConfig(file *os.File, bufferSize int, flushInterval time.Duration) *BufferedWriter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	w := &BufferedWriter{
		file:           file,
		buffer:         make([][]byte, 0, bufferSize),
		bufferSize:     bufferSize,
		flushThreshold: (bufferSize * flushThresholdPercent) / 100,
		flushInterval:  flushInterval,
		done:           make(chan struct{}),
	}

	w.wg.Add(1)
	go w.flushLoop()

	return w
}

// Write appends one line's bytes to the buffer. Triggers an immediate flush
// once the buffer passes its threshold. Thread-safe.
func (w *BufferedWriter) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}

	// Copy: callers reuse their slices
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	w.buffer = append(w.buffer, dataCopy)

	if len(w.buffer) >= w.flushThreshold {
		return w.flushLocked()
	}
	return nil
}

// Flush writes all buffered lines to disk.
func (w *BufferedWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	return w.flushLocked()
}

func (w *BufferedWriter) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}

	var writeErr error
	for _, data := range w.buffer {
		if _, err := w.file.Write(data); err != nil {
			writeErr = err
			w.writeErrors.Add(1)
			w.lastError.Store(err)
			// Keep going; later lines may still land
		}
	}
	w.buffer = w.buffer[:0]
	return writeErr
}

func (w *BufferedWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			_ = w.Flush() // tracked via writeErrors
		}
	}
}

// Close stops the flush goroutine, drains the buffer, and closes the file.
func (w *BufferedWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return os.ErrClosed
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()

	w.mu.Lock()
	flushErr := w.flushLocked()
	w.mu.Unlock()

	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ErrorCount returns how many writes have failed so far.
func (w *BufferedWriter) ErrorCount() int64 {
	return w.writeErrors.Load()
}

// LastError returns the most recent write error, or nil.
func (w *BufferedWriter) LastError() error {
	if v := w.lastError.Load(); v != nil {
		return v.(error)
	}
	return nil
}
