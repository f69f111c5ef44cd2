// Package transport reads envelope streams off their carriers: a live agent
// subprocess speaking newline-delimited JSON on stdout, or a saved transcript
// replayed from disk. Sources hand parsed envelopes to the multiplexer over a
// channel and keep transport failures on a separate channel.
package transport

import "github.com/zjrosen/weft/internal/protocol"

// SourceStatus is the lifecycle state of an envelope source.
type SourceStatus string

const (
	SourcePending   SourceStatus = "pending"
	SourceRunning   SourceStatus = "running"
	SourceCompleted SourceStatus = "completed"
	SourceFailed    SourceStatus = "failed"
	SourceCancelled SourceStatus = "cancelled"
)

// EnvelopeSource is a stream of parsed envelopes. Events closes when the
// underlying carrier is exhausted; Errors stays open for late failures.
type EnvelopeSource interface {
	// Events returns the envelope channel. Closed on end of stream.
	Events() <-chan protocol.Envelope

	// Errors returns transport-level failures (carrier died, read error).
	// Malformed single lines are skipped with a log entry, not errored.
	Errors() <-chan error

	// Status returns the current lifecycle state.
	Status() SourceStatus

	// Cancel stops the source. Safe to call more than once.
	Cancel() error

	// Wait blocks until the source has fully drained and shut down.
	Wait() error
}
