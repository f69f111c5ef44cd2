package assembly

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/protocol"
	"github.com/zjrosen/weft/internal/pubsub"
	"github.com/zjrosen/weft/internal/tracing"
)

// HistoryChange is published whenever a session's transcript changes. The UI
// re-renders when the change hits the session it is viewing.
type HistoryChange struct {
	SessionID string
	Messages  int
	Active    bool
}

// Multiplexer owns one Assembler per open session and routes the shared
// envelope stream between them. Every session assembles continuously;
// switching the active session is a pointer swap, not a replay.
//
// Routing targets the envelope's own session id. Envelopes without one bind
// to the active session at arrival time. Envelopes naming a session that was
// never opened are dropped, not buffered.
type Multiplexer struct {
	mu       sync.Mutex
	sessions map[string]*Assembler
	order    []string
	activeID string

	changes *pubsub.Broker[HistoryChange]
	tracer  trace.Tracer
	clock   func() time.Time
}

// MultiplexerOption customizes a new Multiplexer.
type MultiplexerOption func(*Multiplexer)

// WithTracer attaches an OpenTelemetry tracer for per-envelope spans.
func WithTracer(tracer trace.Tracer) MultiplexerOption {
	return func(m *Multiplexer) { m.tracer = tracer }
}

// WithMultiplexerClock overrides the wall clock, for tests.
func WithMultiplexerClock(now func() time.Time) MultiplexerOption {
	return func(m *Multiplexer) { m.clock = now }
}

// NewMultiplexer creates a multiplexer with no open sessions.
func NewMultiplexer(opts ...MultiplexerOption) *Multiplexer {
	m := &Multiplexer{
		sessions: make(map[string]*Assembler),
		changes:  pubsub.NewBroker[HistoryChange](),
		tracer:   noop.NewTracerProvider().Tracer("assembly"),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenSession registers a session and returns its assembler. Opening an
// already-open session is a no-op returning the existing assembler. The
// first opened session becomes active.
func (m *Multiplexer) OpenSession(id string) *Assembler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(id)
}

func (m *Multiplexer) openLocked(id string) *Assembler {
	if asm, ok := m.sessions[id]; ok {
		return asm
	}
	asm := NewAssembler(id, WithClock(m.clock))
	m.sessions[id] = asm
	m.order = append(m.order, id)
	if m.activeID == "" {
		m.activeID = id
	}
	log.Info(log.CatStream, "Session opened", "sessionId", id)
	return asm
}

// CloseSession discards a session and its assembled history. Closing the
// active session leaves no session active until the caller picks another.
func (m *Multiplexer) CloseSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.activeID == id {
		m.activeID = ""
	}
	log.Info(log.CatStream, "Session closed", "sessionId", id)
}

// SetActiveSession switches which session the UI is viewing. The target must
// already be open; switching to an unknown id is ignored with a warning.
func (m *Multiplexer) SetActiveSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		log.Warn(log.CatStream, "Cannot activate unknown session", "sessionId", id)
		return
	}
	m.activeID = id
}

// ActiveSessionID returns the id of the session the UI is viewing, or ""
// when no session is active.
func (m *Multiplexer) ActiveSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Sessions returns open session ids in the order they were opened.
func (m *Multiplexer) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// ActiveHistory returns the transcript of the active session, already fully
// assembled. Returns nil when no session is active.
func (m *Multiplexer) ActiveHistory() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asm, ok := m.sessions[m.activeID]; ok {
		return asm.Messages()
	}
	return nil
}

// History returns the transcript of any open session, active or not.
func (m *Multiplexer) History(id string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asm, ok := m.sessions[id]; ok {
		return asm.Messages()
	}
	return nil
}

// Subscribe delivers a HistoryChange for every envelope that lands in some
// session. The subscription ends when ctx is cancelled.
func (m *Multiplexer) Subscribe(ctx context.Context) <-chan pubsub.Event[HistoryChange] {
	return m.changes.Subscribe(ctx)
}

// Route dispatches one envelope to its session's assembler. Envelopes with
// no session id go to the active session; with no active session they are
// dropped. Envelopes for a session that is open but not active still
// assemble there, they just don't touch the active view.
func (m *Multiplexer) Route(env protocol.Envelope) {
	_, span := m.tracer.Start(context.Background(), tracing.SpanRoute,
		trace.WithAttributes(
			attribute.String(tracing.AttrEnvelopeKind, string(env.Kind)),
			attribute.String(tracing.AttrSessionID, env.SessionID),
		))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	admitted := Admit(env, m.activeID)
	span.SetAttributes(attribute.Bool(tracing.AttrEnvelopeAdmitted, admitted))

	target := env.SessionID
	if target == "" {
		target = m.activeID
	}
	if target == "" {
		span.SetAttributes(attribute.Bool(tracing.AttrEnvelopeDropped, true))
		log.Debug(log.CatStream, "Envelope with no addressable session dropped",
			"kind", string(env.Kind))
		return
	}

	asm, ok := m.sessions[target]
	if !ok {
		span.SetAttributes(attribute.Bool(tracing.AttrEnvelopeDropped, true))
		log.Debug(log.CatStream, "Envelope for unopened session dropped",
			"kind", string(env.Kind), "sessionId", target)
		return
	}

	asm.Apply(env)

	m.changes.Publish(pubsub.UpdatedEvent, HistoryChange{
		SessionID: target,
		Messages:  asm.Len(),
		Active:    admitted && target == m.activeID,
	})
}

// Close shuts down the change feed. Route becomes a silent no-op for
// subscribers afterwards.
func (m *Multiplexer) Close() {
	m.changes.Close()
}
