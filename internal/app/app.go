// Package app composes the envelope pipeline behind the chat panel: a
// transport source feeding the session multiplexer, transcript persistence,
// and optional archival on exit.
package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/history"
	"github.com/zjrosen/weft/internal/infrastructure/sqlite"
	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/protocol"
	"github.com/zjrosen/weft/internal/transport"
	"github.com/zjrosen/weft/internal/ui/chatpanel"
)

// DefaultSessionID is the session legacy envelopes bind to when the stream
// never names one.
const DefaultSessionID = "main"

// envelopeMsg carries one parsed envelope from the transport into Update.
type envelopeMsg protocol.Envelope

// sourceErrMsg carries a transport error.
type sourceErrMsg struct{ err error }

// sourceDoneMsg signals the transport's event channel closed.
type sourceDoneMsg struct{ status transport.SourceStatus }

// Options configures the app model.
type Options struct {
	// Source streams envelopes. Required.
	Source transport.EnvelopeSource

	// Store persists envelopes per session as JSONL. Optional.
	Store *history.Store

	// Archive saves assembled transcripts on exit. Optional.
	Archive *sqlite.ArchiveRepository

	// Panel is the configured chat panel.
	Panel chatpanel.Model

	// Mux is the multiplexer the panel is bound to.
	Mux *assembly.Multiplexer
}

// App is the top-level Bubble Tea model. All envelope routing happens on the
// update loop, so assembler state never needs locking beyond the
// multiplexer's own.
type App struct {
	panel   chatpanel.Model
	mux     *assembly.Multiplexer
	source  transport.EnvelopeSource
	store   *history.Store
	archive *sqlite.ArchiveRepository

	openedAt map[string]time.Time
	done     bool
}

// New builds the app model and opens the default session so envelopes
// without a session id have somewhere to land.
func New(opts Options) App {
	a := App{
		panel:    opts.Panel,
		mux:      opts.Mux,
		source:   opts.Source,
		store:    opts.Store,
		archive:  opts.Archive,
		openedAt: make(map[string]time.Time),
	}
	a.panel = a.panel.OpenSession(DefaultSessionID)
	a.openedAt[DefaultSessionID] = time.Now()
	return a
}

// Init starts the panel's history listener and both transport pumps.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.panel.Init(), a.waitEnvelope(), a.waitError())
}

// waitEnvelope blocks on the transport until the next envelope arrives.
func (a App) waitEnvelope() tea.Cmd {
	return func() tea.Msg {
		env, ok := <-a.source.Events()
		if !ok {
			return sourceDoneMsg{status: a.source.Status()}
		}
		return envelopeMsg(env)
	}
}

func (a App) waitError() tea.Cmd {
	return func() tea.Msg {
		err, ok := <-a.source.Errors()
		if !ok {
			return nil
		}
		return sourceErrMsg{err: err}
	}
}

// Update drives the pipeline.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case envelopeMsg:
		a.routeEnvelope(protocol.Envelope(msg))
		return a, a.waitEnvelope()

	case sourceErrMsg:
		log.ErrorErr(log.CatTransport, "Transport error", msg.err)
		return a, a.waitError()

	case sourceDoneMsg:
		log.Info(log.CatTransport, "Transport finished", "status", string(msg.status))
		a.done = true
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		var cmd tea.Cmd
		a.panel, cmd = a.panel.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.panel, cmd = a.panel.Update(msg)
	return a, cmd
}

// routeEnvelope feeds one envelope through persistence and assembly. A
// session id never seen before counts as a session-open signal when it comes
// from our own transport; only envelopes for sessions closed at the
// multiplexer get dropped there.
func (a *App) routeEnvelope(env protocol.Envelope) {
	if env.HasSession() {
		if _, seen := a.openedAt[env.SessionID]; !seen {
			a.panel = a.panel.OpenSession(env.SessionID)
			a.openedAt[env.SessionID] = time.Now()
			log.Info(log.CatAssembly, "Opened session from stream", "session", env.SessionID)
		}
	}

	if a.store != nil {
		if err := a.store.Append(env); err != nil {
			log.ErrorErr(log.CatHistory, "Failed to persist envelope", err,
				"session", env.SessionID)
		}
	}

	a.mux.Route(env)
}

// View renders the panel. zone.Scan registers clickable regions at their
// final screen coordinates.
func (a App) View() string {
	return zone.Scan(a.panel.View())
}

// Close tears the pipeline down and archives assembled transcripts.
func (a App) Close() error {
	a.panel.Cleanup()

	if err := a.source.Cancel(); err != nil {
		log.ErrorErr(log.CatTransport, "Cancel failed", err)
	}

	var firstErr error
	if a.archive != nil {
		for id, openedAt := range a.openedAt {
			messages := a.mux.History(id)
			if len(messages) == 0 {
				continue
			}
			if err := a.archive.SaveSession(id, openedAt, messages); err != nil {
				log.ErrorErr(log.CatDB, "Failed to archive session", err, "session", id)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.mux.Close()
	return firstErr
}

// Panel exposes the chat panel for tests.
func (a App) Panel() chatpanel.Model { return a.panel }
