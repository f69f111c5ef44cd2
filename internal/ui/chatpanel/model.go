// Package chatpanel provides the terminal chat view over assembled session
// transcripts. It subscribes to multiplexer history changes and re-renders
// the session the user is viewing; inactive sessions keep assembling in the
// background and surface a new-activity indicator on their tab.
package chatpanel

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/pubsub"
	"github.com/zjrosen/weft/internal/ui/chatrender"
	"github.com/zjrosen/weft/internal/ui/markdown"
)

// chromeHeight is the non-viewport portion of the panel: tab bar + status line.
const chromeHeight = 2

// SessionData encapsulates per-session view state. Transcript content lives
// in the multiplexer; this only tracks how the user is looking at it.
type SessionData struct {
	// ID is the session identifier the multiplexer routes by.
	ID string
	// Viewport manages scroll state for this session.
	Viewport viewport.Model
	// ContentDirty indicates the viewport needs re-rendering.
	ContentDirty bool
	// HasNewContent indicates content arrived while this session was not active.
	HasNewContent bool
	// CreatedAt is when this session was opened (for display/sorting).
	CreatedAt time.Time
	// LastActivity is when the last envelope landed in this session.
	LastActivity time.Time
}

// Model holds the chat panel state.
type Model struct {
	mux    *assembly.Multiplexer
	cache  *chatrender.RenderCache
	md     *markdown.Renderer
	config Config

	width  int
	height int

	showThinking bool

	// Sessions are stored behind pointers so scroll state mutated during
	// View persists even though Model has value semantics.
	sessions        map[string]*SessionData
	sessionOrder    []string
	activeSessionID string

	changes <-chan pubsub.Event[assembly.HistoryChange]
	ctx     context.Context
	cancel  context.CancelFunc

	// Clock is the time source for testing. If nil, uses time.Now().
	Clock func() time.Time
}

// New creates a chat panel bound to a multiplexer. Sessions already open on
// the multiplexer get view state immediately; later opens go through
// OpenSession.
func New(mux *assembly.Multiplexer, cfg Config) Model {
	if cfg.AgentLabel == "" {
		cfg.AgentLabel = "Assistant"
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		mux:          mux,
		cache:        chatrender.NewRenderCache(),
		config:       cfg,
		showThinking: cfg.ShowThinking,
		sessions:     make(map[string]*SessionData),
		changes:      mux.Subscribe(ctx),
		ctx:          ctx,
		cancel:       cancel,
	}

	for _, id := range mux.Sessions() {
		m = m.track(id)
	}
	m.activeSessionID = mux.ActiveSessionID()
	return m
}

// Init starts listening for history changes.
func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) listen() tea.Cmd {
	return pubsub.ListenCmd(m.ctx, m.changes)
}

// OpenSession opens a session on the multiplexer and starts tracking it.
// The first opened session becomes active.
func (m Model) OpenSession(id string) Model {
	m.mux.OpenSession(id)
	m = m.track(id)
	m.activeSessionID = m.mux.ActiveSessionID()
	return m
}

// track adds view state for a session id, idempotently.
func (m Model) track(id string) Model {
	if _, exists := m.sessions[id]; exists {
		return m
	}
	now := m.now()
	m.sessions[id] = &SessionData{
		ID:           id,
		Viewport:     viewport.New(m.contentWidth(), m.contentHeight()),
		ContentDirty: true,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.sessionOrder = append(m.sessionOrder, id)
	return m
}

// SwitchSession makes the given session active in both the panel and the
// multiplexer. Returns false if the session is not tracked.
func (m Model) SwitchSession(id string) (Model, bool) {
	session, exists := m.sessions[id]
	if !exists {
		return m, false
	}
	m.mux.SetActiveSession(id)
	m.activeSessionID = id
	session.HasNewContent = false
	session.ContentDirty = true
	log.Debug(log.CatUI, "Switched session", "session", id)
	return m, true
}

// NextSession cycles to the next session in display order.
func (m Model) NextSession() Model {
	if len(m.sessionOrder) < 2 {
		return m
	}
	idx := m.activeSessionIndex()
	next := m.sessionOrder[(idx+1)%len(m.sessionOrder)]
	m, _ = m.SwitchSession(next)
	return m
}

// PrevSession cycles to the previous session in display order.
func (m Model) PrevSession() Model {
	if len(m.sessionOrder) < 2 {
		return m
	}
	idx := m.activeSessionIndex()
	prev := m.sessionOrder[(idx-1+len(m.sessionOrder))%len(m.sessionOrder)]
	m, _ = m.SwitchSession(prev)
	return m
}

func (m Model) activeSessionIndex() int {
	for i, id := range m.sessionOrder {
		if id == m.activeSessionID {
			return i
		}
	}
	return 0
}

// ActiveSession returns the active session's view state, or nil.
func (m Model) ActiveSession() *SessionData {
	if m.activeSessionID == "" {
		return nil
	}
	return m.sessions[m.activeSessionID]
}

// ActiveSessionID returns the id of the session being viewed.
func (m Model) ActiveSessionID() string {
	return m.activeSessionID
}

// SessionCount returns the number of tracked sessions.
func (m Model) SessionCount() int {
	return len(m.sessions)
}

// ShowThinking reports whether the reasoning track is rendered.
func (m Model) ShowThinking() bool {
	return m.showThinking
}

// SetSize updates panel dimensions and resizes every session viewport.
// The markdown renderer is width-bound, so it is rebuilt here.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height

	for _, session := range m.sessions {
		session.Viewport.Width = m.contentWidth()
		session.Viewport.Height = m.contentHeight()
		session.ContentDirty = true
	}

	md, err := markdown.New(m.contentWidth(), m.config.MarkdownStyle)
	if err != nil {
		log.Warn(log.CatUI, "Markdown renderer unavailable, falling back to plain text", "error", err)
		md = nil
	}
	m.md = md
	return m
}

func (m Model) contentWidth() int {
	return max(m.width, 1)
}

func (m Model) contentHeight() int {
	return max(m.height-chromeHeight, 1)
}

// Update handles panel messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[assembly.HistoryChange]:
		return m.handleHistoryChange(msg.Payload)

	case tea.WindowSizeMsg:
		return m.SetSize(msg.Width, msg.Height), nil

	case tea.KeyMsg:
		return m.handleKey(msg), nil

	case tea.MouseMsg:
		return m.handleMouse(msg), nil
	}

	return m, nil
}

// handleHistoryChange marks the changed session dirty. Changes to sessions
// the user is not viewing only flip the new-activity indicator; the actual
// re-render happens if and when that session becomes active.
func (m Model) handleHistoryChange(change assembly.HistoryChange) (Model, tea.Cmd) {
	// Sessions opened directly on the multiplexer still get view state.
	m = m.track(change.SessionID)
	if m.activeSessionID == "" {
		m.activeSessionID = m.mux.ActiveSessionID()
	}

	session := m.sessions[change.SessionID]
	session.ContentDirty = true
	session.LastActivity = m.now()
	if change.SessionID != m.activeSessionID {
		session.HasNewContent = true
	}

	return m, m.listen()
}

func (m Model) handleKey(msg tea.KeyMsg) Model {
	session := m.ActiveSession()

	switch msg.String() {
	case "tab":
		return m.NextSession()
	case "shift+tab":
		return m.PrevSession()
	case "t":
		m.showThinking = !m.showThinking
		for _, s := range m.sessions {
			s.ContentDirty = true
		}
		if m.config.OnToggleThinking != nil {
			m.config.OnToggleThinking(m.showThinking)
		}
		return m
	case "j", "down":
		if session != nil {
			session.Viewport.ScrollDown(1)
		}
	case "k", "up":
		if session != nil {
			session.Viewport.ScrollUp(1)
		}
	case "g", "home":
		if session != nil {
			session.Viewport.GotoTop()
		}
	case "G", "end":
		if session != nil {
			session.Viewport.GotoBottom()
		}
	}

	if session != nil && session.Viewport.AtBottom() {
		session.HasNewContent = false
	}
	return m
}

func (m Model) handleMouse(msg tea.MouseMsg) Model {
	// Tab clicks switch sessions.
	if msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress {
		for i, id := range m.sessionOrder {
			if z := zone.Get(makeTabZoneID(i)); z != nil && z.InBounds(msg) {
				m, _ = m.SwitchSession(id)
				return m
			}
		}
		return m
	}

	if msg.Button != tea.MouseButtonWheelUp && msg.Button != tea.MouseButtonWheelDown {
		return m
	}

	session := m.ActiveSession()
	if session == nil {
		return m
	}

	if msg.Button == tea.MouseButtonWheelUp {
		session.Viewport.ScrollUp(1)
	} else {
		session.Viewport.ScrollDown(1)
	}

	if session.Viewport.AtBottom() {
		session.HasNewContent = false
	}
	return m
}

// Cleanup tears down the history subscription.
func (m Model) Cleanup() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m Model) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}
