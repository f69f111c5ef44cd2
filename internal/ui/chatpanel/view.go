package chatpanel

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/weft/internal/ui/chatrender"
)

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(chatrender.AssistantColor).
			Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}).
				Padding(0, 1)
	newContentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFB347"})
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#555555"})
)

// View renders the tab bar, the active session's transcript and a status line.
func (m Model) View() string {
	if m.width < 1 || m.height < 1 {
		return ""
	}

	session := m.ActiveSession()
	if session == nil {
		return statusStyle.Render("no sessions open")
	}

	// Re-render the transcript only when it changed since the last frame.
	// session is a pointer, so scroll and dirty state persist across the
	// value-receiver View call.
	if session.ContentDirty {
		wasAtBottom := session.Viewport.AtBottom()
		content := m.cache.Render(m.ctx, session.ID, m.mux.History(session.ID), m.contentWidth(), chatrender.RenderConfig{
			AgentLabel:   m.config.AgentLabel,
			ShowThinking: m.showThinking,
			Markdown:     m.md,
		})
		session.Viewport.SetContent(content)
		if wasAtBottom {
			session.Viewport.GotoBottom()
		}
		session.ContentDirty = false
	}

	// Note: Do NOT call zone.Scan() here - it must be called at the app level
	// after the panel is positioned, so zones get correct screen coordinates.
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTabBar(),
		session.Viewport.View(),
		m.renderStatusLine(session),
	)
}

// renderTabBar renders one clickable tab per session in display order.
func (m Model) renderTabBar() string {
	var tabs []string
	for i, id := range m.sessionOrder {
		session := m.sessions[id]
		label := id
		if session.HasNewContent {
			label += " " + newContentStyle.Render("●")
		}

		style := inactiveTabStyle
		if id == m.activeSessionID {
			style = activeTabStyle
		}
		tabs = append(tabs, zone.Mark(makeTabZoneID(i), style.Render(label)))
	}
	return strings.Join(tabs, "")
}

func (m Model) renderStatusLine(session *SessionData) string {
	parts := []string{fmt.Sprintf("%d session(s)", len(m.sessions))}
	if m.showThinking {
		parts = append(parts, "thinking shown")
	}
	parts = append(parts, fmt.Sprintf("%3.f%%", session.Viewport.ScrollPercent()*100))
	return statusStyle.Render(strings.Join(parts, " · "))
}
