// Package chatrender renders assembled session transcripts as styled
// terminal output for the chat panel.
package chatrender

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/protocol"
	"github.com/zjrosen/weft/internal/ui/markdown"
)

// Role colors - consistent colors for each speaker across the app.
var (
	AssistantColor = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#179299"}
	UserColor      = lipgloss.AdaptiveColor{Light: "#FB923C", Dark: "#FB923C"}
	SystemColor    = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	ThinkingColor  = lipgloss.AdaptiveColor{Light: "#A066D3", Dark: "#A066D3"}
)

// Chat rendering styles.
var (
	// RoleStyle applies bold formatting to role labels.
	RoleStyle = lipgloss.NewStyle().Bold(true)

	// ToolCallStyle is for tool call display (muted).
	ToolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})

	// ThinkingStyle renders the reasoning track dimmer than prose.
	ThinkingStyle = lipgloss.NewStyle().
			Foreground(ThinkingColor).
			Italic(true)

	// MarkerStyle renders structural boundaries (context cleared, compacted).
	MarkerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})

	// AttachmentStyle is for user message attachment listings.
	AttachmentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#888888"})
)

// RenderConfig configures how transcripts are rendered.
type RenderConfig struct {
	AgentLabel   string                 // Label for assistant messages (default: "Assistant")
	AgentColor   lipgloss.AdaptiveColor // Color for the assistant role label
	UserLabel    string                 // Label for user messages (default: "You")
	ShowThinking bool                   // Render thinking blocks; hidden when false
	Markdown     *markdown.Renderer     // Optional markdown renderer for assistant prose
}

// RenderMessages renders a transcript with tool call grouping.
// Tool result messages are skipped; their output is shown inline on the
// matched invocation block.
func RenderMessages(messages []*assembly.Message, wrapWidth int, cfg RenderConfig) string {
	var content strings.Builder

	userLabel := cfg.UserLabel
	if userLabel == "" {
		userLabel = "You"
	}
	agentLabel := cfg.AgentLabel
	if agentLabel == "" {
		agentLabel = "Assistant"
	}
	agentColor := cfg.AgentColor
	if agentColor.Dark == "" && agentColor.Light == "" {
		agentColor = AssistantColor
	}

	for _, msg := range messages {
		switch msg.Role {
		case assembly.RoleUser:
			roleLabel := RoleStyle.Foreground(UserColor).Render(userLabel)
			content.WriteString(roleLabel + "\n")
			content.WriteString(WordWrap(msg.Text(), wrapWidth-4) + "\n")
			for _, att := range msg.Attachments {
				content.WriteString(AttachmentStyle.Render("📎 "+attachmentLabel(att)) + "\n")
			}
			content.WriteString("\n")

		case assembly.RoleSystem:
			roleLabel := RoleStyle.Foreground(SystemColor).Render("System")
			content.WriteString(roleLabel + "\n")
			content.WriteString(WordWrap(msg.Text(), wrapWidth-4) + "\n\n")

		case assembly.RoleAssistant:
			renderAssistant(&content, msg, wrapWidth, agentLabel, agentColor, cfg)

		case assembly.RoleTool:
			// Result text already lives on the matched tool block.
		}
	}

	return strings.TrimRight(content.String(), "\n")
}

// renderAssistant renders one assistant message block by block.
// CRITICAL: Tool call sequence detection boundary conditions must be preserved:
// - Single tool call: Both first AND last (gets ╰╴ character)
// - First block is a tool call: i == 0 check prevents index out of bounds
// - Last block is a tool call: i == len-1 check prevents index out of bounds
// - Non-tool block between tool calls: Correctly breaks sequences
func renderAssistant(content *strings.Builder, msg *assembly.Message, wrapWidth int, agentLabel string, agentColor lipgloss.AdaptiveColor, cfg RenderConfig) {
	blocks := msg.Blocks
	labelWritten := false
	writeLabel := func() {
		if !labelWritten {
			content.WriteString(RoleStyle.Foreground(agentColor).Render(agentLabel) + "\n")
			labelWritten = true
		}
	}

	isTool := func(i int) bool {
		if i < 0 || i >= len(blocks) {
			return false
		}
		_, ok := blocks[i].(*assembly.ToolUseBlock)
		return ok
	}

	for i, block := range blocks {
		switch b := block.(type) {
		case *assembly.TextBlock:
			if b.Marker {
				content.WriteString(MarkerStyle.Render("── "+strings.TrimSpace(b.Text)+" ──") + "\n\n")
				labelWritten = false
				continue
			}
			writeLabel()
			content.WriteString(renderProse(b.Text, wrapWidth, cfg) + "\n\n")

		case *assembly.ThinkingBlock:
			if !cfg.ShowThinking {
				continue
			}
			writeLabel()
			content.WriteString(ThinkingStyle.Render(WordWrap(b.Text, wrapWidth-4)) + "\n\n")

		case *assembly.ToolUseBlock:
			writeLabel()
			isLastInSequence := !isTool(i + 1)

			prefix := "├╴ "
			if isLastInSequence {
				prefix = "╰╴ "
			}
			renderToolBlock(content, b, prefix, "", wrapWidth)
			if isLastInSequence {
				content.WriteString("\n")
			}

		case *assembly.CommandBlock:
			writeLabel()
			renderCommandBlock(content, b, wrapWidth)
		}
	}
}

// renderProse renders assistant prose, through markdown when configured.
func renderProse(text string, wrapWidth int, cfg RenderConfig) string {
	if cfg.Markdown != nil {
		if out, err := cfg.Markdown.Render(text); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return WordWrap(text, wrapWidth-4)
}

// attachmentLabel picks the most specific identifier for display.
func attachmentLabel(att protocol.Attachment) string {
	if att.Name != "" {
		return att.Name
	}
	if att.Path != "" {
		return att.Path
	}
	return att.MimeType
}

// WordWrap wraps text at the given width, preserving explicit newlines.
func WordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}
