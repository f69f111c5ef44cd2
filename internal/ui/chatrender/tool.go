package chatrender

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/protocol"
)

// Display truncation bounds for one-line tool labels.
const (
	maxCommandDisplay = 50
	maxPatternDisplay = 30
	maxResultDisplay  = 80
)

var (
	// ToolResultStyle is for the inline result snippet under an invocation.
	ToolResultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#555555"})

	todoDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#43BF6D"})
	todoActiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"})
)

// ToolLabel returns a one-line display string for a tool invocation,
// derived from its decoded input.
// For Bash tools it shows the description (or command if no description).
// For file tools it shows just the filename for brevity.
func ToolLabel(b *assembly.ToolUseBlock) string {
	switch in := b.Input.(type) {
	case protocol.BashInput:
		if in.Description != "" {
			return fmt.Sprintf("%s: %s", b.Name, in.Description)
		}
		if in.Command != "" {
			return fmt.Sprintf("%s: %s", b.Name, TruncateWidth(in.Command, maxCommandDisplay))
		}
	case protocol.ReadInput:
		if in.FilePath != "" {
			return fmt.Sprintf("%s: %s", b.Name, filepath.Base(in.FilePath))
		}
	case protocol.WriteInput:
		if in.FilePath != "" {
			return fmt.Sprintf("%s: %s", b.Name, filepath.Base(in.FilePath))
		}
	case protocol.EditInput:
		if in.FilePath != "" {
			return fmt.Sprintf("%s: %s", b.Name, filepath.Base(in.FilePath))
		}
	case protocol.SearchInput:
		if in.Pattern != "" {
			return fmt.Sprintf("%s: %s", b.Name, TruncateWidth(in.Pattern, maxPatternDisplay))
		}
	case protocol.TaskInput:
		if in.Description != "" {
			return fmt.Sprintf("%s: %s", b.Name, in.Description)
		}
	case protocol.TodoWriteInput:
		done := 0
		for _, t := range in.Todos {
			if t.Status == protocol.TodoCompleted {
				done++
			}
		}
		return fmt.Sprintf("%s: %d/%d done", b.Name, done, len(in.Todos))
	}
	return b.Name
}

// renderToolBlock writes one invocation line plus any detail lines (todo
// checklist, edit diff, result snippet) and recurses into sub-agent children.
// indent grows by two spaces per nesting level.
func renderToolBlock(content *strings.Builder, b *assembly.ToolUseBlock, prefix, indent string, wrapWidth int) {
	content.WriteString(indent + ToolCallStyle.Render(prefix+ToolLabel(b)) + "\n")

	detailIndent := indent + "   "

	if in, ok := b.Input.(protocol.TodoWriteInput); ok {
		for _, t := range in.Todos {
			content.WriteString(detailIndent + renderTodoItem(t) + "\n")
		}
	}

	if in, ok := b.Input.(protocol.EditInput); ok {
		if diff := RenderWordDiff(in.OldString, in.NewString); diff != "" {
			content.WriteString(detailIndent + diff + "\n")
		}
	}

	if b.HasResult {
		snippet := firstLine(b.Result)
		if snippet != "" {
			content.WriteString(detailIndent + ToolResultStyle.Render("→ "+TruncateWidth(snippet, maxResultDisplay)) + "\n")
		}
	}

	for i, child := range b.Children {
		childPrefix := "├╴ "
		if i == len(b.Children)-1 {
			childPrefix = "╰╴ "
		}
		renderToolBlock(content, child, childPrefix, indent+"  ", wrapWidth)
	}
}

// renderTodoItem renders one checklist entry with a status glyph.
// In-progress items show their active form when the agent provided one.
func renderTodoItem(t protocol.TodoItem) string {
	switch t.Status {
	case protocol.TodoCompleted:
		return todoDoneStyle.Render("☑ " + t.Content)
	case protocol.TodoInProgress:
		label := t.Content
		if t.ActiveForm != "" {
			label = t.ActiveForm
		}
		return todoActiveStyle.Render("◐ " + label)
	default:
		return ToolCallStyle.Render("☐ " + t.Content)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
