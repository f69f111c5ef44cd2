package chatrender

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/protocol"
)

// commandOutputTailLines bounds how much accumulated output is shown inline.
const commandOutputTailLines = 5

var (
	commandRunningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"})
	commandDoneStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#43BF6D"})
	commandFailedStyle = lipgloss.NewStyle().
				Foreground(SystemColor)
	commandOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#555555"})
)

// renderCommandBlock writes a status line for a long-running command plus a
// tail of its accumulated output.
func renderCommandBlock(content *strings.Builder, b *assembly.CommandBlock, wrapWidth int) {
	label := string(b.Kind)
	if label == "" {
		label = "command"
	}
	if b.Command != "" {
		label = fmt.Sprintf("%s: %s", label, TruncateWidth(b.Command, maxCommandDisplay))
	}

	var line string
	switch b.Status {
	case protocol.StatusCompleted:
		line = commandDoneStyle.Render("✓ " + label)
	case protocol.StatusFailed:
		line = commandFailedStyle.Render("✗ " + label)
	default:
		line = commandRunningStyle.Render("● " + label)
	}
	content.WriteString(line + "\n")

	for _, out := range outputTail(b.Output, commandOutputTailLines) {
		content.WriteString(commandOutputStyle.Render("  "+TruncateWidth(out, wrapWidth-4)) + "\n")
	}
	content.WriteString("\n")
}

// outputTail returns the last n non-empty lines of accumulated output.
func outputTail(output string, n int) []string {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}
