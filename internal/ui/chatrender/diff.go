package chatrender

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Word diff bounds. Inputs past these are summarized instead of diffed so a
// pathological edit cannot stall a render pass.
const (
	wordDiffMaxInputLen = 500
	wordDiffMaxDisplay  = 80
)

var (
	diffDeletedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}).
				Strikethrough(true)
	diffInsertedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#A6E3A1"})
)

// RenderWordDiff produces a one-line styled diff between the old and new
// text of an edit. Returns "" when there is nothing meaningful to show.
// Newlines are flattened; the snippet is display-width bounded.
func RenderWordDiff(oldText, newText string) string {
	if oldText == "" && newText == "" {
		return ""
	}
	if len(oldText) > wordDiffMaxInputLen || len(newText) > wordDiffMaxInputLen {
		return diffDeletedStyle.Render("-"+countLabel(oldText)) + " " +
			diffInsertedStyle.Render("+"+countLabel(newText))
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var out strings.Builder
	for _, d := range diffs {
		text := flatten(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			out.WriteString(diffDeletedStyle.Render(text))
		case diffmatchpatch.DiffInsert:
			out.WriteString(diffInsertedStyle.Render(text))
		case diffmatchpatch.DiffEqual:
			out.WriteString(text)
		}
	}
	// ansi.Truncate is escape-sequence aware, so cutting a styled segment
	// mid-run cannot leave the terminal in a stuck style.
	return ansi.Truncate(out.String(), wordDiffMaxDisplay, "…")
}

// flatten collapses newlines so the diff stays on one display line.
func flatten(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func countLabel(s string) string {
	if s == "" {
		return "0 lines"
	}
	n := strings.Count(s, "\n") + 1
	if n == 1 {
		return "1 line"
	}
	return fmt.Sprintf("%d lines", n)
}
