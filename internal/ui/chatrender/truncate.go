package chatrender

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// TruncateWidth truncates plain text to fit within the given display width,
// appending an ellipsis when anything was cut. Grapheme clusters are never
// split, so emoji and combining sequences survive truncation intact.
// Styled text must go through ansi.Truncate instead; this helper does not
// understand escape sequences.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}

	var result strings.Builder
	currentWidth := 0

	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		clusterWidth := runewidth.StringWidth(cluster)
		if currentWidth+clusterWidth > maxWidth-1 {
			break
		}
		result.WriteString(cluster)
		currentWidth += clusterWidth
	}

	return result.String() + "…"
}
