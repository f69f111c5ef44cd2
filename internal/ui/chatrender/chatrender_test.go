package chatrender

import (
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/protocol"
)

func assistantMsg(blocks ...assembly.Block) *assembly.Message {
	return &assembly.Message{ID: "m1", Role: assembly.RoleAssistant, Blocks: blocks}
}

func userMsg(text string) *assembly.Message {
	return &assembly.Message{ID: "u1", Role: assembly.RoleUser, Blocks: []assembly.Block{&assembly.TextBlock{Text: text}}}
}

func TestRenderMessages_UserAndAssistantLabels(t *testing.T) {
	msgs := []*assembly.Message{
		userMsg("hello there"),
		assistantMsg(&assembly.TextBlock{Text: "hi back"}),
	}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "You")
	require.Contains(t, out, "hello there")
	require.Contains(t, out, "Assistant")
	require.Contains(t, out, "hi back")
	require.Less(t, strings.Index(out, "hello there"), strings.Index(out, "hi back"))
}

func TestRenderMessages_CustomLabels(t *testing.T) {
	msgs := []*assembly.Message{
		userMsg("q"),
		assistantMsg(&assembly.TextBlock{Text: "a"}),
	}

	out := RenderMessages(msgs, 80, RenderConfig{AgentLabel: "Agent", UserLabel: "Me"})

	require.Contains(t, out, "Agent")
	require.Contains(t, out, "Me")
	require.NotContains(t, out, "You")
}

func TestRenderMessages_ToolSequencePrefixes(t *testing.T) {
	msgs := []*assembly.Message{assistantMsg(
		&assembly.ToolUseBlock{ID: "t1", Name: "Read", Input: protocol.ReadInput{FilePath: "/tmp/a.go"}},
		&assembly.ToolUseBlock{ID: "t2", Name: "Read", Input: protocol.ReadInput{FilePath: "/tmp/b.go"}},
		&assembly.ToolUseBlock{ID: "t3", Name: "Read", Input: protocol.ReadInput{FilePath: "/tmp/c.go"}},
	)}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "├╴ Read: a.go")
	require.Contains(t, out, "├╴ Read: b.go")
	require.Contains(t, out, "╰╴ Read: c.go")
}

func TestRenderMessages_SingleToolGetsClosingPrefix(t *testing.T) {
	msgs := []*assembly.Message{assistantMsg(
		&assembly.ToolUseBlock{ID: "t1", Name: "Bash", Input: protocol.BashInput{Description: "list files"}},
	)}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "╰╴ Bash: list files")
	require.NotContains(t, out, "├╴")
}

func TestRenderMessages_TextBreaksToolSequence(t *testing.T) {
	msgs := []*assembly.Message{assistantMsg(
		&assembly.ToolUseBlock{ID: "t1", Name: "Glob", Input: protocol.SearchInput{Pattern: "*.go"}},
		&assembly.TextBlock{Text: "found them"},
		&assembly.ToolUseBlock{ID: "t2", Name: "Glob", Input: protocol.SearchInput{Pattern: "*.md"}},
	)}

	out := RenderMessages(msgs, 80, RenderConfig{})

	// Both sequences are length one, so both close.
	require.Contains(t, out, "╰╴ Glob: *.go")
	require.Contains(t, out, "╰╴ Glob: *.md")
	require.NotContains(t, out, "├╴")
}

func TestRenderMessages_NestedToolChildren(t *testing.T) {
	task := &assembly.ToolUseBlock{
		ID: "t1", Name: "Task", Input: protocol.TaskInput{Description: "explore repo"},
		Children: []*assembly.ToolUseBlock{
			{ID: "c1", Name: "Grep", Input: protocol.SearchInput{Pattern: "func main"}},
			{ID: "c2", Name: "Read", Input: protocol.ReadInput{FilePath: "/src/main.go"}},
		},
	}
	msgs := []*assembly.Message{assistantMsg(task)}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "╰╴ Task: explore repo")
	require.Contains(t, out, "  ├╴ Grep: func main")
	require.Contains(t, out, "  ╰╴ Read: main.go")
}

func TestRenderMessages_MarkerIsDividerAndRestartsLabel(t *testing.T) {
	msgs := []*assembly.Message{assistantMsg(
		&assembly.TextBlock{Text: "before"},
		&assembly.TextBlock{Text: "Context cleared", Marker: true},
		&assembly.TextBlock{Text: "after"},
	)}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "── Context cleared ──")
	// Label is re-emitted after the divider.
	require.Equal(t, 2, strings.Count(out, "Assistant"))
}

func TestRenderMessages_ThinkingHiddenByDefault(t *testing.T) {
	msgs := []*assembly.Message{assistantMsg(
		&assembly.ThinkingBlock{Text: "pondering deeply"},
		&assembly.TextBlock{Text: "answer"},
	)}

	hidden := RenderMessages(msgs, 80, RenderConfig{})
	shown := RenderMessages(msgs, 80, RenderConfig{ShowThinking: true})

	require.NotContains(t, hidden, "pondering deeply")
	require.Contains(t, shown, "pondering deeply")
	require.Contains(t, shown, "answer")
}

func TestRenderMessages_ToolResultSnippet(t *testing.T) {
	msgs := []*assembly.Message{assistantMsg(
		&assembly.ToolUseBlock{
			ID: "t1", Name: "Bash", Input: protocol.BashInput{Command: "go version"},
			Result: "go version go1.24\nextra line", HasResult: true,
		},
	)}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "→ go version go1.24")
	require.NotContains(t, out, "extra line")
}

func TestRenderMessages_ToolRoleMessagesSkipped(t *testing.T) {
	msgs := []*assembly.Message{
		assistantMsg(&assembly.ToolUseBlock{ID: "t1", Name: "Read", Result: "contents", HasResult: true}),
		{ID: "r1", Role: assembly.RoleTool, ToolUseID: "t1", Blocks: []assembly.Block{&assembly.TextBlock{Text: "contents"}}},
	}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Equal(t, 1, strings.Count(out, "contents"))
}

func TestRenderMessages_TodoChecklist(t *testing.T) {
	msgs := []*assembly.Message{assistantMsg(
		&assembly.ToolUseBlock{ID: "t1", Name: "TodoWrite", Input: protocol.TodoWriteInput{Todos: []protocol.TodoItem{
			{Content: "write parser", Status: protocol.TodoCompleted},
			{Content: "write renderer", ActiveForm: "Writing renderer", Status: protocol.TodoInProgress},
			{Content: "write tests", Status: protocol.TodoPending},
		}}},
	)}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "TodoWrite: 1/3 done")
	require.Contains(t, out, "☑ write parser")
	require.Contains(t, out, "◐ Writing renderer")
	require.Contains(t, out, "☐ write tests")
}

func TestRenderMessages_CommandStatusGlyphs(t *testing.T) {
	tests := []struct {
		name   string
		status protocol.CommandStatus
		glyph  string
	}{
		{"running", protocol.StatusRunning, "●"},
		{"completed", protocol.StatusCompleted, "✓"},
		{"failed", protocol.StatusFailed, "✗"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []*assembly.Message{assistantMsg(&assembly.CommandBlock{
				Handle: "h1", Kind: protocol.CommandBuild, Command: "go build ./...", Status: tt.status,
			})}

			out := RenderMessages(msgs, 80, RenderConfig{})

			require.Contains(t, out, tt.glyph+" build: go build ./...")
		})
	}
}

func TestRenderMessages_CommandOutputTail(t *testing.T) {
	output := "line1\nline2\nline3\nline4\nline5\nline6\nline7\n"
	msgs := []*assembly.Message{assistantMsg(&assembly.CommandBlock{
		Handle: "h1", Kind: protocol.CommandTest, Output: output, Status: protocol.StatusRunning,
	})}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.NotContains(t, out, "line1")
	require.NotContains(t, out, "line2")
	require.Contains(t, out, "line3")
	require.Contains(t, out, "line7")
}

func TestRenderMessages_SystemDiagnostic(t *testing.T) {
	msgs := []*assembly.Message{
		{ID: "s1", Role: assembly.RoleSystem, Blocks: []assembly.Block{&assembly.TextBlock{Text: "unrecognized event: mystery_kind"}}},
	}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "System")
	require.Contains(t, out, "unrecognized event: mystery_kind")
}

func TestRenderMessages_UserAttachments(t *testing.T) {
	msgs := []*assembly.Message{
		{ID: "u1", Role: assembly.RoleUser,
			Blocks:      []assembly.Block{&assembly.TextBlock{Text: "see attached"}},
			Attachments: []protocol.Attachment{{Name: "screenshot.png"}, {Path: "/tmp/trace.log"}}},
	}

	out := RenderMessages(msgs, 80, RenderConfig{})

	require.Contains(t, out, "screenshot.png")
	require.Contains(t, out, "/tmp/trace.log")
}

func TestToolLabel(t *testing.T) {
	tests := []struct {
		name  string
		block *assembly.ToolUseBlock
		want  string
	}{
		{"bash description wins", &assembly.ToolUseBlock{Name: "Bash", Input: protocol.BashInput{Command: "ls -la", Description: "list files"}}, "Bash: list files"},
		{"bash command fallback", &assembly.ToolUseBlock{Name: "Bash", Input: protocol.BashInput{Command: "ls -la"}}, "Bash: ls -la"},
		{"read shows basename", &assembly.ToolUseBlock{Name: "Read", Input: protocol.ReadInput{FilePath: "/very/long/path/file.go"}}, "Read: file.go"},
		{"edit shows basename", &assembly.ToolUseBlock{Name: "Edit", Input: protocol.EditInput{FilePath: "/src/x.go"}}, "Edit: x.go"},
		{"search shows pattern", &assembly.ToolUseBlock{Name: "Grep", Input: protocol.SearchInput{Pattern: "func main"}}, "Grep: func main"},
		{"task shows description", &assembly.ToolUseBlock{Name: "Task", Input: protocol.TaskInput{Description: "explore"}}, "Task: explore"},
		{"generic falls back to name", &assembly.ToolUseBlock{Name: "WebFetch", Input: protocol.GenericInput{"url": "https://example.com"}}, "WebFetch"},
		{"nil input falls back to name", &assembly.ToolUseBlock{Name: "Mystery"}, "Mystery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ToolLabel(tt.block))
		})
	}
}

func TestToolLabel_TruncatesLongCommand(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := ToolLabel(&assembly.ToolUseBlock{Name: "Bash", Input: protocol.BashInput{Command: long}})

	require.True(t, strings.HasSuffix(got, "…"))
	require.Less(t, len(got), len("Bash: ")+len(long))
}

func TestRenderWordDiff(t *testing.T) {
	out := RenderWordDiff("the quick fox", "the slow fox")

	require.Contains(t, out, "the")
	require.Contains(t, out, "quick")
	require.Contains(t, out, "slow")
}

func TestRenderWordDiff_EmptyInputs(t *testing.T) {
	require.Empty(t, RenderWordDiff("", ""))
}

func TestRenderWordDiff_EmitsStyledSegments(t *testing.T) {
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })

	out := RenderWordDiff("the quick fox", "the slow fox")

	require.Contains(t, out, "\x1b[")
}

func TestRenderWordDiff_OversizedInputsSummarized(t *testing.T) {
	old := strings.Repeat("a\n", 400)
	out := RenderWordDiff(old, "b")

	require.Contains(t, out, "lines")
}

func TestTruncateWidth(t *testing.T) {
	require.Equal(t, "short", TruncateWidth("short", 10))
	require.Equal(t, "", TruncateWidth("anything", 0))

	got := TruncateWidth("abcdefghij", 5)
	require.Equal(t, "abcd…", got)
}

func TestTruncateWidth_WideRunes(t *testing.T) {
	// Each CJK rune is two cells wide.
	got := TruncateWidth("日本語テスト", 7)
	require.Equal(t, "日本語…", got)
}

func TestRenderCache_ReturnsStableRenderForUnchangedTranscript(t *testing.T) {
	cache := NewRenderCache()
	msgs := []*assembly.Message{userMsg("hello"), assistantMsg(&assembly.TextBlock{Text: "world"})}

	first := cache.Render(context.Background(), "s1", msgs, 80, RenderConfig{})
	second := cache.Render(context.Background(), "s1", msgs, 80, RenderConfig{})

	require.Equal(t, first, second)
	require.Contains(t, first, "world")
}

func TestRenderCache_InvalidatesOnGrowth(t *testing.T) {
	cache := NewRenderCache()
	msgs := []*assembly.Message{assistantMsg(&assembly.TextBlock{Text: "partial"})}

	first := cache.Render(context.Background(), "s1", msgs, 80, RenderConfig{})
	msgs[0].Blocks[0].(*assembly.TextBlock).Text = "partial grew"
	second := cache.Render(context.Background(), "s1", msgs, 80, RenderConfig{})

	require.NotEqual(t, first, second)
	require.Contains(t, second, "partial grew")
}

func TestRenderCache_KeyedBySessionAndWidth(t *testing.T) {
	cache := NewRenderCache()
	a := []*assembly.Message{assistantMsg(&assembly.TextBlock{Text: "aaaa"})}
	b := []*assembly.Message{assistantMsg(&assembly.TextBlock{Text: "bbbb"})}

	outA := cache.Render(context.Background(), "sa", a, 80, RenderConfig{})
	outB := cache.Render(context.Background(), "sb", b, 80, RenderConfig{})

	require.Contains(t, outA, "aaaa")
	require.Contains(t, outB, "bbbb")
}
