package assembly

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/weft/internal/protocol"
)

func textDelta(text string) protocol.Envelope {
	return protocol.Envelope{Kind: protocol.KindAssistantTextDelta, Text: text}
}

func thinkingDelta(text string) protocol.Envelope {
	return protocol.Envelope{Kind: protocol.KindThinkingDelta, Text: text}
}

func toolUse(id, name string, input string) protocol.Envelope {
	return protocol.Envelope{
		Kind:     protocol.KindToolUse,
		ToolID:   id,
		ToolName: name,
		Input:    json.RawMessage(input),
	}
}

func TestAssembler_TextDeltasConcatenate(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(textDelta("Hello, "))
	a.Apply(textDelta("world"))
	a.Apply(textDelta("!"))

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, RoleAssistant, msgs[0].Role)
	require.Len(t, msgs[0].Blocks, 1)
	require.Equal(t, "Hello, world!", msgs[0].Blocks[0].(*TextBlock).Text)
}

func TestAssembler_RoleChangeStartsNewMessage(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(textDelta("draft reply"))
	a.Apply(protocol.Envelope{Kind: protocol.KindUserMessage, Text: "thanks"})
	a.Apply(textDelta("you're welcome"))

	msgs := a.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, RoleAssistant, msgs[0].Role)
	require.Equal(t, RoleUser, msgs[1].Role)
	require.Equal(t, RoleAssistant, msgs[2].Role)
	require.Equal(t, "you're welcome", msgs[2].Text())
}

func TestAssembler_ThinkingAndProseInterleave(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(thinkingDelta("let me "))
	a.Apply(thinkingDelta("think"))
	a.Apply(textDelta("Here is the answer"))
	a.Apply(thinkingDelta("wait"))

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Blocks, 3)
	require.Equal(t, "let me think", msgs[0].Blocks[0].(*ThinkingBlock).Text)
	require.Equal(t, "Here is the answer", msgs[0].Blocks[1].(*TextBlock).Text)
	require.Equal(t, "wait", msgs[0].Blocks[2].(*ThinkingBlock).Text)
}

func TestAssembler_DeltaAfterToolUseStartsNewBlock(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(textDelta("Running a command."))
	a.Apply(toolUse("tu-1", "Bash", `{"command":"ls"}`))
	a.Apply(textDelta("Done."))

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Blocks, 3)
	require.Equal(t, BlockText, msgs[0].Blocks[0].BlockKind())
	require.Equal(t, BlockToolUse, msgs[0].Blocks[1].BlockKind())
	require.Equal(t, "Done.", msgs[0].Blocks[2].(*TextBlock).Text)
}

func TestAssembler_MarkerNeverMerges(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(textDelta("before"))
	a.Apply(protocol.Envelope{Kind: protocol.KindMarker, Text: "context cleared"})
	a.Apply(textDelta("after"))

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Blocks, 3)

	marker := msgs[0].Blocks[1].(*TextBlock)
	require.True(t, marker.Marker)
	require.Equal(t, "context cleared", marker.Text)
	require.Equal(t, "before", msgs[0].Blocks[0].(*TextBlock).Text)
	require.Equal(t, "after", msgs[0].Blocks[2].(*TextBlock).Text)
}

func TestAssembler_ToolResultMatchesInvocation(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(toolUse("tu-1", "Bash", `{"command":"ls"}`))
	a.Apply(protocol.Envelope{
		Kind:      protocol.KindToolResult,
		ToolUseID: "tu-1",
		Content:   "main.go\ngo.mod",
	})

	msgs := a.Messages()
	require.Len(t, msgs, 2)

	blk := msgs[0].Blocks[0].(*ToolUseBlock)
	require.True(t, blk.HasResult)
	require.Equal(t, "main.go\ngo.mod", blk.Result)

	require.Equal(t, RoleTool, msgs[1].Role)
	require.Equal(t, "tu-1", msgs[1].ToolUseID)
	require.Equal(t, "main.go\ngo.mod", msgs[1].Text())
}

func TestAssembler_ToolResultWithoutInvocationStillRecorded(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{
		Kind:      protocol.KindToolResult,
		ToolUseID: "tu-missing",
		Content:   "stray output",
	})

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, RoleTool, msgs[0].Role)
	require.Equal(t, "stray output", msgs[0].Text())
}

func TestAssembler_NestedToolsAttachToScope(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(toolUse("task-1", "Task", `{"description":"explore"}`))
	child := toolUse("tu-2", "Grep", `{"pattern":"func main"}`)
	child.ParentScopeID = "task-1"
	a.Apply(child)

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Blocks, 1, "nested tool should not appear at top level")

	task := msgs[0].Blocks[0].(*ToolUseBlock)
	require.Equal(t, "Task", task.Name)
	require.Len(t, task.Children, 1)
	require.Equal(t, "Grep", task.Children[0].Name)
	require.Zero(t, a.OrphanedTools())
}

func TestAssembler_DeepNesting(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(toolUse("task-1", "Task", `{"description":"outer"}`))
	inner := toolUse("task-2", "Task", `{"description":"inner"}`)
	inner.ParentScopeID = "task-1"
	a.Apply(inner)
	leaf := toolUse("tu-3", "Read", `{"file_path":"main.go"}`)
	leaf.ParentScopeID = "task-2"
	a.Apply(leaf)

	msgs := a.Messages()
	require.Len(t, msgs[0].Blocks, 1)
	outer := msgs[0].Blocks[0].(*ToolUseBlock)
	require.Len(t, outer.Children, 1)
	require.Len(t, outer.Children[0].Children, 1)
	require.Equal(t, "Read", outer.Children[0].Children[0].Name)
}

func TestAssembler_UnknownParentScopeFallsBackToTopLevel(t *testing.T) {
	a := NewAssembler("sess-1")

	orphan := toolUse("tu-1", "Bash", `{"command":"pwd"}`)
	orphan.ParentScopeID = "task-never-seen"
	a.Apply(orphan)

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Blocks, 1, "orphan lands at top level, nothing is lost")
	require.Equal(t, "Bash", msgs[0].Blocks[0].(*ToolUseBlock).Name)
	require.Equal(t, 1, a.OrphanedTools())
}

func TestAssembler_DuplicateToolIDReplacesInPlace(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(toolUse("tu-1", "Bash", `{"command":"ls"}`))
	a.Apply(textDelta("and then"))
	a.Apply(toolUse("tu-1", "Bash", `{"command":"ls -la"}`))

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Blocks, 2, "retry must not add a second block")

	blk := msgs[0].Blocks[0].(*ToolUseBlock)
	require.Equal(t, "ls -la", blk.Input.(protocol.BashInput).Command)
}

func TestAssembler_CommandLifecycle(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{
		Kind:        protocol.KindLongRunningStatus,
		Handle:      "h-1",
		CommandKind: protocol.CommandTest,
		Command:     "make check",
		OutputDelta: "=== RUN TestFoo\n",
		Status:      protocol.StatusRunning,
	})
	a.Apply(protocol.Envelope{
		Kind:        protocol.KindLongRunningStatus,
		Handle:      "h-1",
		OutputDelta: "--- PASS: TestFoo\n",
		Status:      protocol.StatusCompleted,
	})

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Blocks, 1, "updates fold into the original block")

	cmd := msgs[0].Blocks[0].(*CommandBlock)
	require.Equal(t, "make check", cmd.Command)
	require.Equal(t, protocol.CommandTest, cmd.Kind)
	require.Equal(t, "=== RUN TestFoo\n--- PASS: TestFoo\n", cmd.Output)
	require.Equal(t, protocol.StatusCompleted, cmd.Status)
}

func TestAssembler_CommandUpdateAcrossLaterMessages(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{
		Kind:    protocol.KindLongRunningStatus,
		Handle:  "h-1",
		Command: "npm install",
		Status:  protocol.StatusRunning,
	})
	a.Apply(protocol.Envelope{Kind: protocol.KindUserMessage, Text: "how's it going?"})
	a.Apply(textDelta("still installing"))
	a.Apply(protocol.Envelope{
		Kind:   protocol.KindLongRunningStatus,
		Handle: "h-1",
		Status: protocol.StatusFailed,
	})

	msgs := a.Messages()
	require.Len(t, msgs, 3)
	cmd := msgs[0].Blocks[0].(*CommandBlock)
	require.Equal(t, protocol.StatusFailed, cmd.Status)
}

func TestAssembler_CommandTerminalStateSticks(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{
		Kind: protocol.KindLongRunningStatus, Handle: "h-1",
		Command: "go vet", Status: protocol.StatusCompleted,
	})
	a.Apply(protocol.Envelope{
		Kind: protocol.KindLongRunningStatus, Handle: "h-1",
		Status: protocol.StatusFailed,
	})

	cmd := a.Messages()[0].Blocks[0].(*CommandBlock)
	require.Equal(t, protocol.StatusCompleted, cmd.Status)
}

func TestAssembler_UnknownHandleCreatedDefensively(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{
		Kind:        protocol.KindLongRunningStatus,
		Handle:      "h-reconnect",
		OutputDelta: "tail of output\n",
		Status:      protocol.StatusRunning,
	})

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	cmd := msgs[0].Blocks[0].(*CommandBlock)
	require.Equal(t, "h-reconnect", cmd.Handle)
	require.Equal(t, "tail of output\n", cmd.Output)
}

func TestAssembler_UserMessageWithAttachments(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{
		Kind: protocol.KindUserMessage,
		Text: "see the log",
		Attachments: []protocol.Attachment{
			{Name: "crash.log", MimeType: "text/plain"},
		},
	})

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, RoleUser, msgs[0].Role)
	require.Len(t, msgs[0].Attachments, 1)
	require.Equal(t, "crash.log", msgs[0].Attachments[0].Name)
}

func TestAssembler_ConsecutiveUserMessagesStaySeparate(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{Kind: protocol.KindUserMessage, Text: "first"})
	a.Apply(protocol.Envelope{Kind: protocol.KindUserMessage, Text: "second"})

	msgs := a.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Text())
	require.Equal(t, "second", msgs[1].Text())
}

func TestAssembler_UnknownKindBecomesDiagnosticMessage(t *testing.T) {
	a := NewAssembler("sess-1")

	raw := []byte(`{"kind":"telemetry_blob","cpu":0.4}`)
	a.Apply(protocol.Envelope{Kind: "telemetry_blob", Raw: raw})

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, RoleSystem, msgs[0].Role)
	require.Contains(t, msgs[0].Text(), `"telemetry_blob"`)
}

func TestAssembler_EmptyFieldsNeverPanic(t *testing.T) {
	a := NewAssembler("sess-1")

	a.Apply(protocol.Envelope{Kind: protocol.KindAssistantTextDelta})
	a.Apply(protocol.Envelope{Kind: protocol.KindToolUse})
	a.Apply(protocol.Envelope{Kind: protocol.KindToolResult})
	a.Apply(protocol.Envelope{Kind: protocol.KindLongRunningStatus})
	a.Apply(protocol.Envelope{Kind: protocol.KindMarker})
	a.Apply(protocol.Envelope{})

	require.NotZero(t, a.Len())
}

func TestAssembler_ClockStampsMessages(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	a := NewAssembler("sess-1", WithClock(func() time.Time { return at }))

	a.Apply(textDelta("hi"))

	require.Equal(t, at, a.Messages()[0].CreatedAt)
}

func TestAssembler_EnvelopeTimestampWins(t *testing.T) {
	ts := time.Date(2026, 8, 29, 18, 30, 0, 0, time.UTC)
	a := NewAssembler("sess-1")

	env := textDelta("hi")
	env.Timestamp = ts
	a.Apply(env)

	require.Equal(t, ts, a.Messages()[0].CreatedAt)
}
