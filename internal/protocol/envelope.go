// Package protocol defines the inbound event envelope consumed by the
// message-assembly engine. Envelopes arrive as newline-delimited JSON over a
// single shared transport; each carries a kind tag and, optionally, the id of
// the conversation session it belongs to. Envelopes with no session id are
// legacy events with no session affinity and apply to the active session.
package protocol

import (
	"encoding/json"
	"time"
)

// Kind identifies the kind of inbound envelope.
type Kind string

const (
	// KindAssistantTextDelta is a streaming chunk of assistant prose.
	KindAssistantTextDelta Kind = "assistant_text_delta"
	// KindThinkingDelta is a streaming chunk of the model's reasoning trace.
	KindThinkingDelta Kind = "thinking_delta"
	// KindToolUse is a complete tool invocation (never streamed as deltas).
	KindToolUse Kind = "tool_use"
	// KindToolResult carries the output of a prior tool invocation.
	KindToolResult Kind = "tool_result"
	// KindLongRunningStatus reports on an out-of-band background process.
	KindLongRunningStatus Kind = "long_running_status"
	// KindMarker is a structural boundary signal (context cleared,
	// history compacted) rendered verbatim and never merged into
	// neighbouring text.
	KindMarker Kind = "marker"
	// KindUserMessage is a user turn echoed back over the transport.
	KindUserMessage Kind = "user_message"
)

// CommandKind classifies a long-running command.
type CommandKind string

const (
	CommandInstall CommandKind = "install"
	CommandBuild   CommandKind = "build"
	CommandTest    CommandKind = "test"
)

// CommandStatus is the lifecycle state of a long-running command.
// Running is the only non-terminal state.
type CommandStatus string

const (
	StatusRunning   CommandStatus = "running"
	StatusCompleted CommandStatus = "completed"
	StatusFailed    CommandStatus = "failed"
)

// IsTerminal returns true for completed and failed.
func (s CommandStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Attachment is a file or image attached to a user message.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Envelope is one inbound protocol event. It is a flat union: the Kind tag
// determines which fields are meaningful. Unknown kinds are preserved (Raw
// keeps the full payload) so the assembler can surface them for diagnostics
// instead of dropping data.
type Envelope struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"-"`

	// Text carries the chunk for text-bearing kinds (assistant text,
	// thinking, marker) and the content of user messages.
	Text string `json:"text,omitempty"`

	// Tool invocation fields (kind == tool_use).
	ToolID        string          `json:"id,omitempty"`
	ToolName      string          `json:"name,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
	ParentScopeID string          `json:"parent_scope_id,omitempty"`

	// Tool result fields (kind == tool_result).
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"-"` // polymorphic on the wire, see parser.go

	// Long-running command fields (kind == long_running_status).
	Handle      string        `json:"handle,omitempty"`
	CommandKind CommandKind   `json:"command_kind,omitempty"`
	Command     string        `json:"command,omitempty"`
	OutputDelta string        `json:"output_delta,omitempty"`
	Status      CommandStatus `json:"status,omitempty"`

	// User message fields (kind == user_message).
	Attachments []Attachment `json:"attachments,omitempty"`

	// Raw payload for diagnostics.
	Raw json.RawMessage `json:"-"`
}

// HasSession returns true if the envelope carries a session affinity.
func (e *Envelope) HasSession() bool {
	return e.SessionID != ""
}

// IsTextBearing returns true for kinds whose payload is a text chunk that
// accumulates into a content block.
func (e *Envelope) IsTextBearing() bool {
	return e.Kind == KindAssistantTextDelta || e.Kind == KindThinkingDelta
}

// IsKnownKind returns true if Kind is one of the kinds this engine consumes.
func (e *Envelope) IsKnownKind() bool {
	switch e.Kind {
	case KindAssistantTextDelta, KindThinkingDelta, KindToolUse, KindToolResult,
		KindLongRunningStatus, KindMarker, KindUserMessage:
		return true
	default:
		return false
	}
}
