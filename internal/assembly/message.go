// Package assembly reconstructs ordered chat transcripts from the flat
// envelope stream. Each session owns an Assembler that folds envelopes into a
// position-ordered message history; the Multiplexer routes envelopes to the
// right session and tracks which one the UI is viewing.
package assembly

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/weft/internal/protocol"
)

// Role identifies who a message belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockKind tags the concrete type of a content block.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockThinking BlockKind = "thinking"
	BlockToolUse  BlockKind = "tool_use"
	BlockCommand  BlockKind = "command"
)

// Block is one unit of content inside a message. Concrete types are
// *TextBlock, *ThinkingBlock, *ToolUseBlock and *CommandBlock.
type Block interface {
	BlockKind() BlockKind
}

// TextBlock holds assistant prose or a marker. Marker blocks are structural
// boundaries (context cleared, history compacted) and never absorb adjacent
// text deltas.
type TextBlock struct {
	Text   string
	Marker bool
}

func (b *TextBlock) BlockKind() BlockKind { return BlockText }

// ThinkingBlock accumulates the model's reasoning trace. It renders on a
// separate visual track from prose but interleaves positionally with it.
type ThinkingBlock struct {
	Text string
}

func (b *ThinkingBlock) BlockKind() BlockKind { return BlockThinking }

// ToolUseBlock is a complete tool invocation. Invocations made by a nested
// sub-agent attach under the Task block that spawned them via Children.
type ToolUseBlock struct {
	ID       string
	Name     string
	Input    protocol.ToolInput
	RawInput json.RawMessage
	Children []*ToolUseBlock

	// Result holds the matched tool_result output, once it arrives.
	Result    string
	HasResult bool
}

func (b *ToolUseBlock) BlockKind() BlockKind { return BlockToolUse }

// CommandBlock tracks a long-running background command identified by a
// stable handle. Output accumulates across status events; Status only moves
// from running to a terminal state.
type CommandBlock struct {
	Handle    string
	Kind      protocol.CommandKind
	Command   string
	Output    string
	Status    protocol.CommandStatus
	StartedAt time.Time
	EndedAt   time.Time
}

func (b *CommandBlock) BlockKind() BlockKind { return BlockCommand }

// Message is one entry in a session's transcript. Role determines which
// fields carry content: assistant messages hold Blocks, user messages hold a
// single text block plus Attachments, tool messages hold the result text for
// the invocation named by ToolUseID, system messages hold diagnostic text.
type Message struct {
	ID        string
	Role      Role
	CreatedAt time.Time
	Blocks    []Block

	// ToolUseID links a tool message back to the invocation it answers.
	ToolUseID string

	Attachments []protocol.Attachment
}

func newMessage(role Role, at time.Time) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		CreatedAt: at,
	}
}

// LastBlock returns the trailing block, or nil for an empty message.
func (m *Message) LastBlock() Block {
	if len(m.Blocks) == 0 {
		return nil
	}
	return m.Blocks[len(m.Blocks)-1]
}

// Text flattens the message's text and thinking blocks into one string.
// Tool and command blocks are skipped.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case *TextBlock:
			out += blk.Text
		case *ThinkingBlock:
			out += blk.Text
		}
	}
	return out
}
