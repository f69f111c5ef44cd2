package assembly

import (
	"time"

	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/protocol"
)

// Assembler folds the envelope stream for one session into an ordered message
// history. It is single-threaded: the Multiplexer serializes all calls. Apply
// never fails; malformed envelopes degrade to safe defaults and unknown kinds
// become diagnostic messages so the transcript stays honest about what
// arrived.
//
// Append logic only ever mutates the final message. Blocks reached through a
// stable key (command handles, tool ids) update in place wherever they sit.
type Assembler struct {
	sessionID string
	messages  []*Message
	scopes    *scopeTable
	commands  *commandTracker
	tools     map[string]*ToolUseBlock
	now       func() time.Time
}

// AssemblerOption customizes a new Assembler.
type AssemblerOption func(*Assembler)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler creates an empty assembler for one session.
func NewAssembler(sessionID string, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		sessionID: sessionID,
		scopes:    newScopeTable(),
		commands:  newCommandTracker(),
		tools:     make(map[string]*ToolUseBlock),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SessionID returns the session this assembler belongs to.
func (a *Assembler) SessionID() string { return a.sessionID }

// Messages returns the transcript. The slice is a copy; the messages are
// shared and keep mutating as the stream progresses.
func (a *Assembler) Messages() []*Message {
	out := make([]*Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Len returns the number of messages assembled so far.
func (a *Assembler) Len() int { return len(a.messages) }

// OrphanedTools returns how many tool calls referenced a parent scope that
// was never seen. Nonzero values point at upstream event loss.
func (a *Assembler) OrphanedTools() int { return a.scopes.orphaned }

// Apply folds one envelope into the history.
func (a *Assembler) Apply(env protocol.Envelope) {
	at := env.Timestamp
	if at.IsZero() {
		at = a.now()
	}

	switch env.Kind {
	case protocol.KindAssistantTextDelta:
		a.appendText(RoleAssistant, env.Text, false, at)
	case protocol.KindThinkingDelta:
		a.appendThinking(env.Text, at)
	case protocol.KindMarker:
		a.appendText(RoleAssistant, env.Text, true, at)
	case protocol.KindToolUse:
		a.applyToolUse(env, at)
	case protocol.KindToolResult:
		a.applyToolResult(env, at)
	case protocol.KindLongRunningStatus:
		a.applyCommandStatus(env, at)
	case protocol.KindUserMessage:
		msg := newMessage(RoleUser, at)
		msg.Blocks = append(msg.Blocks, &TextBlock{Text: env.Text})
		msg.Attachments = env.Attachments
		a.messages = append(a.messages, msg)
	default:
		a.applyUnknown(env, at)
	}
}

// tail returns the last message if it has the wanted role, otherwise appends
// and returns a fresh one.
func (a *Assembler) tail(role Role, at time.Time) *Message {
	if n := len(a.messages); n > 0 && a.messages[n-1].Role == role {
		return a.messages[n-1]
	}
	msg := newMessage(role, at)
	a.messages = append(a.messages, msg)
	return msg
}

// appendText folds a prose chunk into the transcript. A chunk concatenates
// into the trailing text block when one exists and is not a marker; anything
// else gets a new block. Markers always start their own block and never
// absorb later chunks.
func (a *Assembler) appendText(role Role, text string, marker bool, at time.Time) {
	msg := a.tail(role, at)
	if !marker {
		if blk, ok := msg.LastBlock().(*TextBlock); ok && !blk.Marker {
			blk.Text += text
			return
		}
	}
	msg.Blocks = append(msg.Blocks, &TextBlock{Text: text, Marker: marker})
}

func (a *Assembler) appendThinking(text string, at time.Time) {
	msg := a.tail(RoleAssistant, at)
	if blk, ok := msg.LastBlock().(*ThinkingBlock); ok {
		blk.Text += text
		return
	}
	msg.Blocks = append(msg.Blocks, &ThinkingBlock{Text: text})
}

func (a *Assembler) applyToolUse(env protocol.Envelope, at time.Time) {
	blk := &ToolUseBlock{
		ID:       env.ToolID,
		Name:     env.ToolName,
		Input:    protocol.DecodeToolInput(env.ToolName, env.Input),
		RawInput: env.Input,
	}

	// A repeated id is a transport retry. The fresh payload replaces the
	// old block where it already sits.
	if prev, ok := a.tools[env.ToolID]; ok && env.ToolID != "" {
		log.Warn(log.CatAssembly, "Duplicate tool use id, replacing in place",
			"toolId", env.ToolID, "tool", env.ToolName)
		prev.Name = blk.Name
		prev.Input = blk.Input
		prev.RawInput = blk.RawInput
		if protocol.IsScopeOpener(prev.Name) {
			a.scopes.openScope(prev)
		} else {
			a.scopes.forget(prev.ID)
		}
		return
	}

	if env.ToolID != "" {
		a.tools[env.ToolID] = blk
	}
	if protocol.IsScopeOpener(env.ToolName) {
		a.scopes.openScope(blk)
	}

	if env.ParentScopeID != "" && a.scopes.attach(env.ParentScopeID, blk) {
		return
	}

	msg := a.tail(RoleAssistant, at)
	msg.Blocks = append(msg.Blocks, blk)
}

func (a *Assembler) applyToolResult(env protocol.Envelope, at time.Time) {
	if blk, ok := a.tools[env.ToolUseID]; ok {
		blk.Result = env.Content
		blk.HasResult = true
	} else {
		log.Debug(log.CatAssembly, "Tool result with no matching invocation",
			"toolUseId", env.ToolUseID)
	}

	msg := newMessage(RoleTool, at)
	msg.ToolUseID = env.ToolUseID
	msg.Blocks = append(msg.Blocks, &TextBlock{Text: env.Content})
	a.messages = append(a.messages, msg)
}

func (a *Assembler) applyCommandStatus(env protocol.Envelope, at time.Time) {
	if env.Handle == "" {
		log.Debug(log.CatAssembly, "Command status without handle dropped")
		return
	}
	blk, created := a.commands.update(env, at)
	if !created {
		return
	}
	msg := a.tail(RoleAssistant, at)
	msg.Blocks = append(msg.Blocks, blk)
}

// applyUnknown surfaces an unrecognized envelope kind as a system message
// carrying the raw payload, so nothing disappears from the transcript.
func (a *Assembler) applyUnknown(env protocol.Envelope, at time.Time) {
	log.Warn(log.CatAssembly, "Unhandled envelope kind", "kind", string(env.Kind))
	msg := newMessage(RoleSystem, at)
	msg.Blocks = append(msg.Blocks, &TextBlock{
		Text:   "unhandled event: " + string(env.Raw),
		Marker: true,
	})
	a.messages = append(a.messages, msg)
}
