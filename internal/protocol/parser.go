package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/weft/internal/log"
)

// envelopeWire is the raw shape read off the transport. Fields that vary in
// type across agent versions are captured as json.RawMessage and normalized
// afterwards.
type envelopeWire struct {
	Kind          string          `json:"kind"`
	SessionID     string          `json:"session_id"`
	Timestamp     string          `json:"timestamp"`
	Text          string          `json:"text"`
	ToolID        string          `json:"id"`
	ToolName      string          `json:"name"`
	Input         json.RawMessage `json:"input"`
	ParentScopeID string          `json:"parent_scope_id"`
	ToolUseID     string          `json:"tool_use_id"`
	Content       json.RawMessage `json:"content"`
	Handle        string          `json:"handle"`
	CommandKind   string          `json:"command_kind"`
	Command       string          `json:"command"`
	OutputDelta   string          `json:"output_delta"`
	Status        string          `json:"status"`
	Attachments   []Attachment    `json:"attachments"`
}

// ParseEnvelope decodes one JSON line into an Envelope. Individual field
// weirdness (wrong types, missing values, unparseable timestamps) degrades to
// zero values rather than failing the whole envelope; an error is returned
// only when the line is not a JSON object at all.
func ParseEnvelope(data []byte) (Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("parsing envelope: %w", err)
	}

	env := Envelope{
		Kind:          Kind(wire.Kind),
		SessionID:     wire.SessionID,
		Text:          wire.Text,
		ToolID:        wire.ToolID,
		ToolName:      wire.ToolName,
		Input:         wire.Input,
		ParentScopeID: wire.ParentScopeID,
		ToolUseID:     wire.ToolUseID,
		Content:       parsePolymorphicContent(wire.Content),
		Handle:        wire.Handle,
		CommandKind:   CommandKind(wire.CommandKind),
		Command:       wire.Command,
		OutputDelta:   wire.OutputDelta,
		Status:        CommandStatus(wire.Status),
		Attachments:   wire.Attachments,
		Raw:           append(json.RawMessage(nil), data...),
	}

	if wire.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
		if err != nil {
			log.Debug(log.CatStream, "Unparseable envelope timestamp", "value", wire.Timestamp)
		} else {
			env.Timestamp = ts
		}
	}

	return env, nil
}

// parsePolymorphicContent normalizes the tool_result content field, which
// arrives either as a plain string or as an array of {type, text} blocks
// depending on the agent version.
func parsePolymorphicContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" || b.Type == "" {
				out += b.Text
			}
		}
		return out
	}

	log.Debug(log.CatStream, "Unrecognized tool result content shape", "raw", string(raw))
	return string(raw)
}
