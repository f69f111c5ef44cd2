package assembly

import "github.com/zjrosen/weft/internal/protocol"

// Admit reports whether an envelope belongs in the active session's view.
// Envelopes without a session id are legacy events with implicit affinity to
// whatever session is active; they are always admitted. Envelopes naming a
// different session are rejected here and never touch the active assembler.
//
// The predicate is pure. Rejection is not buffering: a rejected envelope is
// gone from the active view for good, it was simply never addressed to it.
func Admit(env protocol.Envelope, activeSessionID string) bool {
	if !env.HasSession() {
		return true
	}
	return env.SessionID == activeSessionID
}
