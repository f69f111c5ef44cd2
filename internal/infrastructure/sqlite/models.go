package sqlite

import "time"

// SessionRecord is one archived session row.
type SessionRecord struct {
	ID           string
	OpenedAt     time.Time
	ArchivedAt   time.Time
	MessageCount int
}

// MessageRecord is one archived message row. Body holds the flattened text
// of the message's text and thinking blocks.
type MessageRecord struct {
	ID        string
	SessionID string
	Position  int
	Role      string
	CreatedAt time.Time
	Body      string
	ToolUseID string
}
