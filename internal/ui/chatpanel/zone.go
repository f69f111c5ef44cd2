package chatpanel

import "fmt"

// zoneTabPrefix is the prefix for session tab zone IDs.
// Uses bubblezone for click detection on tabs.
const zoneTabPrefix = "chatpanel-tab:"

// makeTabZoneID creates a zone ID for a session tab by display index.
func makeTabZoneID(index int) string {
	return fmt.Sprintf("%s%d", zoneTabPrefix, index)
}
