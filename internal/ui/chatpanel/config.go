package chatpanel

// Config holds configuration for the chat panel.
type Config struct {
	// AgentLabel is the display label for assistant messages.
	AgentLabel string

	// MarkdownStyle selects the glamour style ("dark" or "light").
	MarkdownStyle string

	// ShowThinking renders the model's reasoning track on startup.
	// Toggleable at runtime with the 't' key.
	ShowThinking bool

	// OnToggleThinking, when set, is called with the new value each time
	// the thinking track is toggled. Used to persist the preference.
	OnToggleThinking func(show bool)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AgentLabel:    "Assistant",
		MarkdownStyle: "dark",
	}
}
