// Package config provides configuration types, defaults, and persistence for
// weft.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/tracing"
)

// Config holds all configuration options for weft.
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	UI        UIConfig        `mapstructure:"ui"`
}

// TransportConfig holds agent process settings.
type TransportConfig struct {
	// Command is the agent binary to spawn.
	Command string `mapstructure:"command"`

	// Args are passed to the agent before the prompt.
	Args []string `mapstructure:"args"`

	// WorkDir is the agent's working directory. Empty means inherit.
	WorkDir string `mapstructure:"work_dir"`

	// Timeout caps the agent process lifetime. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds transcript and archive locations.
type StorageConfig struct {
	// TranscriptDir is where live session JSONL transcripts are written.
	// Default: ~/.weft/transcripts
	TranscriptDir string `mapstructure:"transcript_dir"`

	// ArchivePath is the SQLite archive database.
	// Default: ~/.weft/archive.db
	ArchivePath string `mapstructure:"archive_path"`

	// ArchiveOnClose archives a session's transcript when it closes.
	ArchiveOnClose bool `mapstructure:"archive_on_close"`
}

// UIConfig holds user interface options.
type UIConfig struct {
	// MarkdownStyle is "dark" (default) or "light".
	MarkdownStyle string `mapstructure:"markdown_style"`

	// ShowThinking renders the model's reasoning trace alongside prose.
	ShowThinking bool `mapstructure:"show_thinking"`

	// Mouse enables mouse support (scrolling, clickable session tabs).
	Mouse bool `mapstructure:"mouse"`
}

// TracingConfig mirrors the tracing subsystem's options.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// ToTracing converts to the tracing package's config, filling in the default
// trace file path when none is set.
func (t TracingConfig) ToTracing() tracing.Config {
	filePath := t.FilePath
	if filePath == "" {
		filePath = DefaultTracesFilePath()
	}
	return tracing.Config{
		Enabled:      t.Enabled,
		Exporter:     t.Exporter,
		FilePath:     filePath,
		OTLPEndpoint: t.OTLPEndpoint,
		SampleRate:   t.SampleRate,
		ServiceName:  "weft",
	}
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Transport: TransportConfig{
			Command: "claude",
			Args:    []string{"--print", "--output-format", "stream-json", "--verbose"},
		},
		Storage: StorageConfig{
			TranscriptDir:  DefaultTranscriptDir(),
			ArchivePath:    DefaultArchivePath(),
			ArchiveOnClose: true,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		UI: UIConfig{
			MarkdownStyle: "dark",
			ShowThinking:  true,
			Mouse:         true,
		},
	}
}

// DefaultTranscriptDir returns ~/.weft/transcripts, or a relative fallback
// when the home directory is unavailable.
func DefaultTranscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".weft/transcripts"
	}
	return filepath.Join(home, ".weft", "transcripts")
}

// DefaultArchivePath returns ~/.weft/archive.db.
func DefaultArchivePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".weft/archive.db"
	}
	return filepath.Join(home, ".weft", "archive.db")
}

// DefaultTracesFilePath returns ~/.config/weft/traces/traces.jsonl.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "weft", "traces", "traces.jsonl")
}

// Validate checks the configuration for errors.
func Validate(cfg Config) error {
	switch cfg.UI.MarkdownStyle {
	case "", "dark", "light":
	default:
		return fmt.Errorf("ui.markdown_style: invalid style %q (must be \"dark\" or \"light\")", cfg.UI.MarkdownStyle)
	}

	switch cfg.Tracing.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter: invalid exporter %q", cfg.Tracing.Exporter)
	}

	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate: %v out of range (0.0 to 1.0)", cfg.Tracing.SampleRate)
	}

	if cfg.Transport.Command == "" {
		return fmt.Errorf("transport.command is required")
	}

	return nil
}

// DefaultConfigTemplate returns the commented YAML written on first run.
func DefaultConfigTemplate() string {
	return `# weft configuration

# Agent transport: which process to spawn and how.
transport:
  command: claude
  args: ["--print", "--output-format", "stream-json", "--verbose"]
  # work_dir: /path/to/project
  # timeout: 30m

# Where session transcripts and the searchable archive live.
storage:
  # transcript_dir: ~/.weft/transcripts
  # archive_path: ~/.weft/archive.db
  archive_on_close: true

ui:
  markdown_style: dark   # dark or light
  show_thinking: true
  mouse: true

# Distributed tracing of the envelope pipeline (off by default).
tracing:
  enabled: false
  exporter: file         # none, file, stdout, otlp
  sample_rate: 1.0
`
}

// WriteDefaultConfig writes the default config template to configPath,
// creating parent directories as needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
