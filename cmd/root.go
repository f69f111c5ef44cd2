package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/weft/internal/app"
	"github.com/zjrosen/weft/internal/assembly"
	"github.com/zjrosen/weft/internal/config"
	"github.com/zjrosen/weft/internal/history"
	"github.com/zjrosen/weft/internal/infrastructure/sqlite"
	"github.com/zjrosen/weft/internal/log"
	"github.com/zjrosen/weft/internal/tracing"
	"github.com/zjrosen/weft/internal/transport"
	"github.com/zjrosen/weft/internal/ui/chatpanel"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:     "weft [prompt]",
	Short:   "A terminal chat client for streaming AI agent sessions",
	Long: `Weft spawns a headless AI agent, assembles its streamed output into
ordered per-session transcripts, and renders them in a live chat view.
Multiple concurrent sessions assemble independently; switch between them
without losing history.`,
	Version: version,
	Args:    cobra.ArbitraryArgs,
	RunE:    runChat,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/weft/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs to .weft/debug.log")
	rootCmd.Flags().StringP("workdir", "w", "",
		"working directory for the agent process")
	rootCmd.Flags().Duration("timeout", 0,
		"agent process lifetime cap (0 = no limit)")
	rootCmd.Flags().Bool("no-mouse", false,
		"disable mouse support")

	// Bind flags to viper
	_ = viper.BindPFlag("transport.work_dir", rootCmd.Flags().Lookup("workdir"))
	_ = viper.BindPFlag("transport.timeout", rootCmd.Flags().Lookup("timeout"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("transport.command", defaults.Transport.Command)
	viper.SetDefault("transport.args", defaults.Transport.Args)
	viper.SetDefault("storage.transcript_dir", defaults.Storage.TranscriptDir)
	viper.SetDefault("storage.archive_path", defaults.Storage.ArchivePath)
	viper.SetDefault("storage.archive_on_close", defaults.Storage.ArchiveOnClose)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("ui.markdown_style", defaults.UI.MarkdownStyle)
	viper.SetDefault("ui.show_thinking", defaults.UI.ShowThinking)
	viper.SetDefault("ui.mouse", defaults.UI.Mouse)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .weft/config.yaml (current directory)
		// 2. ~/.config/weft/config.yaml (user config)
		if _, err := os.Stat(".weft/config.yaml"); err == nil {
			viper.SetConfigFile(".weft/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "weft"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .weft/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".weft/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// initLogging enables debug logging when asked for via flag or env.
// Returns a cleanup function, never nil.
func initLogging() func() {
	if !debugFlag && os.Getenv("WEFT_DEBUG") == "" {
		return func() {}
	}
	if err := os.MkdirAll(".weft", 0750); err != nil {
		return func() {}
	}
	cleanup, err := log.Init(filepath.Join(".weft", "debug.log"))
	if err != nil {
		return func() {}
	}
	return cleanup
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup := initLogging()
	defer cleanup()

	source, err := transport.Spawn(context.Background(), transport.ProcessConfig{
		Command: cfg.Transport.Command,
		Args:    cfg.Transport.Args,
		WorkDir: cfg.Transport.WorkDir,
		Prompt:  strings.Join(args, " "),
		Timeout: cfg.Transport.Timeout,
	})
	if err != nil {
		return fmt.Errorf("spawning agent: %w", err)
	}

	if noMouse, _ := cmd.Flags().GetBool("no-mouse"); noMouse {
		cfg.UI.Mouse = false
	}

	return runPipeline(source, true)
}

// runPipeline wires a transport source into the assembly pipeline and runs
// the program. persist controls transcript storage and archival; replays
// skip both so replaying never rewrites history.
func runPipeline(source transport.EnvelopeSource, persist bool) error {
	provider, err := tracing.NewProvider(cfg.Tracing.ToTracing())
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	mux := assembly.NewMultiplexer(assembly.WithTracer(provider.Tracer()))

	var store *history.Store
	var archive *sqlite.ArchiveRepository
	if persist {
		store, err = history.NewStore(cfg.Storage.TranscriptDir)
		if err != nil {
			return fmt.Errorf("opening transcript store: %w", err)
		}

		if cfg.Storage.ArchiveOnClose {
			db, dbErr := sqlite.NewDB(cfg.Storage.ArchivePath)
			if dbErr != nil {
				return fmt.Errorf("opening archive: %w", dbErr)
			}
			defer db.Close()
			archive = sqlite.NewArchiveRepository(db)
		}
	}

	panel := chatpanel.New(mux, chatpanel.Config{
		AgentLabel:       "Assistant",
		MarkdownStyle:    cfg.UI.MarkdownStyle,
		ShowThinking:     cfg.UI.ShowThinking,
		OnToggleThinking: persistShowThinking,
	})

	zone.NewGlobal()
	model := app.New(app.Options{
		Source:  source,
		Store:   store,
		Archive: archive,
		Panel:   panel,
		Mux:     mux,
	})

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.UI.Mouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	p := tea.NewProgram(model, opts...)
	finalModel, err := p.Run()

	if a, ok := finalModel.(app.App); ok {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	} else if closeErr := model.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// persistShowThinking writes the thinking-track preference back to the
// config file so it sticks across runs.
func persistShowThinking(show bool) {
	path := viper.ConfigFileUsed()
	if path == "" {
		return
	}
	ui := cfg.UI
	ui.ShowThinking = show
	if err := config.SaveUI(path, ui); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to persist ui settings", err, "path", path)
		return
	}
	cfg.UI = ui
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
