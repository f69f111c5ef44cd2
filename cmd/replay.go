package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/weft/internal/transport"
)

var (
	replayDelay  time.Duration
	replayFollow bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <transcript.jsonl>",
	Short: "Replay a saved session transcript",
	Long: `Replay streams a previously recorded JSONL transcript through the
assembly pipeline as if it were arriving live. Use --delay to pace the
replay; without it the transcript renders as fast as it loads. With
--follow the viewer stays open after end of file and picks up lines
appended by another process, so a session being written elsewhere can be
watched live.

Replayed envelopes are not persisted or archived again.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().DurationVar(&replayDelay, "delay", 0,
		"pause between envelopes (e.g. 50ms)")
	replayCmd.Flags().BoolVarP(&replayFollow, "follow", "f", false,
		"keep streaming lines appended to the transcript")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cleanup := initLogging()
	defer cleanup()

	source, err := transport.Replay(context.Background(), transport.ReplayConfig{
		Path:   args[0],
		Delay:  replayDelay,
		Follow: replayFollow,
	})
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}

	return runPipeline(source, false)
}
