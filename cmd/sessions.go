package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/weft/internal/infrastructure/sqlite"
)

var (
	sessionsSearch string
	sessionsDelete string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, search, or prune archived sessions",
	Long: `Sessions inspects the local archive of finished sessions. With no
flags it lists every archived session, newest first. --search prints the
archived messages containing a term; --delete removes one session and its
messages.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsSearch, "search", "",
		"print archived messages containing this term")
	sessionsCmd.Flags().StringVar(&sessionsDelete, "delete", "",
		"remove this session from the archive")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	cleanup := initLogging()
	defer cleanup()

	db, err := sqlite.NewDB(cfg.Storage.ArchivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer db.Close()
	repo := sqlite.NewArchiveRepository(db)

	switch {
	case sessionsDelete != "":
		if err := repo.DeleteSession(sessionsDelete); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", sessionsDelete)
		return nil

	case sessionsSearch != "":
		return printSearchResults(cmd, repo, sessionsSearch)

	default:
		return printSessionList(cmd, repo)
	}
}

func printSessionList(cmd *cobra.Command, repo *sqlite.ArchiveRepository) error {
	sessions, err := repo.ListSessions()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No archived sessions.")
		return nil
	}

	for _, s := range sessions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %d messages  archived %s\n",
			s.ID, s.MessageCount, s.ArchivedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func printSearchResults(cmd *cobra.Command, repo *sqlite.ArchiveRepository, term string) error {
	matches, err := repo.SearchMessages(term)
	if err != nil {
		return fmt.Errorf("searching archive: %w", err)
	}

	if len(matches) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No archived messages match %q.\n", term)
		return nil
	}

	for _, m := range matches {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s #%d %s] %s\n", m.SessionID, m.Position, m.Role, m.Body)
	}
	return nil
}
