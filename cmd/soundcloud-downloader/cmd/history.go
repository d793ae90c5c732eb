package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-soundcloud-download/index"
	"go-soundcloud-download/internal/database"
	"go-soundcloud-download/internal/helpers"
	"go-soundcloud-download/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previously downloaded tracks",
	Long: `Provides subcommands to list the download history database and to search
the index of saved tracks. History is informational only; tracks are downloaded
again on every run.`,
}

var historyViewCmd = &cobra.Command{
	Use:   "view",
	Short: "List recorded downloads, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryView,
}

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search saved tracks",
	Long: `Runs a query-string search against the track index, e.g.
  soundcloud-downloader history search 'drive'
  soundcloud-downloader history search '+artist:artist1 +format:mp3'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHistorySearch,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [stream_url...]",
	Short: "Remove entries from the download history",
	Long: `Removes the history entries of the given stream references, or every entry
matching --artist and/or --errors. Saved files and the search index are not touched.`,
	RunE: runHistoryDelete,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyViewCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyDeleteCmd)

	historyViewCmd.Flags().String("artist", "", "Only show entries for this artist")
	historyViewCmd.Flags().Bool("errors", false, "Only show failed downloads")

	historyDeleteCmd.Flags().String("artist", "", "Delete every entry for this artist")
	historyDeleteCmd.Flags().Bool("errors", false, "Delete failed downloads only")
}

func runHistoryView(cmd *cobra.Command, args []string) error {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	entries, err := db.Entries()
	if err != nil {
		return err
	}

	artist, _ := cmd.Flags().GetString("artist")
	onlyErrors, _ := cmd.Flags().GetBool("errors")
	filtered := entries[:0]
	for _, e := range entries {
		if artist != "" && !strings.EqualFold(e.Artist, artist) {
			continue
		}
		if onlyErrors && e.Status != models.StatusError {
			continue
		}
		filtered = append(filtered, e)
	}

	writeHistoryTable(cmd.OutOrStdout(), filtered)
	log.Debugf("Listed %d of %d history entries", len(filtered), len(entries))
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	artist, _ := cmd.Flags().GetString("artist")
	onlyErrors, _ := cmd.Flags().GetBool("errors")
	if len(args) == 0 && artist == "" && !onlyErrors {
		return fmt.Errorf("nothing to delete: pass stream URLs, --artist or --errors")
	}

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	removed, err := deleteHistory(db, args, artist, onlyErrors)
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history entr%s.\n", removed, pluralY(removed))
	return err
}

// deleteHistory removes the entries for streamURLs, then every entry matching the
// artist/errors filters when either is set.
func deleteHistory(db *database.DB, streamURLs []string, artist string, onlyErrors bool) (int, error) {
	removed := 0
	for _, u := range streamURLs {
		existed, err := db.DeleteEntry(u)
		if err != nil {
			return removed, fmt.Errorf("deleting history for %s: %w", u, err)
		}
		if !existed {
			log.Warnf("No history entry for %s", u)
			continue
		}
		removed++
	}

	if artist == "" && !onlyErrors {
		return removed, nil
	}
	n, err := db.DeleteEntries(func(e models.HistoryEntry) bool {
		if artist != "" && !strings.EqualFold(e.Artist, artist) {
			return false
		}
		return !onlyErrors || e.Status == models.StatusError
	})
	return removed + n, err
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func writeHistoryTable(out io.Writer, entries []models.HistoryEntry) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Title\tArtist\tFilename\tSize\tStatus\tDownloaded\tRun")
	fmt.Fprintln(tw, "-----\t------\t--------\t----\t------\t----------\t---")
	for _, e := range entries {
		status := e.Status
		if e.ErrorDetails != "" {
			status += ": " + e.ErrorDetails
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Track.Title,
			e.Artist,
			e.Filename,
			helpers.BytesToSize(uint64(e.SizeBytes)),
			status,
			time.Unix(e.Timestamp, 0).Format(time.DateTime),
			shortRunID(e.RunID),
		)
	}
	tw.Flush()
	fmt.Fprintf(out, "\nTotal entries: %d\n", len(entries))
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return fmt.Errorf("error opening search index: %w", err)
	}
	defer idx.Close()

	log.Debugf("Searching index %s for: %s", globalConfig.BleveIndexPath, query)
	result, err := index.SearchIndex(idx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	writeSearchResults(cmd.OutOrStdout(), result)
	return nil
}

func writeSearchResults(out io.Writer, result *bleve.SearchResult) {
	if result.Total == 0 {
		fmt.Fprintln(out, "No matching tracks found.")
		return
	}
	fmt.Fprintf(out, "Found %d matching track(s) (showing %d):\n", result.Total, len(result.Hits))
	for _, hit := range result.Hits {
		fmt.Fprintf(out, "  %v - %v [%v]\n      %v (score %.2f)\n",
			hit.Fields["artist"], hit.Fields["title"], hit.Fields["format"], hit.Fields["filePath"], hit.Score)
	}
}
