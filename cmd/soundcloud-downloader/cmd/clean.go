package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-soundcloud-download/index"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolP("torrents", "t", false, "Also remove *.torrent files")
	cleanCmd.Flags().BoolP("magnets", "m", false, "Also remove *-magnet.txt files")
	cleanCmd.Flags().Bool("index", false, "Also delete the search index (rebuilt by the next download)")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove temporary (.tmp) files from the output directory",
	Long: `Recursively scans the output directory and removes files left behind by
interrupted downloads (*.tmp). Optionally removes *.torrent and *-magnet.txt files
and the search index as well.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

type cleanStats struct {
	Tmp      int
	Torrents int
	Magnets  int
	Failed   int
}

func runClean(cmd *cobra.Command, args []string) error {
	cleanTorrents, _ := cmd.Flags().GetBool("torrents")
	cleanMagnets, _ := cmd.Flags().GetBool("magnets")
	cleanIndex, _ := cmd.Flags().GetBool("index")

	if cleanIndex {
		if err := index.DeleteIndex(globalConfig.BleveIndexPath); err != nil {
			return fmt.Errorf("error deleting search index: %w", err)
		}
	}

	stats, err := cleanDir(globalConfig.OutputDir, cleanTorrents, cleanMagnets)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Clean complete. Removed %d .tmp, %d .torrent, %d -magnet.txt file(s).\n",
		stats.Tmp, stats.Torrents, stats.Magnets)
	if stats.Failed > 0 {
		return fmt.Errorf("failed to remove %d file(s)", stats.Failed)
	}
	return nil
}

// cleanDir removes leftover files under dir. Removal failures are counted, not fatal.
func cleanDir(dir string, torrents bool, magnets bool) (cleanStats, error) {
	var stats cleanStats

	info, err := os.Stat(dir)
	if err != nil {
		return stats, fmt.Errorf("error accessing output directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("output directory is not a directory: %s", dir)
	}
	log.Infof("Scanning for leftover files in %s...", dir)

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warnf("Error accessing path %q during scan: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		name := strings.ToLower(d.Name())
		var counter *int
		switch {
		case strings.HasSuffix(name, ".tmp"):
			counter = &stats.Tmp
		case torrents && strings.HasSuffix(name, ".torrent"):
			counter = &stats.Torrents
		case magnets && strings.HasSuffix(name, "-magnet.txt"):
			counter = &stats.Magnets
		default:
			return nil
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Errorf("Failed to remove %q: %v", path, err)
			stats.Failed++
			return nil
		}
		log.Infof("Removed %s", path)
		*counter++
		return nil
	})
	if walkErr != nil {
		return stats, fmt.Errorf("error during directory walk of %q: %w", dir, walkErr)
	}
	return stats, nil
}
