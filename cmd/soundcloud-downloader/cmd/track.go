package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track <url>",
	Short: "Download a single track (not implemented)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTrackPlaceholder(args[0])
	},
}

func init() {
	rootCmd.AddCommand(trackCmd)
}

// runTrackPlaceholder acknowledges a single-track request without downloading anything.
func runTrackPlaceholder(trackURL string) {
	log.WithField("track", trackURL).Info("Single track download is not implemented yet")
}
