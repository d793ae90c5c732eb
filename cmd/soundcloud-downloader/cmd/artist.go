package cmd

import (
	"fmt"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-soundcloud-download/index"
	"go-soundcloud-download/internal/api"
	"go-soundcloud-download/internal/batch"
	"go-soundcloud-download/internal/config"
	"go-soundcloud-download/internal/database"
	"go-soundcloud-download/internal/downloader"
	"go-soundcloud-download/internal/helpers"
	"go-soundcloud-download/internal/models"
	"go-soundcloud-download/internal/storage"
)

// artistCmd represents the artist command
var artistCmd = &cobra.Command{
	Use:   "artist <name>",
	Short: "Download every track of an artist",
	Long: `Resolves the artist name to a user, lists the user's tracks and saves each
track as "{title}.{format}" in the output directory. A failed track is reported
and skipped; the command exits non-zero if any track failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := batchOptionsFromConfig()
		if cmd.Flags().Changed("concurrency") {
			opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}
		if cmd.Flags().Changed("filename-policy") {
			policy, _ := cmd.Flags().GetString("filename-policy")
			if policy != models.FilenamePolicySafe && policy != models.FilenamePolicyRaw {
				return fmt.Errorf("invalid --filename-policy %q (use %s or %s)", policy, models.FilenamePolicySafe, models.FilenamePolicyRaw)
			}
			opts.FilenamePolicy = policy
		}
		if cmd.Flags().Changed("metadata") {
			opts.SaveMetadata, _ = cmd.Flags().GetBool("metadata")
		}
		return runBatch(cmd, args[0], opts)
	},
}

func init() {
	rootCmd.AddCommand(artistCmd)

	artistCmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency, "Number of tracks downloaded at once (1 keeps catalog order)")
	artistCmd.Flags().String("filename-policy", models.FilenamePolicySafe, "How titles become filenames: safe or raw")
	artistCmd.Flags().Bool("metadata", false, "Save a .json metadata file alongside each track. Overrides config.")
}

// runBatch prepares the output directory, wires the driver and reports the summary.
func runBatch(cmd *cobra.Command, artist string, opts batch.Options) error {
	// The output directory must be usable before any request goes out.
	if err := storage.EnsureOutputDir(globalConfig.OutputDir); err != nil {
		log.WithError(err).Error("Cannot prepare output directory")
		return err
	}
	if err := config.Validate(globalConfig); err != nil {
		return err
	}
	setupHttpTransport()

	client := api.NewClient(globalConfig.ApiBaseUrl, globalConfig.ClientID, newApiHttpClient())
	fetcher := downloader.NewDownloader(newDownloadHttpClient())
	persister := storage.NewPersister(globalConfig.OutputDir)

	writer := uilive.New()
	writer.Out = cmd.OutOrStdout()
	observers := []batch.Observer{&progressObserver{writer: writer}}

	if !globalConfig.DisableHistory {
		db, err := database.Open(globalConfig.DatabasePath)
		if err != nil {
			log.WithError(err).Warn("History database unavailable, continuing without history")
		} else {
			defer db.Close()
			observers = append(observers, &historyObserver{db: db})
		}

		idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
		if err != nil {
			log.WithError(err).Warn("Search index unavailable, continuing without indexing")
		} else {
			defer idx.Close()
			observers = append(observers, &indexObserver{idx: idx})
		}
	}

	driver := batch.NewDriver(client, fetcher, persister, opts, observers...)
	log.Infof("Downloading tracks of %s into %s (concurrency %d)", artist, globalConfig.OutputDir, opts.Concurrency)

	writer.Start()
	summary, err := driver.Run(cmd.Context(), artist)
	writer.Stop()

	printSummary(cmd, summary)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d tracks failed", summary.Failed, len(summary.Results))
	}
	return nil
}

func printSummary(cmd *cobra.Command, s *batch.Summary) {
	if s == nil || s.Results == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d succeeded, %d failed, %s in %v\n",
		s.RunID, s.Succeeded, s.Failed, helpers.BytesToSize(uint64(s.Bytes)), s.Duration.Round(time.Millisecond))
	for _, r := range s.FailedItems() {
		fmt.Fprintf(out, "  failed: %s: %v\n", r.Item.Title, r.Err)
	}
}
