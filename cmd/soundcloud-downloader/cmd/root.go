package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-soundcloud-download/internal/api"
	"go-soundcloud-download/internal/config"
	"go-soundcloud-download/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// outputDirFlag holds the value of the --output-dir flag
var outputDirFlag string

// clientIDFlag holds the value of the --client-id flag
var clientIDFlag string

// apiBaseUrlFlag holds the value of the hidden --api-base-url flag
var apiBaseUrlFlag string

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// Legacy single-dash style entry points: --artist <name> and --track <url>.
var (
	rootArtistFlag string
	rootTrackFlag  string
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper = http.DefaultTransport

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "soundcloud-downloader",
	Short: "A tool to download an artist's tracks from SoundCloud",
	Long: `SoundCloud Downloader resolves an artist name, lists the artist's tracks
and saves each track's audio stream into the output directory.

Run with --artist <name> (or the 'artist' command) to start a batch.`,
	PersistentPreRunE: loadGlobalConfig, // Load config before any command runs
	Args:              cobra.ArbitraryArgs,
	RunE:              runRoot,
	SilenceUsage:      true,
	SilenceErrors:     true,
	// Unrecognized flags are ignored rather than rejected.
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeApiLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Add persistent flags that apply to all commands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&outputDirFlag, "output-dir", "o", "", "Directory to save tracks (overrides config)")
	rootCmd.PersistentFlags().StringVar(&clientIDFlag, "client-id", "", "API client ID (overrides config and "+config.EnvPrefix+"_CLIENT_ID)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")
	rootCmd.PersistentFlags().StringVar(&apiBaseUrlFlag, "api-base-url", "", "API base URL (overrides config)")
	_ = rootCmd.PersistentFlags().MarkHidden("api-base-url")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")

	rootCmd.Flags().StringVar(&rootArtistFlag, "artist", "", "Download every track of the named artist")
	rootCmd.Flags().StringVar(&rootTrackFlag, "track", "", "Download a single track by URL (not implemented)")

	// Hook to configure logging before any command runs
	cobra.OnInitialize(initLogging)
}

// runRoot dispatches the legacy flags. Without any of them nothing happens.
func runRoot(cmd *cobra.Command, args []string) error {
	switch {
	case rootArtistFlag != "":
		return runBatch(cmd, rootArtistFlag, batchOptionsFromConfig())
	case rootTrackFlag != "":
		runTrackPlaceholder(rootTrackFlag)
		return nil
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to run")
		return nil
	}
}

// loadGlobalConfig loads the configuration and applies environment and flag overrides.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			log.Debugf("No config file at %s, using defaults", cfgFile)
		} else {
			// A broken config file should not go unnoticed, but flags and env may still suffice.
			log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
		}
	}

	config.ApplyEnv(&globalConfig, viper.GetViper())

	if cmd.Flags().Changed("client-id") {
		globalConfig.ClientID = clientIDFlag
		log.Debug("Overriding ClientID based on --client-id flag")
	}
	if cmd.Flags().Changed("api-base-url") {
		globalConfig.ApiBaseUrl = apiBaseUrlFlag
		log.Debugf("Overriding ApiBaseUrl based on --api-base-url flag: %s", apiBaseUrlFlag)
	}

	// Override OutputDir if flag was used
	if cmd.Flags().Changed("output-dir") {
		if outputDirFlag != "" {
			globalConfig.OutputDir = outputDirFlag
			log.Debugf("Overriding OutputDir based on --output-dir flag: %s", outputDirFlag)
		} else {
			log.Warn("--output-dir flag provided but value is empty, ignoring.")
		}
	}

	// Override ApiClientTimeoutSec if flag was used and valid
	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
			log.Debugf("Overriding ApiClientTimeoutSec based on --api-timeout flag: %d sec", apiTimeoutFlag)
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ApiClientTimeoutSec)
		}
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}

	config.ApplyDefaults(&globalConfig)
	return nil
}

// setupHttpTransport installs the API logging transport if requested. Commands call
// it right before their first request, so no api.log appears for commands that make none.
func setupHttpTransport() {
	if _, ok := globalHttpTransport.(*api.LoggingTransport); ok {
		return
	}
	globalHttpTransport = http.DefaultTransport
	if !globalConfig.LogApiRequests {
		return
	}
	logFilePath := "api.log"
	log.Infof("API logging to file: %s", logFilePath)
	loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		return
	}
	globalHttpTransport = loggingTransport
}

// closeApiLog flushes and closes the API log if the logging transport is active.
func closeApiLog() {
	loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport)
	if !ok || loggingTransport == nil {
		return
	}
	log.Debug("Closing API logging transport file.")
	if err := loggingTransport.Close(); err != nil {
		log.WithError(err).Error("Error closing API log file")
	}
	globalHttpTransport = http.DefaultTransport
}
