package cmd

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"go-soundcloud-download/internal/batch"
	"go-soundcloud-download/internal/config"
)

// Persistent flags for logging level and format
var logLevel string
var logFormat string // e.g., "text", "json"

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// newApiHttpClient creates the client for catalog API calls. These are small JSON
// requests, so a client-wide timeout applies.
func newApiHttpClient() *http.Client {
	clientTimeout := time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second
	if clientTimeout <= 0 {
		clientTimeout = config.DefaultApiClientTimeoutSec * time.Second
		log.Warnf("Invalid ApiClientTimeoutSec (%d), using default: %v", globalConfig.ApiClientTimeoutSec, clientTimeout)
	}
	return &http.Client{
		Timeout:   clientTimeout,
		Transport: globalHttpTransport,
	}
}

// newDownloadHttpClient creates the client for audio downloads. Tracks can be large,
// so there is no overall timeout; the command context cancels it instead.
func newDownloadHttpClient() *http.Client {
	return &http.Client{
		Transport: globalHttpTransport,
	}
}

// batchOptionsFromConfig maps the loaded config onto driver options.
func batchOptionsFromConfig() batch.Options {
	return batch.Options{
		Concurrency:    globalConfig.Concurrency,
		FilenamePolicy: globalConfig.FilenamePolicy,
		SaveMetadata:   globalConfig.SaveMetadata,
	}
}
