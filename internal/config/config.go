package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"go-soundcloud-download/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Defaults applied when neither the config file, environment, nor flags set a value.
const (
	DefaultApiBaseUrl          = "https://api.soundcloud.com"
	DefaultOutputDir           = "./out"
	DefaultDatabasePath        = "scd_history.db"
	DefaultBleveIndexPath      = "scd.bleve"
	DefaultConcurrency         = 1
	DefaultApiClientTimeoutSec = 60

	// EnvPrefix is prepended to environment overrides, e.g. SCD_CLIENT_ID.
	EnvPrefix = "SCD"
)

// ErrConfigNotFound is returned by LoadConfig when the file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// LoadConfig reads the TOML configuration at configFilePath (defaulting to "config.toml").
// A missing file returns ErrConfigNotFound together with a defaulted config so callers
// can carry on with environment and flag values.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		ApplyDefaults(&cfg)
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, configFilePath)
		}
		return cfg, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	ApplyDefaults(&cfg)
	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// ApplyEnv overrides config values with SCD_* environment variables read through v.
func ApplyEnv(cfg *models.Config, v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if s := v.GetString("client_id"); s != "" {
		cfg.ClientID = s
		log.Debug("ClientID taken from environment")
	}
	if s := v.GetString("api_base_url"); s != "" {
		cfg.ApiBaseUrl = s
	}
	if s := v.GetString("output_dir"); s != "" {
		cfg.OutputDir = s
	}
	if s := v.GetString("database_path"); s != "" {
		cfg.DatabasePath = s
	}
	if s := v.GetString("bleve_index_path"); s != "" {
		cfg.BleveIndexPath = s
	}
	if n := v.GetInt("concurrency"); n > 0 {
		cfg.Concurrency = n
	}
	if s := v.GetString("filename_policy"); s != "" {
		cfg.FilenamePolicy = s
	}
	if n := v.GetInt("api_client_timeout_sec"); n > 0 {
		cfg.ApiClientTimeoutSec = n
	}

	// Booleans use IsSet so that an explicit false overrides a true from the file.
	if v.IsSet("save_metadata") {
		cfg.SaveMetadata = v.GetBool("save_metadata")
	}
	if v.IsSet("disable_history") {
		cfg.DisableHistory = v.GetBool("disable_history")
	}
	if v.IsSet("log_api_requests") {
		cfg.LogApiRequests = v.GetBool("log_api_requests")
	}
}

// ApplyDefaults fills unset or invalid fields.
func ApplyDefaults(cfg *models.Config) {
	if cfg.ApiBaseUrl == "" {
		cfg.ApiBaseUrl = DefaultApiBaseUrl
	}
	cfg.ApiBaseUrl = strings.TrimRight(cfg.ApiBaseUrl, "/")
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultDatabasePath
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = DefaultBleveIndexPath
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	switch cfg.FilenamePolicy {
	case models.FilenamePolicySafe, models.FilenamePolicyRaw:
	case "":
		cfg.FilenamePolicy = models.FilenamePolicySafe
	default:
		log.Warnf("Invalid FilenamePolicy '%s', using '%s'", cfg.FilenamePolicy, models.FilenamePolicySafe)
		cfg.FilenamePolicy = models.FilenamePolicySafe
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = DefaultApiClientTimeoutSec
	}
}

// Validate checks the fields a batch download cannot run without.
func Validate(cfg models.Config) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client ID is not configured (set ClientID in the config file, %s_CLIENT_ID, or --client-id)", EnvPrefix)
	}
	if cfg.OutputDir == "" {
		return errors.New("output directory is not configured")
	}
	return nil
}
