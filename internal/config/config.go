package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BOOK_COVER_FETCHER_DOWNLOAD_CONCURRENCY.
const EnvPrefix = "BOOK_COVER_FETCHER"

// Resume backends
const (
	ResumeBackendSQLite   = "sqlite"
	ResumeBackendManifest = "manifest"
)

// Config represents the entire application configuration
type Config struct {
	Run        RunConfig        `mapstructure:"run"`
	Blockfrost BlockfrostConfig `mapstructure:"blockfrost"`
	BookIO     BookIOConfig     `mapstructure:"bookio"`
	IPFS       IPFSConfig       `mapstructure:"ipfs"`
	Download   DownloadConfig   `mapstructure:"download"`
	Resume     ResumeConfig     `mapstructure:"resume"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RunConfig holds the per-invocation arguments
type RunConfig struct {
	PolicyID  string `mapstructure:"policy_id"`
	OutputDir string `mapstructure:"output_dir"`
}

// BlockfrostConfig contains metadata service settings
type BlockfrostConfig struct {
	ProjectID         string  `mapstructure:"project_id"`
	BaseURL           string  `mapstructure:"base_url"`
	PageSize          int     `mapstructure:"page_size"`
	Concurrency       int     `mapstructure:"concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	Timeout           string  `mapstructure:"timeout"`
}

// BookIOConfig contains collection catalog settings
type BookIOConfig struct {
	VerifyCollection bool   `mapstructure:"verify_collection"`
	CollectionsURL   string `mapstructure:"collections_url"`
}

// IPFSConfig contains IPFS gateway settings
type IPFSConfig struct {
	Gateway string `mapstructure:"gateway"`
}

// DownloadConfig contains image download settings
type DownloadConfig struct {
	Concurrency      int    `mapstructure:"concurrency"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	InitialBackoff   string `mapstructure:"initial_backoff"`
	MaxBackoff       string `mapstructure:"max_backoff"`
	Timeout          string `mapstructure:"timeout"`
	ProgressInterval string `mapstructure:"progress_interval"`
	TempFileMaxAge   string `mapstructure:"temp_file_max_age"`
}

// ResumeConfig selects how completed assets are remembered
type ResumeConfig struct {
	Backend    string `mapstructure:"backend"`
	VerifyHash bool   `mapstructure:"verify_hash"`
}

// MetricsConfig contains metrics output settings
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadOptions tells Load where to look
type LoadOptions struct {
	// ConfigPath is an explicit YAML file. When empty, config.yaml is searched
	// in the working directory and $HOME/.config/book-cover-fetcher; a missing
	// file is not an error.
	ConfigPath string

	// Flags are bound over every other source. See FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to configuration keys
var FlagKeys = map[string]string{
	"policy-id":   "run.policy_id",
	"output-dir":  "run.output_dir",
	"concurrency": "download.concurrency",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
}

// SetDefaults registers every default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("run.policy_id", "")
	v.SetDefault("run.output_dir", "")
	v.SetDefault("blockfrost.project_id", "")
	v.SetDefault("blockfrost.base_url", "https://cardano-mainnet.blockfrost.io/api/v0")
	v.SetDefault("blockfrost.page_size", 100)
	v.SetDefault("blockfrost.concurrency", 4)
	v.SetDefault("blockfrost.requests_per_second", 10)
	v.SetDefault("blockfrost.burst", 10)
	v.SetDefault("blockfrost.max_attempts", 3)
	v.SetDefault("blockfrost.timeout", "30s")
	v.SetDefault("bookio.verify_collection", true)
	v.SetDefault("bookio.collections_url", "https://api.book.io/api/v0/collections")
	v.SetDefault("ipfs.gateway", "https://ipfs.io/ipfs/")
	v.SetDefault("download.concurrency", 3)
	v.SetDefault("download.max_attempts", 4)
	v.SetDefault("download.initial_backoff", "1s")
	v.SetDefault("download.max_backoff", "30s")
	v.SetDefault("download.timeout", "2m")
	v.SetDefault("download.progress_interval", "5s")
	v.SetDefault("download.temp_file_max_age", "24h")
	v.SetDefault("resume.backend", ResumeBackendSQLite)
	v.SetDefault("resume.verify_hash", true)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load merges defaults, the config file, the environment and flags.
// The result is not validated; call Validate.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The credential is also accepted under the name Blockfrost tooling uses.
	if err := v.BindEnv("blockfrost.project_id", EnvPrefix+"_BLOCKFROST_PROJECT_ID", "BLOCKFROST_PROJECT_ID"); err != nil {
		return nil, err
	}

	v.SetConfigType("yaml")
	if opts.ConfigPath != "" {
		v.SetConfigFile(opts.ConfigPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/book-cover-fetcher")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Run.OutputDir) == "" {
		return fmt.Errorf("run.output_dir is required (--output-dir)")
	}

	// Validate Blockfrost config
	if strings.TrimSpace(c.Blockfrost.ProjectID) == "" {
		return fmt.Errorf("blockfrost.project_id is required (set %s_BLOCKFROST_PROJECT_ID)", EnvPrefix)
	}
	if err := validateURL("blockfrost.base_url", c.Blockfrost.BaseURL); err != nil {
		return err
	}
	if c.Blockfrost.PageSize < 1 || c.Blockfrost.PageSize > 100 {
		return fmt.Errorf("blockfrost.page_size must be between 1 and 100")
	}
	if c.Blockfrost.Concurrency < 1 {
		return fmt.Errorf("blockfrost.concurrency must be positive")
	}
	if c.Blockfrost.RequestsPerSecond < 0 {
		return fmt.Errorf("blockfrost.requests_per_second must not be negative")
	}
	if c.Blockfrost.MaxAttempts < 1 {
		return fmt.Errorf("blockfrost.max_attempts must be positive")
	}
	if _, err := time.ParseDuration(c.Blockfrost.Timeout); err != nil {
		return fmt.Errorf("invalid blockfrost.timeout: %w", err)
	}

	if c.BookIO.VerifyCollection {
		if err := validateURL("bookio.collections_url", c.BookIO.CollectionsURL); err != nil {
			return err
		}
	}
	if err := validateURL("ipfs.gateway", c.IPFS.Gateway); err != nil {
		return err
	}

	// Validate download config
	if c.Download.Concurrency < 1 || c.Download.Concurrency > 10 {
		return fmt.Errorf("download.concurrency must be between 1 and 10")
	}
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download.max_attempts must be positive")
	}
	durations := map[string]string{
		"download.initial_backoff":   c.Download.InitialBackoff,
		"download.max_backoff":       c.Download.MaxBackoff,
		"download.timeout":           c.Download.Timeout,
		"download.progress_interval": c.Download.ProgressInterval,
		"download.temp_file_max_age": c.Download.TempFileMaxAge,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.Download.GetMaxBackoff() < c.Download.GetInitialBackoff() {
		return fmt.Errorf("download.max_backoff must not be less than download.initial_backoff")
	}

	switch c.Resume.Backend {
	case ResumeBackendSQLite, ResumeBackendManifest:
		// Valid backends
	default:
		return fmt.Errorf("invalid resume.backend: %s", c.Resume.Backend)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", key, raw)
	}
	return nil
}

// GetTimeout returns the request timeout as time.Duration
func (c *BlockfrostConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetInitialBackoff returns the first retry delay as time.Duration
func (c *DownloadConfig) GetInitialBackoff() time.Duration {
	d, _ := time.ParseDuration(c.InitialBackoff)
	if d == 0 {
		return time.Second
	}
	return d
}

// GetMaxBackoff returns the retry delay ceiling as time.Duration
func (c *DownloadConfig) GetMaxBackoff() time.Duration {
	d, _ := time.ParseDuration(c.MaxBackoff)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetTimeout returns the per-attempt timeout as time.Duration
func (c *DownloadConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 2 * time.Minute
	}
	return d
}

// GetProgressInterval returns the progress log interval as time.Duration
func (c *DownloadConfig) GetProgressInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressInterval)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

// GetTempFileMaxAge returns the age after which temp files are removed
func (c *DownloadConfig) GetTempFileMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.TempFileMaxAge)
	if d == 0 {
		return 24 * time.Hour
	}
	return d
}
