package driftsync

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConflictMode selects how conflicts needing user input are handled.
type ConflictMode string

const (
	// ConflictModeAuto applies every resolution, including low
	// confidence fallbacks, without waiting for the user.
	ConflictModeAuto ConflictMode = "auto"
	// ConflictModeManual parks resolutions flagged RequiresUserInput
	// in the conflicts queue until ResolveConflictManually.
	ConflictModeManual ConflictMode = "manual"
)

// Valid reports whether the mode is a known value.
func (m ConflictMode) Valid() bool {
	return m == ConflictModeAuto || m == ConflictModeManual
}

// Config defines configuration for a sync manager instance.
type Config struct {
	// UserID identifies the authenticated session user. Required.
	UserID string

	// SyncInterval is how often the periodic sync pass runs.
	// Default: 5m
	SyncInterval time.Duration

	// RetryDelay is the base delay for upload retries. A failed item
	// backs off linearly: RetryDelay times its retry count.
	// Default: 1s
	RetryDelay time.Duration

	// MaxRetries is how many times a failed upload is retried before
	// the item is dropped.
	// Default: 3
	MaxRetries int

	// BatchSize is the number of items drained from the upload queue
	// per batch.
	// Default: 5
	BatchSize int

	// MaxConversations limits how many remote conversations a
	// download pass fetches.
	// Default: 50
	MaxConversations int

	// ConflictMode selects automatic or manual conflict handling.
	// Default: auto
	ConflictMode ConflictMode

	// RemoteSyncEnabled gates all remote traffic. When false the
	// manager only queues; nothing is uploaded or downloaded.
	// Default: true
	RemoteSyncEnabled bool

	// Resolver tunes the conflict resolution heuristics.
	Resolver ResolverTuning

	// Repository configures the HTTP repository client, for callers
	// that build it from configuration instead of injecting one.
	Repository HTTPRepositoryConfig

	// Encryption configures at-rest encryption of local envelopes.
	Encryption EncryptionConfig

	// Export configures Prometheus remote-write metric pushes.
	Export ExportConfig

	// Feed configures the realtime change feed.
	Feed FeedConfig
}

// DefaultConfig returns a configuration with sensible defaults.
// UserID must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		SyncInterval:      5 * time.Minute,
		RetryDelay:        time.Second,
		MaxRetries:        3,
		BatchSize:         5,
		MaxConversations:  50,
		ConflictMode:      ConflictModeAuto,
		RemoteSyncEnabled: true,
		Resolver:          DefaultResolverTuning(),
		Export:            DefaultExportConfig(),
		Feed:              DefaultFeedConfig(),
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return errors.New("user id is required")
	}
	if c.SyncInterval <= 0 {
		return errors.New("sync interval must be positive")
	}
	if c.RetryDelay <= 0 {
		return errors.New("retry delay must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if c.MaxConversations <= 0 {
		return errors.New("max conversations must be positive")
	}
	if !c.ConflictMode.Valid() {
		return fmt.Errorf("unknown conflict mode %q", c.ConflictMode)
	}
	return nil
}

// fileConfig is the YAML file model. Durations are strings parsed
// with time.ParseDuration; pointers distinguish "absent" from zero so
// unset fields keep their defaults.
type fileConfig struct {
	UserID            string         `yaml:"user_id"`
	SyncInterval      string         `yaml:"sync_interval"`
	RetryDelay        string         `yaml:"retry_delay"`
	MaxRetries        *int           `yaml:"max_retries"`
	BatchSize         *int           `yaml:"batch_size"`
	MaxConversations  *int           `yaml:"max_conversations"`
	ConflictMode      string         `yaml:"conflict_mode"`
	RemoteSyncEnabled *bool          `yaml:"remote_sync_enabled"`
	Resolver          fileResolver   `yaml:"resolver"`
	Repository        fileRepository `yaml:"repository"`
	Encryption        fileEncryption `yaml:"encryption"`
	Export            fileExport     `yaml:"export"`
	Feed              fileFeed       `yaml:"feed"`
}

type fileResolver struct {
	TitleLengthDelta   *int   `yaml:"title_length_delta"`
	MetadataSkew       string `yaml:"metadata_skew"`
	FreshOverlayWindow string `yaml:"fresh_overlay_window"`
}

type fileRepository struct {
	BaseURL           string `yaml:"base_url"`
	AuthToken         string `yaml:"auth_token"`
	APIKey            string `yaml:"api_key"`
	EnableCompression *bool  `yaml:"enable_compression"`
	RequestTimeout    string `yaml:"request_timeout"`
	MaxRetries        *int   `yaml:"max_retries"`
	RetryInterval     string `yaml:"retry_interval"`
}

type fileEncryption struct {
	Enabled     *bool  `yaml:"enabled"`
	KeyPassword string `yaml:"key_password"`
}

type fileExport struct {
	Enabled  *bool             `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Interval string            `yaml:"interval"`
	Timeout  string            `yaml:"timeout"`
	Labels   map[string]string `yaml:"labels"`
}

type fileFeed struct {
	Enabled          *bool  `yaml:"enabled"`
	URL              string `yaml:"url"`
	AuthToken        string `yaml:"auth_token"`
	ReconnectInitial string `yaml:"reconnect_initial"`
	ReconnectMax     string `yaml:"reconnect_max"`
	HandshakeTimeout string `yaml:"handshake_timeout"`
}

// LoadConfig reads a YAML configuration file, merges it onto the
// defaults and applies DRIFTSYNC_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := fc.apply(&cfg); err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.UserID != "" {
		cfg.UserID = fc.UserID
	}
	if err := parseDuration(fc.SyncInterval, "sync_interval", &cfg.SyncInterval); err != nil {
		return err
	}
	if err := parseDuration(fc.RetryDelay, "retry_delay", &cfg.RetryDelay); err != nil {
		return err
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.BatchSize != nil {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.MaxConversations != nil {
		cfg.MaxConversations = *fc.MaxConversations
	}
	if fc.ConflictMode != "" {
		cfg.ConflictMode = ConflictMode(fc.ConflictMode)
	}
	if fc.RemoteSyncEnabled != nil {
		cfg.RemoteSyncEnabled = *fc.RemoteSyncEnabled
	}

	if fc.Resolver.TitleLengthDelta != nil {
		cfg.Resolver.TitleLengthDelta = *fc.Resolver.TitleLengthDelta
	}
	if err := parseDuration(fc.Resolver.MetadataSkew, "resolver.metadata_skew", &cfg.Resolver.MetadataSkew); err != nil {
		return err
	}
	if err := parseDuration(fc.Resolver.FreshOverlayWindow, "resolver.fresh_overlay_window", &cfg.Resolver.FreshOverlayWindow); err != nil {
		return err
	}

	if fc.Repository.BaseURL != "" {
		cfg.Repository.BaseURL = fc.Repository.BaseURL
	}
	if fc.Repository.AuthToken != "" {
		cfg.Repository.AuthToken = fc.Repository.AuthToken
	}
	if fc.Repository.APIKey != "" {
		cfg.Repository.APIKey = fc.Repository.APIKey
	}
	if fc.Repository.EnableCompression != nil {
		cfg.Repository.EnableCompression = *fc.Repository.EnableCompression
	}
	if err := parseDuration(fc.Repository.RequestTimeout, "repository.request_timeout", &cfg.Repository.RequestTimeout); err != nil {
		return err
	}
	if fc.Repository.MaxRetries != nil {
		cfg.Repository.MaxRetries = *fc.Repository.MaxRetries
	}
	if err := parseDuration(fc.Repository.RetryInterval, "repository.retry_interval", &cfg.Repository.RetryInterval); err != nil {
		return err
	}

	if fc.Encryption.Enabled != nil {
		cfg.Encryption.Enabled = *fc.Encryption.Enabled
	}
	if fc.Encryption.KeyPassword != "" {
		cfg.Encryption.KeyPassword = fc.Encryption.KeyPassword
	}

	if fc.Export.Enabled != nil {
		cfg.Export.Enabled = *fc.Export.Enabled
	}
	if fc.Export.Endpoint != "" {
		cfg.Export.Endpoint = fc.Export.Endpoint
	}
	if err := parseDuration(fc.Export.Interval, "export.interval", &cfg.Export.Interval); err != nil {
		return err
	}
	if err := parseDuration(fc.Export.Timeout, "export.timeout", &cfg.Export.Timeout); err != nil {
		return err
	}
	if len(fc.Export.Labels) > 0 {
		cfg.Export.Labels = fc.Export.Labels
	}

	if fc.Feed.Enabled != nil {
		cfg.Feed.Enabled = *fc.Feed.Enabled
	}
	if fc.Feed.URL != "" {
		cfg.Feed.URL = fc.Feed.URL
	}
	if fc.Feed.AuthToken != "" {
		cfg.Feed.AuthToken = fc.Feed.AuthToken
	}
	if err := parseDuration(fc.Feed.ReconnectInitial, "feed.reconnect_initial", &cfg.Feed.ReconnectInitial); err != nil {
		return err
	}
	if err := parseDuration(fc.Feed.ReconnectMax, "feed.reconnect_max", &cfg.Feed.ReconnectMax); err != nil {
		return err
	}
	if err := parseDuration(fc.Feed.HandshakeTimeout, "feed.handshake_timeout", &cfg.Feed.HandshakeTimeout); err != nil {
		return err
	}

	return nil
}

func parseDuration(s, field string, into *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*into = d
	return nil
}

// applyEnvOverrides lets deployment environment flip the sync flag
// and point at a different backend without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRIFTSYNC_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("DRIFTSYNC_REMOTE_SYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RemoteSyncEnabled = b
		}
	}
	if v := os.Getenv("DRIFTSYNC_ENDPOINT"); v != "" {
		cfg.Repository.BaseURL = v
	}
	if v := os.Getenv("DRIFTSYNC_TOKEN"); v != "" {
		cfg.Repository.AuthToken = v
		if cfg.Feed.AuthToken == "" {
			cfg.Feed.AuthToken = v
		}
	}
}
