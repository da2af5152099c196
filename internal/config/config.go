package config

import (
	"path/filepath"
	"time"
)

// Defaults mirrored by the inbox engine and the credential manager.
const (
	DefaultDestinationFolder   = "Rapture/"
	DefaultSyncIntervalMinutes = 5
	DefaultGatewayURL          = "https://rapture-api-gateway.onrender.com"
	DefaultClientID            = "1001880100001-l2qr9mev2eb86ob498kel7t8d4a31a8g.apps.googleusercontent.com"
	DefaultRedirectURI         = "obsidian://rapture-inbox"
	DefaultParentFolder        = "Rapture"
	DefaultMailboxFolder       = "Obsidian"
	DefaultMimeType            = "text/markdown"
	DefaultHTTPTimeoutSeconds  = 30
	DefaultMetricsAddr         = ":9090"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "auto"
)

// SyncIntervalOptions are the polling intervals offered in the settings UI.
// Validate accepts any positive interval; these are only suggestions.
var SyncIntervalOptions = []int{1, 5, 10, 15, 30}

// Config is the root of the TOML configuration file.
type Config struct {
	Inbox   InboxConfig   `toml:"inbox"`
	Auth    AuthConfig    `toml:"auth"`
	Drive   DriveConfig   `toml:"drive"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// InboxConfig controls where drained files land and how often.
type InboxConfig struct {
	// VaultPath is the root directory all local paths are relative to.
	VaultPath string `toml:"vault_path"`

	// DestinationFolder is the vault-relative folder files are written to.
	DestinationFolder string `toml:"destination_folder"`

	SyncIntervalMinutes int  `toml:"sync_interval_minutes"`
	SyncOnStart         bool `toml:"sync_on_start"`

	// StateFile holds the persisted credential record and last sync time.
	StateFile string `toml:"state_file"`

	// HistoryDB is the sqlite database recording past runs.
	HistoryDB string `toml:"history_db"`
}

// AuthConfig points the credential manager at the token gateway.
type AuthConfig struct {
	GatewayURL         string `toml:"gateway_url"`
	ClientID           string `toml:"client_id"`
	RedirectURI        string `toml:"redirect_uri"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
}

// DriveConfig names the shared mailbox on the remote store.
type DriveConfig struct {
	// Endpoint overrides the Drive API base URL. Empty means the public API.
	Endpoint      string `toml:"endpoint"`
	ParentFolder  string `toml:"parent_folder"`
	MailboxFolder string `toml:"mailbox_folder"`
	MimeType      string `toml:"mime_type"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig configures the Prometheus endpoint served by watch.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		Inbox: InboxConfig{
			VaultPath:           ".",
			DestinationFolder:   DefaultDestinationFolder,
			SyncIntervalMinutes: DefaultSyncIntervalMinutes,
			SyncOnStart:         true,
			StateFile:           filepath.Join(dataDir, "state.json"),
			HistoryDB:           filepath.Join(dataDir, "history.db"),
		},
		Auth: AuthConfig{
			GatewayURL:         DefaultGatewayURL,
			ClientID:           DefaultClientID,
			RedirectURI:        DefaultRedirectURI,
			HTTPTimeoutSeconds: DefaultHTTPTimeoutSeconds,
		},
		Drive: DriveConfig{
			ParentFolder:  DefaultParentFolder,
			MailboxFolder: DefaultMailboxFolder,
			MimeType:      DefaultMimeType,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
	}
}

// SyncInterval returns the polling interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Inbox.SyncIntervalMinutes) * time.Minute
}

// HTTPTimeout returns the timeout applied to every outbound HTTP request.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Auth.HTTPTimeoutSeconds) * time.Second
}
