package config

import (
	"os"
	"strconv"
)

// Environment variable names for overrides.
const (
	EnvConfig      = "RAPTURE_INBOX_CONFIG"
	EnvVault       = "RAPTURE_INBOX_VAULT"
	EnvDestination = "RAPTURE_INBOX_DESTINATION"
	EnvInterval    = "RAPTURE_INBOX_INTERVAL_MINUTES"
	EnvGatewayURL  = "RAPTURE_INBOX_GATEWAY_URL"
	EnvLogLevel    = "RAPTURE_INBOX_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath          string
	VaultPath           string
	DestinationFolder   string
	SyncIntervalMinutes int
	GatewayURL          string
	LogLevel            string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// An unparsable interval is ignored and left to the file or default value.
func ReadEnvOverrides() EnvOverrides {
	env := EnvOverrides{
		ConfigPath:        os.Getenv(EnvConfig),
		VaultPath:         os.Getenv(EnvVault),
		DestinationFolder: os.Getenv(EnvDestination),
		GatewayURL:        os.Getenv(EnvGatewayURL),
		LogLevel:          os.Getenv(EnvLogLevel),
	}

	if v := os.Getenv(EnvInterval); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			env.SyncIntervalMinutes = n
		}
	}

	return env
}

// Apply copies every non-empty override onto cfg.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.VaultPath != "" {
		cfg.Inbox.VaultPath = e.VaultPath
	}
	if e.DestinationFolder != "" {
		cfg.Inbox.DestinationFolder = e.DestinationFolder
	}
	if e.SyncIntervalMinutes != 0 {
		cfg.Inbox.SyncIntervalMinutes = e.SyncIntervalMinutes
	}
	if e.GatewayURL != "" {
		cfg.Auth.GatewayURL = e.GatewayURL
	}
	if e.LogLevel != "" {
		cfg.Logging.Level = e.LogLevel
	}
}
