package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "Rapture/", cfg.Inbox.DestinationFolder)
	assert.Equal(t, 5, cfg.Inbox.SyncIntervalMinutes)
	assert.True(t, cfg.Inbox.SyncOnStart)
	assert.Equal(t, "Rapture", cfg.Drive.ParentFolder)
	assert.Equal(t, "Obsidian", cfg.Drive.MailboxFolder)
	assert.Equal(t, "text/markdown", cfg.Drive.MimeType)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTestConfig(t, `
[inbox]
vault_path = "/tmp/vault"
destination_folder = "Inbox/Rapture"
sync_interval_minutes = 15
sync_on_start = false

[auth]
gateway_url = "https://gateway.example.com/"

[drive]
mailbox_folder = "Phone"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/vault", cfg.Inbox.VaultPath)
	assert.Equal(t, "Inbox/Rapture", cfg.Inbox.DestinationFolder)
	assert.Equal(t, 15, cfg.Inbox.SyncIntervalMinutes)
	assert.False(t, cfg.Inbox.SyncOnStart)
	assert.Equal(t, "https://gateway.example.com", cfg.Auth.GatewayURL, "trailing slash is trimmed")
	assert.Equal(t, "Rapture", cfg.Drive.ParentFolder, "unset keys keep defaults")
	assert.Equal(t, "Phone", cfg.Drive.MailboxFolder)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeTestConfig(t, `
[inbox]
destination = "Rapture/"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "inbox.destination"`)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[inbox\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDestinationFolder, cfg.Inbox.DestinationFolder)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{"zero interval", func(c *Config) { c.Inbox.SyncIntervalMinutes = 0 }, "sync_interval_minutes"},
		{"empty destination", func(c *Config) { c.Inbox.DestinationFolder = " " }, "destination_folder must not be empty"},
		{"absolute destination", func(c *Config) { c.Inbox.DestinationFolder = "/etc" }, "relative to the vault"},
		{"escaping destination", func(c *Config) { c.Inbox.DestinationFolder = "../outside" }, "inside the vault"},
		{"bad gateway scheme", func(c *Config) { c.Auth.GatewayURL = "ftp://gw" }, "http(s) URL"},
		{"gateway without host", func(c *Config) { c.Auth.GatewayURL = "https://" }, "must include a host"},
		{"bad drive endpoint", func(c *Config) { c.Drive.Endpoint = "not a url" }, "drive.endpoint"},
		{"empty client id", func(c *Config) { c.Auth.ClientID = "" }, "client_id"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
		{"zero timeout", func(c *Config) { c.Auth.HTTPTimeoutSeconds = 0 }, "http_timeout_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, Validate(cfg), tt.errContains)
		})
	}
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[inbox]
vault_path = "/from/file"
destination_folder = "FromFile/"
sync_interval_minutes = 10
`)

	flagDest := "FromFlag/"
	env := EnvOverrides{
		VaultPath:           "/from/env",
		DestinationFolder:   "FromEnv/",
		SyncIntervalMinutes: 30,
	}

	cfg, resolvedPath, err := Resolve(env, Overrides{ConfigPath: path, DestinationFolder: &flagDest})
	require.NoError(t, err)

	assert.Equal(t, path, resolvedPath)
	assert.Equal(t, "/from/env", cfg.Inbox.VaultPath, "env beats file")
	assert.Equal(t, "FromFlag/", cfg.Inbox.DestinationFolder, "flag beats env")
	assert.Equal(t, 30, cfg.Inbox.SyncIntervalMinutes)
}

func TestResolve_EnvConfigPath(t *testing.T) {
	path := writeTestConfig(t, `
[inbox]
destination_folder = "EnvPath/"
`)

	cfg, resolvedPath, err := Resolve(EnvOverrides{ConfigPath: path}, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, path, resolvedPath)
	assert.Equal(t, "EnvPath/", cfg.Inbox.DestinationFolder)
}

func TestResolve_InvalidAfterOverrides(t *testing.T) {
	path := writeTestConfig(t, "")

	_, _, err := Resolve(EnvOverrides{SyncIntervalMinutes: -1}, Overrides{ConfigPath: path})
	assert.ErrorContains(t, err, "sync_interval_minutes")
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/rapture.toml")
	t.Setenv(EnvVault, "/vault")
	t.Setenv(EnvDestination, "Drop/")
	t.Setenv(EnvInterval, "10")
	t.Setenv(EnvGatewayURL, "https://gw.example.com")
	t.Setenv(EnvLogLevel, "debug")

	env := ReadEnvOverrides()

	assert.Equal(t, EnvOverrides{
		ConfigPath:          "/etc/rapture.toml",
		VaultPath:           "/vault",
		DestinationFolder:   "Drop/",
		SyncIntervalMinutes: 10,
		GatewayURL:          "https://gw.example.com",
		LogLevel:            "debug",
	}, env)
}

func TestReadEnvOverrides_BadInterval(t *testing.T) {
	t.Setenv(EnvInterval, "often")

	assert.Equal(t, 0, ReadEnvOverrides().SyncIntervalMinutes)
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Notes"), expandTilde("~/Notes"))
	assert.Equal(t, "/abs/path", expandTilde("/abs/path"))
	assert.Equal(t, "relative", expandTilde("relative"))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeTestConfig(t, `
[inbox]
destination_folder = "Before/"
`)

	var mu sync.Mutex
	var got []*Config

	w := &Watcher{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		Reload:   func() (*Config, error) { return Load(path) },
		OnChange: func(cfg *Config) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, cfg)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[inbox]\ndestination_folder = \"After/\"\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].Inbox.DestinationFolder == "After/"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_SkipsInvalidConfig(t *testing.T) {
	path := writeTestConfig(t, "")

	calls := make(chan *Config, 4)
	w := &Watcher{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		Reload:   func() (*Config, error) { return Load(path) },
		OnChange: func(cfg *Config) { calls <- cfg },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[inbox]\nsync_interval_minutes = 0\n"), 0o600))

	select {
	case cfg := <-calls:
		t.Fatalf("invalid config was delivered: %+v", cfg.Inbox)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := &Watcher{
		Path:   filepath.Join(t.TempDir(), "nope", "config.toml"),
		Reload: func() (*Config, error) { return DefaultConfig(), nil },
	}

	err := w.Run(context.Background())
	assert.ErrorContains(t, err, "watching")
}
