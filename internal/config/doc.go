// Package config loads rapture-inbox settings.
//
// Values are layered: built-in defaults, then the TOML file
// (default ~/.config/rapture-inbox/config.toml), then RAPTURE_INBOX_*
// environment variables, then command-line flags. A Watcher reloads the
// file while the daemon runs.
//
// Example config.toml:
//
//	[inbox]
//	vault_path = "~/Notes"
//	destination_folder = "Rapture/"
//	sync_interval_minutes = 5
//	sync_on_start = true
//
//	[metrics]
//	enabled = true
//	addr = ":9090"
package config
