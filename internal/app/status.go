package app

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/teemow/rapture-inbox/internal/inbox"
	"github.com/teemow/rapture-inbox/internal/vault"
)

// Status is a point-in-time snapshot of the service.
type Status struct {
	Authenticated bool         `json:"authenticated"`
	Identity      string       `json:"identity,omitempty"`
	TokenExpiry   time.Time    `json:"token_expiry,omitzero"`
	SyncStatus    inbox.Status `json:"sync_status"`
	LastSync      time.Time    `json:"last_sync,omitzero"`
	VaultPath     string       `json:"vault_path"`
	Destination   string       `json:"destination_folder"`
	SyncInterval  string       `json:"sync_interval"`
}

// Status returns the current service status.
func (a *App) Status() Status {
	cfg := a.Config()
	return Status{
		Authenticated: a.auth.IsAuthenticated(),
		Identity:      a.auth.Identity(),
		TokenExpiry:   a.auth.Expiry(),
		SyncStatus:    a.engine.Status(),
		LastSync:      a.state.LastSync(),
		VaultPath:     a.vault.Root(),
		Destination:   vault.NormalizePath(cfg.Inbox.DestinationFolder),
		SyncInterval:  cfg.SyncInterval().String(),
	}
}

// ConnectionText renders the sign-in state for display.
func (s Status) ConnectionText() string {
	switch {
	case !s.Authenticated:
		return "Not connected"
	case s.Identity == "":
		return "Connected as: Unknown"
	default:
		return "Connected as: " + s.Identity
	}
}

// LastSyncText renders the last successful sync relative to now.
func (s Status) LastSyncText(now time.Time) string {
	if s.LastSync.IsZero() {
		return "Never synced"
	}
	return "Last synced: " + humanize.RelTime(s.LastSync, now, "ago", "from now")
}
