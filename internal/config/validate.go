package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/teemow/rapture-inbox/internal/logging"
)

// Validate checks every field and returns all problems joined together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Inbox.VaultPath == "" {
		errs = append(errs, errors.New("inbox.vault_path must not be empty"))
	}
	if err := validateDestination(cfg.Inbox.DestinationFolder); err != nil {
		errs = append(errs, err)
	}
	if cfg.Inbox.SyncIntervalMinutes < 1 {
		errs = append(errs, fmt.Errorf("inbox.sync_interval_minutes must be at least 1, got %d", cfg.Inbox.SyncIntervalMinutes))
	}
	if cfg.Inbox.StateFile == "" {
		errs = append(errs, errors.New("inbox.state_file must not be empty"))
	}
	if cfg.Inbox.HistoryDB == "" {
		errs = append(errs, errors.New("inbox.history_db must not be empty"))
	}

	if err := validateURL("auth.gateway_url", cfg.Auth.GatewayURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Auth.ClientID == "" {
		errs = append(errs, errors.New("auth.client_id must not be empty"))
	}
	if cfg.Auth.RedirectURI == "" {
		errs = append(errs, errors.New("auth.redirect_uri must not be empty"))
	}
	if cfg.Auth.HTTPTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("auth.http_timeout_seconds must be at least 1, got %d", cfg.Auth.HTTPTimeoutSeconds))
	}

	if cfg.Drive.Endpoint != "" {
		if err := validateURL("drive.endpoint", cfg.Drive.Endpoint); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Drive.ParentFolder == "" || cfg.Drive.MailboxFolder == "" {
		errs = append(errs, errors.New("drive.parent_folder and drive.mailbox_folder must not be empty"))
	}
	if cfg.Drive.MimeType == "" {
		errs = append(errs, errors.New("drive.mime_type must not be empty"))
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch cfg.Logging.Format {
	case "", logging.FormatAuto, logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, text or json, got %q", cfg.Logging.Format))
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr must be set when metrics are enabled"))
	}

	return errors.Join(errs...)
}

func validateDestination(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return errors.New("inbox.destination_folder must not be empty")
	}
	if path.IsAbs(folder) || strings.HasPrefix(folder, "\\") {
		return fmt.Errorf("inbox.destination_folder must be relative to the vault, got %q", folder)
	}
	cleaned := path.Clean(strings.ReplaceAll(folder, "\\", "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("inbox.destination_folder must stay inside the vault, got %q", folder)
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", field, raw)
	}
	return nil
}
