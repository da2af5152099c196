package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/rapture-inbox/internal/auth"
	"github.com/teemow/rapture-inbox/internal/config"
	"github.com/teemow/rapture-inbox/internal/drive"
	"github.com/teemow/rapture-inbox/internal/history"
	"github.com/teemow/rapture-inbox/internal/inbox"
	"github.com/teemow/rapture-inbox/internal/instrumentation"
	"github.com/teemow/rapture-inbox/internal/logging"
	"github.com/teemow/rapture-inbox/internal/settings"
	"github.com/teemow/rapture-inbox/internal/vault"
)

// MsgNotAuthenticated is the result error of a sync attempted while signed out.
const MsgNotAuthenticated = "Not authenticated"

// ErrAuthorizationDenied is returned when the redirect carried an error
// instead of an authorization code.
var ErrAuthorizationDenied = errors.New("authentication failed")

// Options configures an App.
type Options struct {
	Config *config.Config

	// HTTPClient is the base client for gateway and Drive requests. When nil
	// one is built with the configured timeout.
	HTTPClient *http.Client

	// DisableHistory skips opening the history database.
	DisableHistory bool

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// App is the assembled inbox service.
type App struct {
	state   *settings.Document
	auth    *auth.Manager
	drive   *drive.Client
	vault   *vault.Vault
	engine  *inbox.Engine
	history *history.Store
	logger  *slog.Logger
	now     func() time.Time

	mu  sync.RWMutex
	cfg *config.Config
}

// New loads persisted state and builds every component from cfg.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout()}
	}

	state, err := settings.Load(cfg.Inbox.StateFile)
	if err != nil {
		return nil, err
	}

	manager := auth.NewManager(state.Credentials(), auth.Options{
		GatewayURL:  cfg.Auth.GatewayURL,
		ClientID:    cfg.Auth.ClientID,
		RedirectURI: cfg.Auth.RedirectURI,
		HTTPClient:  httpClient,
		Persister:   state,
		Metrics:     opts.Metrics,
		Logger:      logger,
		Now:         now,
	})

	driveClient, err := drive.NewClient(ctx, drive.Options{
		Credentials:   manager,
		HTTPClient:    httpClient,
		Endpoint:      cfg.Drive.Endpoint,
		ParentFolder:  cfg.Drive.ParentFolder,
		MailboxFolder: cfg.Drive.MailboxFolder,
		MimeType:      cfg.Drive.MimeType,
		Metrics:       opts.Metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	v, err := vault.Open(cfg.Inbox.VaultPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		state:  state,
		auth:   manager,
		drive:  driveClient,
		vault:  v,
		logger: logging.WithComponent(logger, "app"),
		now:    now,
		cfg:    cfg,
	}

	var recorder inbox.Recorder
	if !opts.DisableHistory && cfg.Inbox.HistoryDB != "" {
		store, err := history.Open(ctx, cfg.Inbox.HistoryDB, history.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		a.history = store
		recorder = store
	}

	a.engine = inbox.NewEngine(inbox.Options{
		Remote:   driveClient,
		Local:    v,
		Settings: inbox.Settings{DestinationFolder: cfg.Inbox.DestinationFolder},
		Recorder: recorder,
		Metrics:  opts.Metrics,
		Logger:   logger,
		Now:      now,
	})

	return a, nil
}

// Close releases the history database.
func (a *App) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// Auth returns the credential manager.
func (a *App) Auth() *auth.Manager {
	return a.auth
}

// Engine returns the inbox engine.
func (a *App) Engine() *inbox.Engine {
	return a.engine
}

// History returns the history store, or nil when history is disabled.
func (a *App) History() *history.Store {
	return a.history
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// ApplyConfig adopts a reloaded configuration. Only the destination folder
// and polling settings take effect without a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	a.engine.UpdateSettings(inbox.Settings{DestinationFolder: cfg.Inbox.DestinationFolder})

	if old.Inbox.VaultPath != cfg.Inbox.VaultPath || old.Auth != cfg.Auth || old.Drive != cfg.Drive {
		a.logger.Warn("Vault, auth and drive settings change only after a restart")
	}
	a.logger.Info("Configuration reloaded",
		logging.Folder(cfg.Inbox.DestinationFolder),
		slog.Int("sync_interval_minutes", cfg.Inbox.SyncIntervalMinutes))
}

// ManualSync runs one drain if signed in. A fully or partially successful
// run updates the last sync time.
func (a *App) ManualSync(ctx context.Context) inbox.Result {
	if !a.auth.IsAuthenticated() {
		return inbox.Result{Errors: []string{MsgNotAuthenticated}}
	}

	result := a.engine.SyncNow(ctx)
	if result.Success() {
		if err := a.state.SetLastSync(a.now()); err != nil {
			a.logger.WarnContext(ctx, "Failed to record last sync time", logging.Err(err))
		}
	}
	return result
}

// PollSync runs one scheduled drain if signed in. Unlike ManualSync it
// leaves the last sync time alone, which tracks user-requested runs only.
func (a *App) PollSync(ctx context.Context) inbox.Result {
	if !a.auth.IsAuthenticated() {
		return inbox.Result{Errors: []string{MsgNotAuthenticated}}
	}
	return a.engine.SyncNow(ctx)
}

// AuthURL returns the consent URL to open in a browser.
func (a *App) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// CompleteLogin handles the OAuth redirect URI and exchanges its code.
func (a *App) CompleteLogin(ctx context.Context, redirect string) error {
	cb, err := auth.ParseCallback(redirect)
	if err != nil {
		return err
	}
	if cb.Error != "" {
		return fmt.Errorf("%w: %s", ErrAuthorizationDenied, cb.Error)
	}
	return a.auth.ExchangeAuthorizationCode(ctx, cb.Code)
}

// Logout clears the stored credentials.
func (a *App) Logout(ctx context.Context) {
	a.auth.SignOut(ctx)
}

// IsNotAuthenticated reports whether r is the refusal ManualSync returns
// while signed out.
func IsNotAuthenticated(r inbox.Result) bool {
	return r.FilesDownloaded == 0 && len(r.Errors) == 1 && r.Errors[0] == MsgNotAuthenticated
}
