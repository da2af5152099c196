package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"github.com/teemow/rapture-inbox/internal/instrumentation"
	"github.com/teemow/rapture-inbox/internal/logging"
)

// ExpiryBuffer is how long before the recorded expiry a token stops being used.
const ExpiryBuffer = 5 * time.Minute

// Persister stores the credential record after every mutation.
type Persister interface {
	SaveCredentials(ctx context.Context, rec Record) error
}

// Options configures a Manager.
type Options struct {
	// GatewayURL is the base URL of the token gateway.
	GatewayURL string
	// ClientID is the public OAuth client ID used to build the consent URL.
	ClientID string
	// RedirectURI receives the authorization code.
	RedirectURI string

	HTTPClient *http.Client
	Persister  Persister
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger

	// Now overrides the clock; used in tests.
	Now func() time.Time
}

// Manager owns the credential lifecycle: expiry tracking, refresh with
// rotation, code exchange and sign-out.
type Manager struct {
	store     *Store
	gateway   *gatewayClient
	oauth     *oauth2.Config
	persister Persister
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	now       func() time.Time

	// refreshMu serializes refreshes, sign-in and sign-out so concurrent callers
	// share one gateway round trip and never undo each other.
	refreshMu sync.Mutex
}

// NewManager returns a manager seeded with the initial record.
func NewManager(initial Record, opts Options) *Manager {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		store:   NewStore(initial),
		gateway: &gatewayClient{baseURL: opts.GatewayURL, httpClient: httpClient},
		oauth: &oauth2.Config{
			ClientID:    opts.ClientID,
			Endpoint:    google.Endpoint,
			RedirectURL: opts.RedirectURI,
			Scopes:      []string{drive.DriveFileScope},
		},
		persister: opts.Persister,
		metrics:   opts.Metrics,
		logger:    logging.WithComponent(logger, "auth"),
		now:       now,
	}
}

// IsAuthenticated reports whether a refresh token is stored.
func (m *Manager) IsAuthenticated() bool {
	return m.store.Get().RefreshToken != ""
}

// IsExpired reports whether the access token is within ExpiryBuffer of its
// expiry, or has no expiry at all.
func (m *Manager) IsExpired() bool {
	return m.expired(m.store.Get())
}

func (m *Manager) expired(rec Record) bool {
	if rec.Expiry.IsZero() {
		return true
	}
	return !m.now().Before(rec.Expiry.Add(-ExpiryBuffer))
}

// Identity returns the account email, or "" when unknown.
func (m *Manager) Identity() string {
	return m.store.Get().Identity
}

// Record returns a copy of the current credential record.
func (m *Manager) Record() Record {
	return m.store.Get()
}

// Expiry returns the stored access token expiry.
func (m *Manager) Expiry() time.Time {
	return m.store.Get().Expiry
}

// AuthURL returns the consent screen URL. Offline access and a forced
// consent prompt guarantee a refresh token in the response.
func (m *Manager) AuthURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// AccessToken returns a usable access token, refreshing first when the
// stored one is expired.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if !m.IsAuthenticated() {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultNoToken)
		return "", ErrNoRefreshCredential
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	rec := m.store.Get()
	if m.expired(rec) {
		if err := m.refreshLocked(ctx); err != nil {
			return "", err
		}
		rec = m.store.Get()
	}

	return rec.AccessToken, nil
}

// Refresh unconditionally exchanges the refresh token for a new access token.
// A gateway rejection clears every credential field before returning
// ErrRefreshFailed. Transport errors leave the record untouched.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	rec := m.store.Get()
	if rec.RefreshToken == "" {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultNoToken)
		return ErrNoRefreshCredential
	}

	resp, err := m.gateway.post(ctx, "refresh", refreshPath, refreshRequest{RefreshToken: rec.RefreshToken}, ErrRefreshFailed)
	if err != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)

		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			m.logger.WarnContext(ctx, "Token refresh rejected, signing out",
				slog.Int("status_code", gwErr.StatusCode),
				logging.UserHash(rec.Identity))
			m.store.Clear()
			m.persist(ctx)
			return err
		}

		m.logger.WarnContext(ctx, "Token refresh failed", logging.Err(err))
		return fmt.Errorf("refreshing access token: %w", err)
	}

	updated := m.store.Update(func(r *Record) {
		r.AccessToken = resp.AccessToken
		r.Expiry = m.expiryFrom(resp.ExpiresIn)
		if resp.RefreshToken != "" {
			r.RefreshToken = resp.RefreshToken
		}
	})

	m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	m.logger.DebugContext(ctx, "Access token refreshed",
		slog.Time("expiry", updated.Expiry),
		slog.Bool("rotated", resp.RefreshToken != ""))

	m.persist(ctx)
	return nil
}

// ExchangeAuthorizationCode trades a one-time code for the initial credential set.
// It waits for an in-flight refresh so that refresh cannot overwrite the new record.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, code string) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	resp, err := m.gateway.post(ctx, "exchange", tokenPath, exchangeRequest{
		Code:        code,
		RedirectURI: m.oauth.RedirectURL,
	}, ErrExchangeFailed)
	if err != nil {
		m.metrics.RecordOAuthCodeExchange(ctx, instrumentation.OAuthResultFailure)
		return err
	}

	rec := Record{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       m.expiryFrom(resp.ExpiresIn),
		Identity:     resp.Email,
	}
	m.store.Set(rec)

	m.metrics.RecordOAuthCodeExchange(ctx, instrumentation.OAuthResultSuccess)
	m.logger.InfoContext(ctx, "Signed in", logging.UserHash(rec.Identity))

	m.persist(ctx)
	return nil
}

// SignOut clears every credential field and persists the empty record.
// It waits for an in-flight refresh, so a completed refresh never restores
// the cleared credentials.
func (m *Manager) SignOut(ctx context.Context) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.store.Clear()
	m.logger.InfoContext(ctx, "Signed out")
	m.persist(ctx)
}

func (m *Manager) expiryFrom(expiresIn int64) time.Time {
	return m.now().Add(time.Duration(expiresIn) * time.Second)
}

// persist hands the record to the persister. Failures are logged; the
// in-memory record stays authoritative.
func (m *Manager) persist(ctx context.Context) {
	if m.persister == nil {
		return
	}
	if err := m.persister.SaveCredentials(ctx, m.store.Get()); err != nil {
		m.logger.ErrorContext(ctx, "Failed to persist credentials", logging.Err(err))
	}
}
