package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPersister struct {
	mu    sync.Mutex
	saved []Record
	err   error
}

func (p *recordingPersister) SaveCredentials(_ context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, rec)
	return p.err
}

func (p *recordingPersister) last() Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[len(p.saved)-1]
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

// fakeGateway serves the token and refresh endpoints with canned responses.
type fakeGateway struct {
	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32

	refreshStatus int
	refreshBody   tokenResponse
	exchangeBody  tokenResponse

	lastRefresh  refreshRequest
	lastExchange exchangeRequest

	// When set, the refresh handler closes refreshing and waits for release
	// before answering.
	refreshing chan struct{}
	release    chan struct{}
}

func (g *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+refreshPath, func(w http.ResponseWriter, r *http.Request) {
		g.refreshCalls.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&g.lastRefresh))
		if g.release != nil {
			close(g.refreshing)
			<-g.release
		}
		if g.refreshStatus != 0 && g.refreshStatus != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, g.refreshStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(g.refreshBody)
	})
	mux.HandleFunc("POST "+tokenPath, func(w http.ResponseWriter, r *http.Request) {
		g.exchangeCalls.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&g.lastExchange))
		if g.lastExchange.Code == "bad" {
			http.Error(w, "invalid code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(g.exchangeBody)
	})
	return mux
}

func newTestManager(t *testing.T, gw *fakeGateway, initial Record) (*Manager, *recordingPersister) {
	t.Helper()

	srv := httptest.NewServer(gw.handler(t))
	t.Cleanup(srv.Close)

	p := &recordingPersister{}
	m := NewManager(initial, Options{
		GatewayURL:  srv.URL,
		ClientID:    "client-id",
		RedirectURI: "obsidian://rapture-inbox",
		HTTPClient:  srv.Client(),
		Persister:   p,
		Now:         func() time.Time { return testNow },
	})
	return m, p
}

func TestManager_IsAuthenticated(t *testing.T) {
	m, _ := newTestManager(t, &fakeGateway{}, Record{})
	assert.False(t, m.IsAuthenticated())

	m, _ = newTestManager(t, &fakeGateway{}, Record{RefreshToken: "r"})
	assert.True(t, m.IsAuthenticated())
}

func TestManager_IsExpired(t *testing.T) {
	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"zero expiry", time.Time{}, true},
		{"already past", testNow.Add(-time.Minute), true},
		{"exactly at buffer", testNow.Add(ExpiryBuffer), true},
		{"inside buffer", testNow.Add(4 * time.Minute), true},
		{"outside buffer", testNow.Add(ExpiryBuffer + time.Second), false},
		{"an hour left", testNow.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, &fakeGateway{}, Record{RefreshToken: "r", Expiry: tt.expiry})
			assert.Equal(t, tt.want, m.IsExpired())
		})
	}
}

func TestManager_AccessToken_Fresh(t *testing.T) {
	gw := &fakeGateway{}
	m, _ := newTestManager(t, gw, Record{
		AccessToken:  "valid",
		RefreshToken: "r",
		Expiry:       testNow.Add(time.Hour),
	})

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "valid", tok)
	assert.Zero(t, gw.refreshCalls.Load())
}

func TestManager_AccessToken_RefreshesOnceWhenExpired(t *testing.T) {
	gw := &fakeGateway{refreshBody: tokenResponse{AccessToken: "new", ExpiresIn: 3600}}
	m, p := newTestManager(t, gw, Record{
		AccessToken:  "stale",
		RefreshToken: "r",
		Expiry:       testNow.Add(2 * time.Minute),
	})

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
	assert.EqualValues(t, 1, gw.refreshCalls.Load())
	assert.Equal(t, "r", gw.lastRefresh.RefreshToken)

	rec := p.last()
	assert.Equal(t, "new", rec.AccessToken)
	assert.Equal(t, "r", rec.RefreshToken, "refresh token kept when none is issued")
	assert.Equal(t, testNow.Add(time.Hour), rec.Expiry)

	tok, err = m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
	assert.EqualValues(t, 1, gw.refreshCalls.Load(), "fresh token is not refreshed again")
}

func TestManager_AccessToken_ConcurrentCallersShareRefresh(t *testing.T) {
	gw := &fakeGateway{refreshBody: tokenResponse{AccessToken: "new", ExpiresIn: 3600}}
	m, _ := newTestManager(t, gw, Record{RefreshToken: "r"})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.AccessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "new", tok)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, gw.refreshCalls.Load())
}

func TestManager_AccessToken_NoRefreshToken(t *testing.T) {
	m, _ := newTestManager(t, &fakeGateway{}, Record{AccessToken: "orphan"})

	_, err := m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshCredential)
	assert.ErrorIs(t, err, ErrRefreshFailed)
}

func TestManager_Refresh_Rotation(t *testing.T) {
	gw := &fakeGateway{refreshBody: tokenResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 60}}
	m, p := newTestManager(t, gw, Record{AccessToken: "a1", RefreshToken: "r1", Identity: "me@example.com"})

	require.NoError(t, m.Refresh(context.Background()))

	rec := m.Record()
	assert.Equal(t, "a2", rec.AccessToken)
	assert.Equal(t, "r2", rec.RefreshToken)
	assert.Equal(t, "me@example.com", rec.Identity)
	assert.Equal(t, testNow.Add(time.Minute), rec.Expiry)
	assert.Equal(t, rec, p.last())
}

func TestManager_Refresh_RejectedSignsOut(t *testing.T) {
	gw := &fakeGateway{refreshStatus: http.StatusUnauthorized}
	m, p := newTestManager(t, gw, Record{
		AccessToken:  "a",
		RefreshToken: "dead",
		Expiry:       testNow.Add(-time.Hour),
		Identity:     "me@example.com",
	})

	err := m.Refresh(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)

	assert.Equal(t, Record{}, m.Record())
	assert.Equal(t, Record{}, p.last())
	assert.False(t, m.IsAuthenticated())

	_, err = m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshCredential)
	assert.EqualValues(t, 1, gw.refreshCalls.Load())
}

func TestManager_Refresh_TransportErrorKeepsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	initial := Record{AccessToken: "a", RefreshToken: "r", Expiry: testNow}
	m := NewManager(initial, Options{GatewayURL: srv.URL, Now: func() time.Time { return testNow }})

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshFailed)

	var urlErr *url.Error
	assert.True(t, errors.As(err, &urlErr))
	assert.Equal(t, initial, m.Record())
}

func TestManager_Refresh_NoRefreshToken(t *testing.T) {
	gw := &fakeGateway{}
	m, p := newTestManager(t, gw, Record{})

	assert.ErrorIs(t, m.Refresh(context.Background()), ErrNoRefreshCredential)
	assert.Zero(t, gw.refreshCalls.Load())
	assert.Zero(t, p.count())
}

func TestManager_ExchangeAuthorizationCode(t *testing.T) {
	gw := &fakeGateway{exchangeBody: tokenResponse{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresIn:    3599,
		Email:        "me@example.com",
	}}
	m, p := newTestManager(t, gw, Record{})

	require.NoError(t, m.ExchangeAuthorizationCode(context.Background(), "code-123"))

	assert.Equal(t, "code-123", gw.lastExchange.Code)
	assert.Equal(t, "obsidian://rapture-inbox", gw.lastExchange.RedirectURI)

	want := Record{
		AccessToken:  "a",
		RefreshToken: "r",
		Expiry:       testNow.Add(3599 * time.Second),
		Identity:     "me@example.com",
	}
	assert.Equal(t, want, m.Record())
	assert.Equal(t, want, p.last())
	assert.True(t, m.IsAuthenticated())
}

func TestManager_ExchangeAuthorizationCode_NoEmail(t *testing.T) {
	gw := &fakeGateway{exchangeBody: tokenResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60}}
	m, _ := newTestManager(t, gw, Record{})

	require.NoError(t, m.ExchangeAuthorizationCode(context.Background(), "code"))
	assert.Empty(t, m.Identity())
}

func TestManager_ExchangeAuthorizationCode_Rejected(t *testing.T) {
	m, p := newTestManager(t, &fakeGateway{}, Record{})

	err := m.ExchangeAuthorizationCode(context.Background(), "bad")
	require.ErrorIs(t, err, ErrExchangeFailed)
	assert.Contains(t, err.Error(), "400")
	assert.False(t, m.IsAuthenticated())
	assert.Zero(t, p.count())
}

func TestManager_SignOut(t *testing.T) {
	m, p := newTestManager(t, &fakeGateway{}, Record{
		AccessToken:  "a",
		RefreshToken: "r",
		Expiry:       testNow.Add(time.Hour),
		Identity:     "me@example.com",
	})

	m.SignOut(context.Background())

	assert.Equal(t, Record{}, m.Record())
	assert.Equal(t, Record{}, p.last())
}

// startBlockedRefresh begins a refresh of an expired record and returns once
// the gateway holds the request. Closing gw.release lets it finish.
func startBlockedRefresh(t *testing.T, m *Manager, gw *fakeGateway) <-chan error {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		_, err := m.AccessToken(context.Background())
		done <- err
	}()

	select {
	case <-gw.refreshing:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never reached the gateway")
	}
	return done
}

func blockingGateway() *fakeGateway {
	return &fakeGateway{
		refreshBody: tokenResponse{AccessToken: "new", RefreshToken: "rotated", ExpiresIn: 3600},
		refreshing:  make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func TestManager_SignOutDuringRefresh(t *testing.T) {
	gw := blockingGateway()
	m, p := newTestManager(t, gw, Record{
		AccessToken:  "old",
		RefreshToken: "r",
		Expiry:       testNow.Add(-time.Minute),
		Identity:     "me@example.com",
	})

	refreshed := startBlockedRefresh(t, m, gw)

	signedOut := make(chan struct{})
	go func() {
		m.SignOut(context.Background())
		close(signedOut)
	}()

	assert.Never(t, func() bool {
		select {
		case <-signedOut:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond, "sign-out waits for the in-flight refresh")

	close(gw.release)
	require.NoError(t, <-refreshed)
	<-signedOut

	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, Record{}, m.Record())
	assert.Equal(t, Record{}, p.last(), "the refreshed credentials are not left on disk")
}

func TestManager_ExchangeDuringRefresh(t *testing.T) {
	gw := blockingGateway()
	gw.exchangeBody = tokenResponse{AccessToken: "fresh", RefreshToken: "r2", ExpiresIn: 3600, Email: "other@example.com"}
	m, p := newTestManager(t, gw, Record{
		AccessToken:  "old",
		RefreshToken: "r",
		Expiry:       testNow.Add(-time.Minute),
		Identity:     "me@example.com",
	})

	refreshed := startBlockedRefresh(t, m, gw)

	exchanged := make(chan error, 1)
	go func() { exchanged <- m.ExchangeAuthorizationCode(context.Background(), "code") }()

	close(gw.release)
	require.NoError(t, <-refreshed)
	require.NoError(t, <-exchanged)

	rec := m.Record()
	assert.Equal(t, "fresh", rec.AccessToken)
	assert.Equal(t, "r2", rec.RefreshToken)
	assert.Equal(t, "other@example.com", rec.Identity)
	assert.Equal(t, rec, p.last())
}

func TestManager_PersistFailureIsNotFatal(t *testing.T) {
	gw := &fakeGateway{refreshBody: tokenResponse{AccessToken: "new", ExpiresIn: 3600}}
	m, p := newTestManager(t, gw, Record{RefreshToken: "r"})
	p.err = errors.New("disk full")

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, "new", m.Record().AccessToken)
}

func TestManager_AuthURL(t *testing.T) {
	m, _ := newTestManager(t, &fakeGateway{}, Record{})

	u, err := url.Parse(m.AuthURL("state-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "obsidian://rapture-inbox", q.Get("redirect_uri"))
	assert.Equal(t, "https://www.googleapis.com/auth/drive.file", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "state-1", q.Get("state"))
}
