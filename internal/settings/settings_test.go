package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rapture-inbox/internal/auth"
)

func TestLoad_FileNotFound(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Equal(t, auth.Record{}, d.Credentials())
	assert.True(t, d.LastSync().IsZero())
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), FilePerms))

	_, err := Load(path)
	assert.ErrorContains(t, err, "decoding")
}

func TestSaveCredentials_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	d, err := Load(path)
	require.NoError(t, err)

	rec := auth.Record{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		Expiry:       time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		Identity:     "me@example.com",
	}
	require.NoError(t, d.SaveCredentials(context.Background(), rec))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	got := reloaded.Credentials()
	assert.Equal(t, rec.AccessToken, got.AccessToken)
	assert.Equal(t, rec.RefreshToken, got.RefreshToken)
	assert.True(t, rec.Expiry.Equal(got.Expiry))
	assert.Equal(t, rec.Identity, got.Identity)
}

func TestSaveCredentials_SignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	d, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, d.SaveCredentials(context.Background(), auth.Record{RefreshToken: "r", Identity: "me@example.com"}))
	require.NoError(t, d.SetLastSync(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)))
	require.NoError(t, d.SaveCredentials(context.Background(), auth.Record{}))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, auth.Record{}, reloaded.Credentials())
	assert.False(t, reloaded.LastSync().IsZero(), "sign-out keeps the sync history")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "token")
	assert.NotContains(t, string(data), "me@example.com")
}

func TestSetLastSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	d, err := Load(path)
	require.NoError(t, err)

	when := time.Date(2026, 5, 1, 10, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	require.NoError(t, d.SetLastSync(when))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, when.Equal(reloaded.LastSync()))
	assert.Equal(t, time.UTC, reloaded.LastSync().Location())
}

func TestSave_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	d, err := Load(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	require.NoError(t, d.SetLastSync(time.Now()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
