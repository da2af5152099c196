package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestVault(t *testing.T) *Vault {
	t.Helper()

	v, err := Open(t.TempDir())
	require.NoError(t, err)
	return v
}

func TestOpen_RequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := Open(file)
	assert.ErrorContains(t, err, "not a directory")

	_, err = Open(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Rapture/", "Rapture"},
		{"/Rapture//Inbox/", "Rapture/Inbox"},
		{`Rapture\Inbox`, "Rapture/Inbox"},
		{"", "/"},
		{"///", "/"},
		{"Cafe\u0301.md", "Caf\u00e9.md"},
		{"a\u00a0b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}

func TestCreateFolderAndExists(t *testing.T) {
	v := openTestVault(t)

	ok, err := v.Exists("Rapture/Inbox")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, v.CreateFolder("Rapture/Inbox/"))
	require.NoError(t, v.CreateFolder("Rapture/Inbox"), "creating twice is fine")

	ok, err = v.Exists("Rapture/Inbox")
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := os.Stat(filepath.Join(v.Root(), "Rapture", "Inbox"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreate_WritesExactContent(t *testing.T) {
	v := openTestVault(t)
	content := "---\ntags: [rapture]\n---\n\n# Title\r\nline two ✓\n"

	require.NoError(t, v.Create("Rapture/note.md", content))

	got, err := os.ReadFile(filepath.Join(v.Root(), "Rapture", "note.md"))
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	entries, err := os.ReadDir(filepath.Join(v.Root(), "Rapture"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestCreate_NeverOverwrites(t *testing.T) {
	v := openTestVault(t)

	require.NoError(t, v.Create("note.md", "first"))
	err := v.Create("note.md", "second")
	require.ErrorIs(t, err, ErrExists)

	got, err := os.ReadFile(filepath.Join(v.Root(), "note.md"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestResolve_RejectsTraversal(t *testing.T) {
	v := openTestVault(t)

	_, err := v.Exists("../outside.md")
	assert.ErrorIs(t, err, ErrOutsideVault)

	err = v.Create("Rapture/../../outside.md", "x")
	assert.ErrorIs(t, err, ErrOutsideVault)

	assert.ErrorIs(t, v.CreateFolder(".."), ErrOutsideVault)
}
