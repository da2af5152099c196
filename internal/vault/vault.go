package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

var (
	// ErrExists is returned by Create when the target path is taken.
	ErrExists = errors.New("path already exists")

	// ErrOutsideVault is returned for paths that resolve outside the vault root.
	ErrOutsideVault = errors.New("path escapes the vault")
)

var (
	repeatedSeparators = regexp.MustCompile(`[\\/]+`)
	narrowSpaces       = strings.NewReplacer("\u00a0", " ", "\u202f", " ")
)

// Vault is a local folder tree addressed by slash-separated paths relative
// to its root.
type Vault struct {
	root string
}

// Open returns a vault rooted at root. The root must be an existing directory.
func Open(root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault path %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening vault %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening vault %s: not a directory", abs)
	}

	return &Vault{root: abs}, nil
}

// Root returns the absolute vault root.
func (v *Vault) Root() string {
	return v.root
}

// NormalizePath cleans a vault-relative path: backslashes become slashes,
// repeated separators collapse, leading and trailing slashes are dropped,
// non-breaking spaces become plain spaces and the result is NFC-normalized.
// The vault root itself is "/".
func NormalizePath(p string) string {
	p = repeatedSeparators.ReplaceAllString(p, "/")
	p = strings.Trim(p, "/")
	p = narrowSpaces.Replace(p)
	if p == "" {
		return "/"
	}
	return norm.NFC.String(p)
}

// Exists reports whether anything exists at rel.
func (v *Vault) Exists(rel string) (bool, error) {
	abs, err := v.resolve(rel)
	if err != nil {
		return false, err
	}

	_, err = os.Lstat(abs)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking %s: %w", rel, err)
	}
}

// CreateFolder creates rel and any missing parents.
func (v *Vault) CreateFolder(rel string) error {
	abs, err := v.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, dirPermissions); err != nil {
		return fmt.Errorf("creating folder %s: %w", rel, err)
	}
	return nil
}

// Create writes content to a new file at rel. It never overwrites: if the
// path is taken it returns ErrExists. The content is written to a temp file
// in the same directory and linked into place, so readers never observe a
// partial note.
func (v *Vault) Create(rel, content string) error {
	abs, err := v.resolve(rel)
	if err != nil {
		return err
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating folder for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(dir, ".rapture-*.partial")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", rel, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeAndClose(tmp, content); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}

	err = os.Link(tmpPath, abs)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("creating %s: %w", rel, ErrExists)
	default:
		// Filesystems without hard links fall back to an exclusive create.
		return createExclusive(abs, rel, content)
	}
}

func writeAndClose(f *os.File, content string) error {
	if err := f.Chmod(filePermissions); err != nil {
		f.Close()
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func createExclusive(abs, rel, content string) error {
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("creating %s: %w", rel, ErrExists)
		}
		return fmt.Errorf("creating %s: %w", rel, err)
	}
	if err := writeAndClose(f, content); err != nil {
		os.Remove(abs)
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// resolve maps a vault-relative path to an absolute path under the root.
func (v *Vault) resolve(rel string) (string, error) {
	normalized := NormalizePath(rel)
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%s: %w", rel, ErrOutsideVault)
		}
	}
	if normalized == "/" {
		return v.root, nil
	}
	return filepath.Join(v.root, filepath.FromSlash(normalized)), nil
}
