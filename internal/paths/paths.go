package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyHome is returned when a home directory is not configured.
var ErrEmptyHome = errors.New("home directory is not configured")

// Home is the installation home directory every migrated path is relative to.
// It is built once from configuration and passed to contexts and entries.
type Home struct {
	dir string
}

// NewHome creates a Home rooted at dir. The directory is made absolute and
// symbolic links in it are resolved when possible.
func NewHome(dir string) (*Home, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrEmptyHome
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}

	return &Home{dir: filepath.Clean(abs)}, nil
}

// Dir returns the absolute home directory.
func (h *Home) Dir() string {
	return h.dir
}

// Resolve returns p unchanged when absolute, otherwise p joined to home.
func (h *Home) Resolve(p string) string {
	native := filepath.FromSlash(p)
	if filepath.IsAbs(native) {
		return filepath.Clean(native)
	}
	return filepath.Join(h.dir, native)
}

// Relativize returns p relative to home. Paths outside home are returned
// unchanged.
func (h *Home) Relativize(p string) string {
	native := filepath.FromSlash(p)
	if !filepath.IsAbs(native) {
		return filepath.Clean(native)
	}

	rel, err := filepath.Rel(h.dir, filepath.Clean(native))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}

// IsUnderHome reports whether p resolves to a location inside home.
func (h *Home) IsUnderHome(p string) bool {
	resolved := h.Resolve(p)
	if resolved == h.dir {
		return true
	}
	return strings.HasPrefix(resolved, h.dir+string(filepath.Separator))
}

// Checksum computes the checksum of the file at p (resolved against home).
func (h *Home) Checksum(p string) (string, error) {
	return Checksum(h.Resolve(p))
}

// Checksum computes the SHA-256 hex digest of the raw bytes of a file.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	return ChecksumReader(file)
}

// ChecksumReader computes the SHA-256 hex digest of everything read from r.
func ChecksumReader(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("compute checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ToSlash normalizes separators to forward slashes and cleans the path.
func ToSlash(p string) string {
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	return strings.ReplaceAll(cleaned, "\\", "/")
}
