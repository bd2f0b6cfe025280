package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/TheMichaelB/migrator/internal/events"
)

// ErrFileTooLarge is returned when content exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

// LocalStore implements file system operations rooted at the installation
// home.
type LocalStore struct {
	baseDir string
	logger  *events.Logger

	// Security settings
	maxPathLength int
	maxFileSize   int64
}

// NewLocalStore creates a local file store.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	// Resolve absolute path
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if real, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = real
	}

	// Create base directory
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	if logger == nil {
		logger = events.Nop()
	}

	return &LocalStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_store"),
		maxPathLength: 4096,
		maxFileSize:   1024 * 1024 * 1024, // 1GB default
	}, nil
}

// BaseDir returns the absolute root directory.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// SetMaxFileSize sets the maximum file size limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// SetMaxPathLength sets the maximum absolute path length.
func (s *LocalStore) SetMaxPathLength(n int) {
	s.maxPathLength = n
}

// WriteStream saves data from a reader atomically and applies mode.
func (s *LocalStore) WriteStream(path string, reader io.Reader, mode os.FileMode) (string, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return "", fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("path", path).Debug("Writing stream")

	// Ensure parent directory
	if err := os.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	if mode == 0 {
		mode = 0644
	}

	pending, err := renameio.NewPendingFile(safePath, renameio.WithPermissions(mode.Perm()))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer pending.Cleanup()

	// Copy with size limit
	hasher := sha256.New()
	writer := io.MultiWriter(pending, hasher)

	limited := &io.LimitedReader{
		R: reader,
		N: s.maxFileSize + 1, // +1 to detect oversized
	}

	written, err := io.Copy(writer, limited)
	if err != nil {
		return "", fmt.Errorf("write stream: %w", err)
	}

	if limited.N <= 0 {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.maxFileSize)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("replace file: %w", err)
	}

	// The umask may have narrowed the requested permissions.
	if err := os.Chmod(safePath, mode.Perm()); err != nil {
		return "", fmt.Errorf("chmod file: %w", err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))

	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": written,
		"hash": sum,
	}).Debug("Stream written")

	return sum, nil
}

// Delete removes a file. Missing files are not an error.
func (s *LocalStore) Delete(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("path", path).Debug("Deleting file")

	if err := os.Remove(safePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // Already deleted
		}
		return fmt.Errorf("delete file: %w", err)
	}

	return nil
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(path string) (bool, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return false, fmt.Errorf("sanitize path: %w", err)
	}

	_, err = os.Lstat(safePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Stat returns file information.
func (s *LocalStore) Stat(path string) (FileInfo, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("sanitize path: %w", err)
	}

	stat, err := os.Lstat(safePath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat file: %w", err)
	}

	info := FileInfo{
		Path:      path,
		Size:      stat.Size(),
		Mode:      stat.Mode(),
		ModTime:   stat.ModTime(),
		IsDir:     stat.IsDir(),
		IsSymlink: stat.Mode()&os.ModeSymlink != 0,
	}

	return info, nil
}

// EnsureDir creates a directory if it doesn't exist.
func (s *LocalStore) EnsureDir(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	return os.MkdirAll(safePath, 0755)
}

// ListFiles returns the home relative slash paths of every non directory
// entry below path, sorted. A missing directory has no files.
func (s *LocalStore) ListFiles(path string) ([]string, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	var files []string
	err = filepath.WalkDir(safePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == safePath {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// CleanDir removes everything inside a directory, keeping the directory. A
// missing directory is already clean.
func (s *LocalStore) CleanDir(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("path", path).Debug("Cleaning directory")

	entries, err := os.ReadDir(safePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read directory: %w", err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(safePath, entry.Name())); err != nil {
			return fmt.Errorf("clean directory: %w", err)
		}
	}

	return nil
}

// Chmod changes file permissions.
func (s *LocalStore) Chmod(path string, mode os.FileMode) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	return os.Chmod(safePath, mode)
}

// SetModTime updates file modification time.
func (s *LocalStore) SetModTime(path string, modTime time.Time) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	return os.Chtimes(safePath, time.Now(), modTime)
}

// Helper methods

// sanitizePath validates a home relative path, or an absolute path inside
// home, and returns its absolute form.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	// Check for null bytes
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	// Normalize path separators
	normalized := filepath.FromSlash(path)

	var fullPath string
	if filepath.IsAbs(normalized) {
		fullPath = filepath.Clean(normalized)
	} else {
		cleaned := filepath.Clean(normalized)

		// Check for directory traversal
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("invalid path: escapes base directory")
		}

		fullPath = filepath.Join(s.baseDir, cleaned)
	}

	// Verify it's under base directory
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) && fullPath != s.baseDir {
		return "", fmt.Errorf("invalid path: escapes base directory")
	}

	// Check path length
	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("path too long: %d characters (max: %d)", len(fullPath), s.maxPathLength)
	}

	rel, _ := filepath.Rel(s.baseDir, fullPath)
	if err := s.validatePlatformPath(rel); err != nil {
		return "", err
	}

	return fullPath, nil
}

// validatePlatformPath checks platform-specific path restrictions.
func (s *LocalStore) validatePlatformPath(path string) error {
	if runtime.GOOS == "windows" {
		// Windows reserved names
		reserved := []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4",
			"COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3",
			"LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

		parts := strings.Split(path, string(filepath.Separator))
		for _, part := range parts {
			baseName := strings.TrimSuffix(part, filepath.Ext(part))
			upperName := strings.ToUpper(baseName)

			for _, reserved := range reserved {
				if upperName == reserved {
					return fmt.Errorf("invalid path: contains reserved name '%s'", part)
				}
			}
		}
	}

	return nil
}
