package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/migrator/internal/config"
	"github.com/TheMichaelB/migrator/internal/paths"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// TestHelpers provides common test helper functions.
type TestHelpers struct {
	t       testing.TB
	tempDir string
}

// NewTestHelpers creates test helpers.
func NewTestHelpers(t testing.TB) *TestHelpers {
	return &TestHelpers{
		t:       t,
		tempDir: t.TempDir(),
	}
}

// TempDir returns the temporary directory for this test.
func (h *TestHelpers) TempDir() string {
	return h.tempDir
}

// NewHome creates an empty installation home named name.
func (h *TestHelpers) NewHome(name string) *paths.Home {
	dir := filepath.Join(h.tempDir, name)
	require.NoError(h.t, os.MkdirAll(dir, 0755))

	home, err := paths.NewHome(dir)
	require.NoError(h.t, err)
	return home
}

// WriteFile creates a file below home with content and mode.
func (h *TestHelpers) WriteFile(home *paths.Home, rel, content string, mode os.FileMode) string {
	path := home.Resolve(rel)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(h.t, os.Chmod(path, mode))
	return path
}

// WriteTree creates files below home.
func (h *TestHelpers) WriteTree(home *paths.Home, files []HomeFile) {
	for _, f := range files {
		h.WriteFile(home, f.Path, f.Content, f.Mode)
	}
}

// AssertFileContent checks file content matches expected.
func (h *TestHelpers) AssertFileContent(path, expectedContent string) {
	content, err := os.ReadFile(path)
	require.NoError(h.t, err)
	assert.Equal(h.t, expectedContent, string(content))
}

// AssertFileMode checks the permission bits of a file.
func (h *TestHelpers) AssertFileMode(path string, mode os.FileMode) {
	info, err := os.Stat(path)
	require.NoError(h.t, err)
	assert.Equal(h.t, mode, info.Mode().Perm(), "mode of %s", path)
}

// AssertFileNotExists checks that a file does not exist.
func (h *TestHelpers) AssertFileNotExists(path string) {
	_, err := os.Stat(path)
	assert.True(h.t, os.IsNotExist(err), "File should not exist: %s", path)
}

// TestConfigWithDir creates a test configuration rooted at dir.
func TestConfigWithDir(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Home = dir
	cfg.Product.Version = "1.0"
	cfg.Archive.Encrypt = false
	cfg.History.Path = filepath.Join(dir, "data", "migration")
	cfg.Log = config.LogConfig{
		Level:  "debug",
		Format: "json",
		Color:  false,
	}
	return cfg
}

// CompareTrees asserts that every file below want exists below got with the
// same content and permission bits.
func CompareTrees(t *testing.T, want, got string) {
	t.Helper()

	err := filepath.WalkDir(want, func(p string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(want, p)
		require.NoError(t, err)

		wantInfo, err := os.Stat(p)
		require.NoError(t, err)
		gotInfo, err := os.Stat(filepath.Join(got, rel))
		require.NoError(t, err, "missing %s", rel)
		assert.Equal(t, wantInfo.Mode().Perm(), gotInfo.Mode().Perm(), "mode of %s", rel)

		CompareFiles(t, p, filepath.Join(got, rel))
		return nil
	})
	require.NoError(t, err)
}

// CompareFiles compares two files for equality.
func CompareFiles(t *testing.T, path1, path2 string) {
	content1, err := os.ReadFile(path1)
	require.NoError(t, err, "Failed to read %s", path1)

	content2, err := os.ReadFile(path2)
	require.NoError(t, err, "Failed to read %s", path2)

	assert.Equal(t, content1, content2, "Files should be identical")
}

// LogOutput captures json log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		lo.mu.Lock()
		lo.entries = append(lo.entries, entry)
		lo.mu.Unlock()
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
