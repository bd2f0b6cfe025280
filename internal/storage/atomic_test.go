package storage_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/paths"
	"github.com/TheMichaelB/migrator/internal/storage"
)

func newStore(t *testing.T) (*storage.LocalStore, string) {
	t.Helper()

	tmpDir := t.TempDir()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	store, err := storage.NewLocalStore(tmpDir, logger)
	require.NoError(t, err)
	return store, store.BaseDir()
}

func writeFile(t *testing.T, store *storage.LocalStore, path, content string) {
	t.Helper()
	_, err := store.WriteStream(path, strings.NewReader(content), 0644)
	require.NoError(t, err)
}

func readFile(t *testing.T, store *storage.LocalStore, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(store.BaseDir(), filepath.FromSlash(path)))
	require.NoError(t, err)
	return string(data)
}

func TestAtomicWrites(t *testing.T) {
	store, _ := newStore(t)

	t.Run("concurrent writes different files", func(t *testing.T) {
		var wg sync.WaitGroup
		errors := make(chan error, 10)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()

				path := fmt.Sprintf("etc/concurrent-%d.txt", n)
				data := fmt.Sprintf("content-%d", n)

				if _, err := store.WriteStream(path, strings.NewReader(data), 0644); err != nil {
					errors <- err
				}
			}(i)
		}

		wg.Wait()
		close(errors)

		for err := range errors {
			t.Errorf("Write error: %v", err)
		}

		for i := 0; i < 10; i++ {
			assert.Equal(t, fmt.Sprintf("content-%d", i), readFile(t, store, fmt.Sprintf("etc/concurrent-%d.txt", i)))
		}
	})

	t.Run("stream write returns checksum", func(t *testing.T) {
		sum, err := store.WriteStream("etc/hello.txt", strings.NewReader("hello"), 0644)
		require.NoError(t, err)

		want, err := paths.ChecksumReader(strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, want, sum)
	})

	t.Run("stream write applies mode", func(t *testing.T) {
		_, err := store.WriteStream("etc/readonly.txt", strings.NewReader("ro"), 0400)
		require.NoError(t, err)

		info, err := store.Stat("etc/readonly.txt")
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0400), info.Mode.Perm())

		// Replacing a read only file works, the rename does not need write
		// permission on the file itself.
		_, err = store.WriteStream("etc/readonly.txt", strings.NewReader("rw"), 0644)
		require.NoError(t, err)
		assert.Equal(t, "rw", readFile(t, store, "etc/readonly.txt"))
	})

	t.Run("stream write with size limit", func(t *testing.T) {
		_, err := store.WriteStream("small.txt", strings.NewReader(strings.Repeat("a", 1024)), 0644)
		assert.NoError(t, err)

		store.SetMaxFileSize(1024) // 1KB limit
		defer store.SetMaxFileSize(1024 * 1024)

		_, err = store.WriteStream("large.txt", strings.NewReader(strings.Repeat("b", 2048)), 0644)
		assert.ErrorIs(t, err, storage.ErrFileTooLarge)

		exists, _ := store.Exists("large.txt")
		assert.False(t, exists)
	})

	t.Run("write failure cleanup", func(t *testing.T) {
		require.NoError(t, store.EnsureDir("blocker"))

		_, err := store.WriteStream("blocker", strings.NewReader("data"), 0644)
		assert.Error(t, err)

		entries, err := os.ReadDir(store.BaseDir())
		require.NoError(t, err)

		for _, entry := range entries {
			assert.False(t, strings.HasPrefix(entry.Name(), "."),
				"Found temp file: %s", entry.Name())
		}
	})
}

func TestDirectoryOperations(t *testing.T) {
	store, base := newStore(t)

	t.Run("create nested directories", func(t *testing.T) {
		require.NoError(t, store.EnsureDir("a/b/c/d/e"))

		for _, dir := range []string{"a", "a/b", "a/b/c", "a/b/c/d", "a/b/c/d/e"} {
			info, err := store.Stat(dir)
			require.NoError(t, err)
			assert.True(t, info.IsDir)
		}
	})

	t.Run("list files recursively", func(t *testing.T) {
		writeFile(t, store, "etc/certs/b.pem", "b")
		writeFile(t, store, "etc/certs/a.pem", "a")
		writeFile(t, store, "etc/certs/sub/c.pem", "c")

		files, err := store.ListFiles("etc/certs")
		require.NoError(t, err)
		assert.Equal(t, []string{"etc/certs/a.pem", "etc/certs/b.pem", "etc/certs/sub/c.pem"}, files)

		files, err = store.ListFiles("etc/missing")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("clean directory keeps the directory", func(t *testing.T) {
		require.NoError(t, store.CleanDir("etc/certs"))

		assert.DirExists(t, filepath.Join(base, "etc", "certs"))
		files, err := store.ListFiles("etc/certs")
		require.NoError(t, err)
		assert.Empty(t, files)

		assert.NoError(t, store.CleanDir("etc/missing"))
	})

	t.Run("delete tolerates missing files", func(t *testing.T) {
		writeFile(t, store, "etc/gone.txt", "x")
		require.NoError(t, store.Delete("etc/gone.txt"))
		require.NoError(t, store.Delete("etc/gone.txt"))

		exists, err := store.Exists("etc/gone.txt")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.DirExists(t, filepath.Join(base, "etc"))
	})
}

func TestStreamOperations(t *testing.T) {
	store, base := newStore(t)

	t.Run("write and read stream", func(t *testing.T) {
		content := strings.Repeat("Hello World! ", 1000)

		_, err := store.WriteStream("stream-test.txt", strings.NewReader(content), 0644)
		require.NoError(t, err)

		assert.Equal(t, content, readFile(t, store, "stream-test.txt"))

		info, err := store.Stat("stream-test.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), info.Size)
	})

	t.Run("absolute path inside home", func(t *testing.T) {
		_, err := store.WriteStream(filepath.Join(base, "abs.txt"), strings.NewReader("abs"), 0644)
		require.NoError(t, err)

		assert.Equal(t, "abs", readFile(t, store, "abs.txt"))
	})

	t.Run("set modification time", func(t *testing.T) {
		modTime := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, store.SetModTime("stream-test.txt", modTime))

		info, err := store.Stat("stream-test.txt")
		require.NoError(t, err)
		assert.True(t, info.ModTime.Equal(modTime))
	})

	t.Run("write stream error handling", func(t *testing.T) {
		reader := &failingReader{failAt: 100}

		_, err := store.WriteStream("fail-test.txt", reader, 0644)
		assert.Error(t, err)

		exists, _ := store.Exists("fail-test.txt")
		assert.False(t, exists)
	})
}

// failingReader simulates IO errors during stream writing
type failingReader struct {
	read   int
	failAt int
}

func (r *failingReader) Read(p []byte) (n int, err error) {
	if r.read >= r.failAt {
		return 0, fmt.Errorf("simulated read error")
	}

	toRead := len(p)
	if r.read+toRead > r.failAt {
		toRead = r.failAt - r.read
	}

	for i := 0; i < toRead; i++ {
		p[i] = 'x'
	}

	r.read += toRead
	return toRead, nil
}
