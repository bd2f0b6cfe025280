package storage

import (
	"io"
	"os"
	"time"
)

// BlobStore manages the files restored under the installation home. Paths
// are home relative slash paths, or absolute paths inside home.
type BlobStore interface {
	// WriteStream saves data from a reader and returns the checksum of
	// what was written.
	WriteStream(path string, reader io.Reader, mode os.FileMode) (string, error)

	// Delete removes a file.
	Delete(path string) error

	// Exists checks if a file exists.
	Exists(path string) (bool, error)

	// Stat returns file information without following symbolic links.
	Stat(path string) (FileInfo, error)

	// EnsureDir creates a directory if it doesn't exist.
	EnsureDir(path string) error

	// ListFiles returns the regular files below a directory, recursively.
	ListFiles(path string) ([]string, error)

	// CleanDir removes the contents of a directory.
	CleanDir(path string) error

	// Chmod changes file permissions.
	Chmod(path string, mode os.FileMode) error

	// SetModTime updates file modification time.
	SetModTime(path string, modTime time.Time) error
}

// FileInfo contains file metadata.
type FileInfo struct {
	Path      string
	Size      int64
	Mode      os.FileMode
	ModTime   time.Time
	IsDir     bool
	IsSymlink bool
}
