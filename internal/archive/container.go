package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/TheMichaelB/migrator/internal/crypto"
	"github.com/TheMichaelB/migrator/internal/models"
)

// Container gives read access to an archive. Entries of encrypted archives are
// decrypted as they are read.
type Container struct {
	path         string
	keyPath      string
	checksumPath string
	key          []byte

	file  *os.File
	zr    *zip.Reader
	index map[string]*zip.File
}

// Open opens the archive at path. Encrypted archives require their checksum
// file; the key file is generated when absent, in which case reading entries
// fails later on.
func Open(path string, opts Options) (*Container, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, models.WrapError(err, models.ErrCodeStorage, "archive not found").WithPath(path)
	}

	c := &Container{
		path:         path,
		keyPath:      opts.KeyFor(path),
		checksumPath: opts.ChecksumFor(path),
	}

	if opts.Encrypted {
		if _, err := os.Stat(c.checksumPath); err != nil {
			return nil, models.WrapError(err, models.ErrCodeIntegrity, "checksum file not found").WithPath(c.checksumPath)
		}

		key, err := opts.loadKey(path)
		if err != nil {
			return nil, err
		}
		c.key = key
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, models.WrapError(err, models.ErrCodeStorage, "open archive").WithPath(path)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, models.WrapError(err, models.ErrCodeStorage, "stat archive").WithPath(path)
	}

	zr, err := zip.NewReader(file, stat.Size())
	if err != nil {
		file.Close()
		return nil, models.WrapError(err, models.ErrCodeStorage, "read archive").WithPath(path)
	}

	c.file = file
	c.zr = zr
	c.index = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		c.index[f.Name] = f
	}

	return c, nil
}

// Path returns the archive path.
func (c *Container) Path() string {
	return c.path
}

// KeyPath returns the key file path.
func (c *Container) KeyPath() string {
	return c.keyPath
}

// ChecksumPath returns the checksum file path.
func (c *Container) ChecksumPath() string {
	return c.checksumPath
}

// Encrypted reports whether entries are decrypted on read.
func (c *Container) Encrypted() bool {
	return c.key != nil
}

// Files returns the archive entries in archive order.
func (c *Container) Files() []*zip.File {
	files := make([]*zip.File, len(c.zr.File))
	copy(files, c.zr.File)
	return files
}

// Lookup returns the entry named name.
func (c *Container) Lookup(name string) (*zip.File, bool) {
	f, ok := c.index[name]
	return f, ok
}

// Open opens the content of the entry named name.
func (c *Container) Open(name string) (io.ReadCloser, error) {
	f, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", name, fs.ErrNotExist)
	}
	return c.OpenFile(f)
}

// OpenFile opens the content of f. Directory entries have no content.
func (c *Container) OpenFile(f *zip.File) (io.ReadCloser, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}

	if c.key == nil || f.FileInfo().IsDir() {
		return rc, nil
	}

	dr, err := crypto.NewDecryptReader(rc, c.key)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	return &entryReader{Reader: dr, closer: rc}, nil
}

// IsValidChecksum recomputes the archive checksum and compares it with the
// stored one.
func (c *Container) IsValidChecksum() (bool, error) {
	return crypto.ValidChecksum(c.path, c.checksumPath)
}

// CreateChecksumFile stores the current archive checksum.
func (c *Container) CreateChecksumFile() error {
	return crypto.WriteChecksumFile(c.path, c.checksumPath)
}

// VerifyChecksum fails with models.ErrTampered when the stored checksum does
// not match the archive.
func (c *Container) VerifyChecksum() error {
	ok, err := c.IsValidChecksum()
	if err != nil {
		return models.WrapError(err, models.ErrCodeIntegrity, "validate checksum").WithPath(c.path)
	}
	if !ok {
		return models.WrapError(models.ErrTampered, models.ErrCodeIntegrity, "validate checksum").WithPath(c.path)
	}
	return nil
}

// Close releases the archive file.
func (c *Container) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

type entryReader struct {
	io.Reader
	closer io.Closer
}

func (r *entryReader) Close() error {
	return r.closer.Close()
}
