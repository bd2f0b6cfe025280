// Package archive reads and writes migration archives: zip files whose entries
// are optionally encrypted, accompanied by a key file and a checksum file.
package archive

import (
	"fmt"

	"github.com/TheMichaelB/migrator/internal/crypto"
	"github.com/TheMichaelB/migrator/internal/models"
)

// Default sibling file suffixes.
const (
	DefaultKeySuffix      = ".key"
	DefaultChecksumSuffix = ".checksum"
	Extension             = ".dar"
)

// Options controls how an archive is opened or created.
type Options struct {
	// Encrypted archives carry encrypted entries plus key and checksum files.
	Encrypted bool

	// Explicit sibling paths; derived from the archive path when empty.
	KeyPath      string
	ChecksumPath string

	// Passphrase seals newly created key files and opens sealed ones.
	Passphrase string
}

// KeyFor returns the key file path used for the archive at path.
func (o Options) KeyFor(path string) string {
	if o.KeyPath != "" {
		return o.KeyPath
	}
	return path + DefaultKeySuffix
}

// ChecksumFor returns the checksum file path used for the archive at path.
func (o Options) ChecksumFor(path string) string {
	if o.ChecksumPath != "" {
		return o.ChecksumPath
	}
	return path + DefaultChecksumSuffix
}

// loadKey loads the archive key, generating it on first use.
func (o Options) loadKey(path string) ([]byte, error) {
	keyPath := o.KeyFor(path)
	key, err := crypto.LoadOrCreateKey(keyPath, o.Passphrase)
	if err != nil {
		return nil, models.WrapError(fmt.Errorf("%w: %w", models.ErrInvalidKey, err),
			models.ErrCodeKey, "load archive key").WithPath(keyPath)
	}
	return key, nil
}
