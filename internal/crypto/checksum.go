package crypto

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/TheMichaelB/migrator/internal/paths"
)

// WriteChecksumFile stores the checksum of the archive at archivePath into
// checksumPath. It fails when the archive does not exist.
func WriteChecksumFile(archivePath, checksumPath string) error {
	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	sum, err := paths.Checksum(archivePath)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(checksumPath, []byte(sum), 0644); err != nil {
		return fmt.Errorf("write checksum file: %w", err)
	}
	return nil
}

// ValidChecksum recomputes the archive checksum and compares it with the one
// stored in checksumPath.
func ValidChecksum(archivePath, checksumPath string) (bool, error) {
	stored, err := os.ReadFile(checksumPath)
	if err != nil {
		return false, fmt.Errorf("read checksum file: %w", err)
	}

	sum, err := paths.Checksum(archivePath)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(strings.TrimSpace(string(stored)), sum), nil
}
