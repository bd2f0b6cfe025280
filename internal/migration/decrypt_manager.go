package migration

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/report"
)

// DecryptManager copies an encrypted archive into a plain zip.
type DecryptManager struct {
	logger *events.Logger
}

// NewDecryptManager creates a decrypt manager.
func NewDecryptManager(logger *events.Logger) *DecryptManager {
	if logger == nil {
		logger = events.Nop()
	}
	return &DecryptManager{logger: logger}
}

// Decrypt writes the decrypted content of the archive at path to dest. A
// failing entry is recorded and skipped; the others are still copied.
func (m *DecryptManager) Decrypt(path string, opts archive.Options, dest string) *report.Report {
	logger := m.logger.WithFields(map[string]interface{}{
		"archive":     path,
		"destination": dest,
	})
	rep := report.New(models.OperationDecrypt, logger)
	defer rep.End()

	opts.Encrypted = true
	c, err := archive.Open(path, opts)
	if err != nil {
		rep.RecordError(err)
		return rep
	}
	defer c.Close()

	if err := c.VerifyChecksum(); err != nil {
		rep.RecordError(err)
		return rep
	}

	w, err := archive.Create(dest, archive.Options{})
	if err != nil {
		rep.RecordError(models.WrapError(err, models.ErrCodeStorage, "create archive").WithPath(dest))
		return rep
	}
	defer w.Close()

	copied := 0
	for _, f := range c.Files() {
		if err := copyEntry(c, w, f); err != nil {
			rep.RecordError(models.WrapError(err, models.ErrCodeDecrypt, "failed to decrypt entry").WithPath(f.Name))
			continue
		}
		copied++
	}

	if err := w.Close(); err != nil {
		rep.RecordError(models.WrapError(err, models.ErrCodeStorage, "close archive").WithPath(dest))
		return rep
	}

	rep.RecordInfo(fmt.Sprintf("Decrypted %d of %d entries into [%s]", copied, len(c.Files()), dest))
	return rep
}

// copyEntry decrypts f fully into a temporary file before adding it to w, so a
// corrupt entry never leaves partial content behind.
func copyEntry(c *archive.Container, w *archive.Writer, f *zip.File) error {
	if strings.HasSuffix(f.Name, "/") {
		return w.CreateDir(f.Name, f.Modified)
	}

	rc, err := c.OpenFile(f)
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "migrator-decrypt-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, rc); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind temp file: %w", err)
	}

	out, err := w.Create(f.Name, f.Mode().Perm(), f.Modified)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, tmp); err != nil {
		return err
	}
	return w.CloseEntry()
}
