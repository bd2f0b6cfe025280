package migration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/crypto"
	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/paths"
	"github.com/TheMichaelB/migrator/internal/props"
	"github.com/TheMichaelB/migrator/internal/report"
	"github.com/TheMichaelB/migrator/internal/storage"
)

// Environment is the installation a migration runs against.
type Environment struct {
	Home *paths.Home

	// Props resolves system properties; empty when nil.
	Props props.Source

	// Store writes restored files; a LocalStore rooted at Home when nil.
	Store storage.BlobStore

	Logger *events.Logger
}

func (e Environment) propsSource() props.Source {
	if e.Props == nil {
		return props.Map{}
	}
	return e.Props
}

func (e Environment) logger() *events.Logger {
	if e.Logger == nil {
		return events.Nop()
	}
	return e.Logger
}

func (e Environment) blobStore() (storage.BlobStore, error) {
	if e.Store != nil {
		return e.Store, nil
	}
	store, err := storage.NewLocalStore(e.Home.Dir(), e.logger())
	if err != nil {
		return nil, models.WrapError(err, models.ErrCodeStorage, "open home").WithPath(e.Home.Dir())
	}
	return store, nil
}

// uniqueMigratables rejects empty, duplicate and path separated ids. An id
// names the first segment of its archive entries.
func uniqueMigratables(migratables []Migratable) error {
	seen := make(map[string]bool, len(migratables))
	for _, m := range migratables {
		id := m.ID()
		if id == "" {
			return models.NewError(models.ErrCodeConfig, "migratable with empty id")
		}
		if strings.ContainsAny(id, `/\`) {
			return models.NewError(models.ErrCodeConfig, "migratable id contains a path separator").WithMigratable(id)
		}
		if seen[id] {
			return models.NewError(models.ErrCodeConfig, "duplicate migratable").WithMigratable(id)
		}
		seen[id] = true
	}
	return nil
}

// ExportManager exports migratables into an archive.
type ExportManager struct {
	env            Environment
	productVersion string
	migratables    []Migratable
	now            func() time.Time
}

// NewExportManager creates a manager exporting migratables in the given
// order.
func NewExportManager(env Environment, productVersion string, migratables ...Migratable) *ExportManager {
	return &ExportManager{
		env:            env,
		productVersion: productVersion,
		migratables:    migratables,
		now:            time.Now,
	}
}

// Export writes the archive at path and returns the ended report. The first
// migratable returning an error aborts the export and leaves a partial archive
// behind.
func (m *ExportManager) Export(path string, opts archive.Options) *report.Report {
	logger := m.env.logger().WithFields(map[string]interface{}{
		"archive":   path,
		"encrypted": opts.Encrypted,
	})
	rep := report.New(models.OperationExport, logger)
	defer rep.End()

	if err := uniqueMigratables(m.migratables); err != nil {
		rep.RecordError(err)
		return rep
	}

	w, err := archive.Create(path, opts)
	if err != nil {
		rep.RecordError(models.WrapError(err, models.ErrCodeStorage, "create archive").WithPath(path))
		return rep
	}
	defer w.Close()

	logger.Info("Starting export")

	contexts := []*ExportContext{newExportContext(m.env, rep, w, nil)}
	for _, mig := range m.migratables {
		contexts = append(contexts, newExportContext(m.env, rep, w, mig))
	}

	doc := models.ArchiveMetadata{
		Version:        models.MetadataFormatVersion,
		ProductVersion: m.productVersion,
		Date:           m.now().UTC(),
		Migratables:    models.MigratableBlocks{},
	}

	for _, ctx := range contexts {
		meta, err := ctx.doExport()
		if err != nil {
			if !isRecorded(err) {
				err = models.WrapError(err, models.ErrCodeExport, "export failed").WithMigratable(ctx.ID())
			}
			rep.RecordError(err)
			logger.WithError(err).WithField("migratable", ctx.ID()).Error("Export aborted")
			return rep
		}
		if meta == nil {
			continue
		}

		raw, err := json.Marshal(meta)
		if err != nil {
			rep.RecordError(models.WrapError(err, models.ErrCodeMetadata, "encode metadata").WithMigratable(ctx.ID()))
			return rep
		}
		doc.Migratables = append(doc.Migratables, models.MigratableBlock{ID: ctx.ID(), Raw: raw})
	}

	if err := writeMetadata(w, &doc, m.now()); err != nil {
		rep.RecordError(err)
		return rep
	}

	if err := w.Close(); err != nil {
		rep.RecordError(models.WrapError(err, models.ErrCodeStorage, "close archive").WithPath(path))
		return rep
	}

	if opts.Encrypted {
		if err := crypto.WriteChecksumFile(path, opts.ChecksumFor(path)); err != nil {
			rep.RecordError(models.WrapError(err, models.ErrCodeIntegrity, "create checksum file").WithPath(path))
			return rep
		}
	}

	rep.RecordInfo(fmt.Sprintf("Exported %d migratable(s) to [%s]", len(m.migratables), path))
	return rep
}

func writeMetadata(w *archive.Writer, doc *models.ArchiveMetadata, modTime time.Time) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return models.WrapError(err, models.ErrCodeMetadata, "encode metadata")
	}

	out, err := w.Create(models.MetadataFilename, 0644, modTime)
	if err != nil {
		return models.WrapError(err, models.ErrCodeStorage, "create metadata entry")
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		return models.WrapError(err, models.ErrCodeStorage, "write metadata entry")
	}
	return nil
}
