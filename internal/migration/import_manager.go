package migration

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/report"
)

// ImportManager restores an archive onto the installed migratables.
type ImportManager struct {
	env            Environment
	productVersion string
	migratables    []Migratable
}

// NewImportManager creates a manager for the installed migratables of product
// version productVersion.
func NewImportManager(env Environment, productVersion string, migratables ...Migratable) *ImportManager {
	return &ImportManager{
		env:            env,
		productVersion: productVersion,
		migratables:    migratables,
	}
}

// Import restores the archive at path and returns the ended report. Structural
// problems abort before any migratable runs. Migratables are imported in
// archive order and the import stops at the first one that fails.
func (m *ImportManager) Import(path string, opts archive.Options) *report.Report {
	logger := m.env.logger().WithFields(map[string]interface{}{
		"archive":   path,
		"encrypted": opts.Encrypted,
	})
	rep := report.New(models.OperationImport, logger)
	defer rep.End()

	if err := uniqueMigratables(m.migratables); err != nil {
		rep.RecordError(err)
		return rep
	}

	store, err := m.env.blobStore()
	if err != nil {
		rep.RecordError(err)
		return rep
	}

	c, err := archive.Open(path, opts)
	if err != nil {
		rep.RecordError(err)
		return rep
	}
	defer c.Close()

	if c.Encrypted() {
		if err := c.VerifyChecksum(); err != nil {
			rep.RecordError(err)
			return rep
		}
	}

	doc, err := readMetadata(c, m.productVersion)
	if err != nil {
		rep.RecordError(err)
		return rep
	}

	logger.WithField("product_version", doc.ProductVersion).Info("Starting import")

	installed := make(map[string]Migratable, len(m.migratables))
	for _, mig := range m.migratables {
		installed[mig.ID()] = mig
	}

	ids := make(map[string]bool, len(doc.Migratables))
	for _, id := range doc.Migratables.IDs() {
		ids[id] = true
	}

	files := make(map[string][]*zip.File)
	for _, f := range c.Files() {
		if f.Name == models.MetadataFilename {
			continue
		}
		id, _ := SplitEntryName(f.Name, ids)
		files[id] = append(files[id], f)
	}

	contexts := []*ImportContext{newImportContext(m.env, store, rep, c, "", nil, files[""])}
	for _, block := range doc.Migratables {
		ctx := newImportContext(m.env, store, rep, c, block.ID, installed[block.ID], files[block.ID])
		if err := ctx.ProcessMetadata(block.Raw); err != nil {
			rep.RecordError(err)
			return rep
		}
		contexts = append(contexts, ctx)
	}
	for _, mig := range m.migratables {
		if !ids[mig.ID()] {
			contexts = append(contexts, newImportContext(m.env, store, rep, c, mig.ID(), mig, nil))
		}
	}

	imported := 0
	for _, ctx := range contexts {
		before := rep.ErrorCount()
		if err := ctx.doImport(); err != nil {
			if !isRecorded(err) {
				err = models.WrapError(err, models.ErrCodeImport, "import failed").WithMigratable(ctx.ID())
			}
			rep.RecordError(err)
			logger.WithError(err).WithField("migratable", ctx.ID()).Error("Import aborted")
			return rep
		}
		if rep.ErrorCount() > before {
			logger.WithField("migratable", ctx.ID()).Error("Import aborted after recorded errors")
			return rep
		}
		if ctx.ID() != "" {
			imported++
		}
	}

	rep.RecordInfo(fmt.Sprintf("Imported %d migratable(s) from [%s]", imported, path))
	return rep
}

// readMetadata reads and validates the metadata document.
func readMetadata(c *archive.Container, productVersion string) (*models.ArchiveMetadata, error) {
	rc, err := c.Open(models.MetadataFilename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.WrapError(models.ErrMissingMetadata, models.ErrCodeMetadata,
				"archive has no [%s]", models.MetadataFilename).WithPath(c.Path())
		}
		return nil, models.WrapError(err, models.ErrCodeMetadata, "open metadata").WithPath(c.Path())
	}
	defer rc.Close()

	// Read to EOF so encrypted content has its trailer verified.
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, models.WrapError(err, models.ErrCodeMetadata, "read metadata").WithPath(c.Path())
	}

	var doc models.ArchiveMetadata
	if err := json.Unmarshal(data, &doc); err != nil {
		if !errors.Is(err, models.ErrInvalidMetadata) {
			err = fmt.Errorf("%w: %w", models.ErrInvalidMetadata, err)
		}
		return nil, models.WrapError(err, models.ErrCodeMetadata, "read metadata").WithPath(c.Path())
	}

	if err := doc.Validate(productVersion); err != nil {
		code := models.ErrCodeMetadata
		if errors.Is(err, models.ErrUnsupportedVersion) {
			code = models.ErrCodeVersion
		}
		return nil, models.WrapError(err, code, "incompatible archive").WithPath(c.Path())
	}

	return &doc, nil
}
