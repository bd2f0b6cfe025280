package migration

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"io/fs"
	"iter"
	"slices"
	"strings"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/paths"
	"github.com/TheMichaelB/migrator/internal/props"
	"github.com/TheMichaelB/migrator/internal/report"
	"github.com/TheMichaelB/migrator/internal/storage"
)

// ImportContext is the namespace a single migratable imports from. It wraps
// either an installed migratable, the bare id of a migratable found in the
// archive but not installed, or nothing for the system context.
type ImportContext struct {
	id         string
	migratable Migratable
	home       *paths.Home
	report     *report.Report
	container  *archive.Container
	store      storage.BlobStore
	props      props.Source
	logger     *events.Logger

	metadata *models.MigratableMetadata

	entries   map[string]ImportEntry
	sysProps  map[string]*ImportPropertyEntry
	javaProps map[javaPropKey]*ImportPropertyEntry
}

func newImportContext(env Environment, store storage.BlobStore, rep *report.Report, c *archive.Container, id string, m Migratable, files []*zip.File) *ImportContext {
	ctx := &ImportContext{
		id:         id,
		migratable: m,
		home:       env.Home,
		report:     rep,
		container:  c,
		store:      store,
		props:      env.propsSource(),
		logger:     env.logger().WithField("migratable", id),
		entries:    make(map[string]ImportEntry),
		sysProps:   make(map[string]*ImportPropertyEntry),
		javaProps:  make(map[javaPropKey]*ImportPropertyEntry),
	}

	for _, f := range files {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		_, path := SplitEntryName(f.Name, map[string]bool{id: id != ""})
		ctx.entries[path] = &ImportFileEntry{
			baseEntry: baseEntry{home: env.Home, id: id, path: path},
			ctx:       ctx,
			file:      f,
		}
	}

	return ctx
}

// ID returns the migratable id, empty for the system context.
func (c *ImportContext) ID() string {
	return c.id
}

// Report returns the report of the running import.
func (c *ImportContext) Report() *report.Report {
	return c.report
}

// Home returns the installation home.
func (c *ImportContext) Home() *paths.Home {
	return c.home
}

// Logger returns a logger scoped to this context.
func (c *ImportContext) Logger() *events.Logger {
	return c.logger
}

// Metadata returns the metadata block recorded for this context, nil when the
// archive has none.
func (c *ImportContext) Metadata() *models.MigratableMetadata {
	return c.metadata
}

// SystemProperty returns the live value of system property name.
func (c *ImportContext) SystemProperty(name string) (string, bool) {
	return c.props.Lookup(name)
}

// ProcessMetadata decodes the context's metadata block and rebuilds its
// entries. A malformed block is fatal.
func (c *ImportContext) ProcessMetadata(raw json.RawMessage) error {
	meta, err := models.ParseMigratableMetadata(raw)
	if err != nil {
		return models.WrapError(err, models.ErrCodeMetadata, "invalid metadata block").WithMigratable(c.id)
	}
	c.metadata = meta

	for _, rec := range meta.Externals {
		path := paths.ToSlash(rec.Name)
		c.entries[path] = &ImportExternalEntry{
			baseEntry: baseEntry{home: c.home, id: c.id, path: path},
			ctx:       c,
			checksum:  rec.Checksum,
			softlink:  rec.Softlink,
		}
	}

	for _, rec := range meta.Folders {
		path := paths.ToSlash(rec.Folder)
		dir := &ImportDirectoryEntry{
			baseEntry:    baseEntry{home: c.home, id: c.id, path: path},
			ctx:          c,
			filtered:     rec.Filtered,
			lastModified: rec.LastModified,
		}
		for _, member := range rec.Files {
			dir.members = append(dir.members, c.referenced(member))
		}
		SortEntries(dir.members)
		c.entries[path] = dir
	}

	for _, rec := range meta.SystemProperties {
		c.sysProps[rec.Property] = &ImportPropertyEntry{
			ImportEntry: c.referenced(rec.Reference),
			ctx:         c,
			kind:        KindSystemProperty,
			property:    rec.Property,
		}
	}

	for _, rec := range meta.JavaProperties {
		file := paths.ToSlash(rec.Name)
		c.javaProps[javaPropKey{file: file, name: rec.Property}] = &ImportPropertyEntry{
			ImportEntry:    c.referenced(rec.Reference),
			ctx:            c,
			kind:           KindJavaProperty,
			property:       rec.Property,
			propertiesPath: file,
		}
	}

	return nil
}

// referenced returns the entry recorded for path, creating a file entry
// without archived content when nothing was.
func (c *ImportContext) referenced(path string) ImportEntry {
	path = paths.ToSlash(path)
	if e, ok := c.entries[path]; ok {
		return e
	}
	e := &ImportFileEntry{
		baseEntry: baseEntry{home: c.home, id: c.id, path: path},
		ctx:       c,
	}
	c.entries[path] = e
	return e
}

// key maps a home relative or absolute path onto the entries key.
func (c *ImportContext) key(path string) string {
	abs := c.home.Resolve(path)
	if c.home.IsUnderHome(abs) {
		return paths.ToSlash(c.home.Relativize(abs))
	}
	return paths.ToSlash(abs)
}

// Entry returns the entry recorded for path, or an EmptyEntry.
func (c *ImportContext) Entry(path string) ImportEntry {
	if e, ok := c.OptionalEntry(path); ok {
		return e
	}
	return &EmptyEntry{baseEntry: baseEntry{home: c.home, id: c.id, path: c.key(path)}, report: c.report}
}

// OptionalEntry returns the entry recorded for path.
func (c *ImportContext) OptionalEntry(path string) (ImportEntry, bool) {
	e, ok := c.entries[c.key(path)]
	return e, ok
}

// Entries yields, sorted by path, the recorded file and external entries below
// dir that match filter.
func (c *ImportContext) Entries(dir string, filter PathFilter) iter.Seq[ImportEntry] {
	prefix := strings.TrimSuffix(c.key(dir), "/") + "/"
	if prefix == "./" {
		prefix = ""
	}

	var matched []ImportEntry
	for path, e := range c.entries {
		if _, isDir := e.(*ImportDirectoryEntry); isDir {
			continue
		}
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if filter != nil && !filter(path) {
			continue
		}
		matched = append(matched, e)
	}
	SortEntries(matched)

	return slices.Values(matched)
}

// SystemPropertyReferencedEntry returns the entry recorded for system
// property name.
func (c *ImportContext) SystemPropertyReferencedEntry(name string) (*ImportPropertyEntry, bool) {
	e, ok := c.sysProps[name]
	return e, ok
}

// JavaPropertyReferencedEntry returns the entry recorded for property name of
// the properties file at propsPath.
func (c *ImportContext) JavaPropertyReferencedEntry(propsPath, name string) (*ImportPropertyEntry, bool) {
	e, ok := c.javaProps[javaPropKey{file: c.key(propsPath), name: name}]
	return e, ok
}

// CleanDirectory removes the content of the directory at path. A missing
// directory is clean. It returns false when the content could not be removed.
func (c *ImportContext) CleanDirectory(path string) bool {
	key := c.key(path)
	exists, err := c.store.Exists(key)
	if err == nil {
		if !exists {
			return true
		}
		err = c.store.CleanDir(key)
	}
	if err == nil {
		return true
	}

	if errors.Is(err, fs.ErrPermission) {
		c.logger.WithError(err).WithField("path", path).Warn("Directory could not be cleaned")
		return false
	}

	c.report.RecordError(newEntryError(models.ErrCodeImport, c.id, key, err, "directory could not be cleaned"))
	return false
}

// doImport runs the import callback matching the recorded and installed
// versions.
func (c *ImportContext) doImport() error {
	switch {
	case c.id == "":
		return nil

	case c.migratable == nil:
		return models.WrapError(models.ErrNotInstalled, models.ErrCodeNotInstalled,
			"migratable exported with version [%s]", c.metadata.Version).WithMigratable(c.id)

	case c.metadata == nil:
		if mi, ok := c.migratable.(MissingImporter); ok {
			c.logger.Debug("Importing migratable missing from archive")
			return mi.DoMissingImport(c)
		}
		return models.WrapError(models.ErrNotExported, models.ErrCodeImport,
			"migratable is installed").WithMigratable(c.id)

	case c.metadata.Version == c.migratable.Version():
		c.logger.Debug("Importing migratable")
		return c.migratable.DoImport(c)

	default:
		c.logger.WithFields(map[string]interface{}{
			"exported_version":  c.metadata.Version,
			"installed_version": c.migratable.Version(),
		}).Info("Importing incompatible migratable")
		return c.migratable.DoIncompatibleImport(c, c.metadata.Version)
	}
}
