package migration

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/paths"
	"github.com/TheMichaelB/migrator/internal/props"
	"github.com/TheMichaelB/migrator/internal/report"
)

type javaPropKey struct {
	file string
	name string
}

// ExportContext is the namespace a single migratable exports into. The
// system context has an empty id and no migratable.
type ExportContext struct {
	id         string
	migratable Migratable
	home       *paths.Home
	report     *report.Report
	writer     *archive.Writer
	props      props.Source
	logger     *events.Logger

	entries   map[string]*ExportEntry
	sysProps  map[string]*ExportPropertyEntry
	javaProps map[javaPropKey]*ExportPropertyEntry

	externals   []models.ExternalRecord
	folders     []models.FolderRecord
	sysRecords  []models.SystemPropertyRecord
	javaRecords []models.JavaPropertyRecord
}

func newExportContext(env Environment, rep *report.Report, w *archive.Writer, m Migratable) *ExportContext {
	id := ""
	if m != nil {
		id = m.ID()
	}
	return &ExportContext{
		id:         id,
		migratable: m,
		home:       env.Home,
		report:     rep,
		writer:     w,
		props:      env.propsSource(),
		logger:     env.logger().WithField("migratable", id),
		entries:    make(map[string]*ExportEntry),
		sysProps:   make(map[string]*ExportPropertyEntry),
		javaProps:  make(map[javaPropKey]*ExportPropertyEntry),
	}
}

// ID returns the migratable id, empty for the system context.
func (c *ExportContext) ID() string {
	return c.id
}

// Report returns the report of the running export.
func (c *ExportContext) Report() *report.Report {
	return c.report
}

// Home returns the installation home.
func (c *ExportContext) Home() *paths.Home {
	return c.home
}

// Logger returns a logger scoped to this context.
func (c *ExportContext) Logger() *events.Logger {
	return c.logger
}

// SystemProperty returns the live value of system property name.
func (c *ExportContext) SystemProperty(name string) (string, bool) {
	return c.props.Lookup(name)
}

// Entry returns the entry for a home relative or home absolute path. The same
// path always yields the same entry. Paths outside home are not migratable.
func (c *ExportContext) Entry(path string) (*ExportEntry, error) {
	abs := c.home.Resolve(path)
	if !c.home.IsUnderHome(abs) {
		return nil, newEntryError(models.ErrCodeExport, c.id, paths.ToSlash(path), models.ErrNotMigratable, "outside of home")
	}
	return c.entry(paths.ToSlash(c.home.Relativize(abs)), false), nil
}

// SystemPropertyReferencedEntry returns the entry referenced by the file path
// held in system property name. Undefined, blank or rejected values record an
// error and yield false.
func (c *ExportContext) SystemPropertyReferencedEntry(name string, validator func(value string) bool) (*ExportPropertyEntry, bool) {
	if pe, ok := c.sysProps[name]; ok {
		return pe, true
	}

	value, ok := c.props.Lookup(name)
	if !c.validProperty(name, "system property", value, ok, validator) {
		return nil, false
	}

	ref := c.reference(value)
	pe := &ExportPropertyEntry{ExportEntry: ref, kind: KindSystemProperty, property: name}
	c.sysProps[name] = pe
	c.sysRecords = append(c.sysRecords, models.SystemPropertyRecord{
		Property:  name,
		Reference: ref.Path(),
	})
	return pe, true
}

// JavaPropertyReferencedEntry returns the entry referenced by the file path
// held in property name of the properties file at propsPath.
func (c *ExportContext) JavaPropertyReferencedEntry(propsPath, name string, validator func(value string) bool) (*ExportPropertyEntry, bool) {
	file := paths.ToSlash(c.home.Relativize(c.home.Resolve(propsPath)))
	key := javaPropKey{file: file, name: name}
	if pe, ok := c.javaProps[key]; ok {
		return pe, true
	}

	value, ok, err := props.ReadProperty(c.home.Resolve(file), name)
	if err != nil {
		c.report.RecordError(newEntryError(models.ErrCodeProperty, c.id, file, err,
			"java property [%s] could not be read", name))
		return nil, false
	}
	if !c.validProperty(name, fmt.Sprintf("java property from [%s]", file), value, ok, validator) {
		return nil, false
	}

	ref := c.reference(value)
	pe := &ExportPropertyEntry{ExportEntry: ref, kind: KindJavaProperty, property: name, propertiesPath: file}
	c.javaProps[key] = pe
	c.javaRecords = append(c.javaRecords, models.JavaPropertyRecord{
		Property:  name,
		Reference: ref.Path(),
		Name:      file,
	})
	return pe, true
}

// Entries lazily yields the files below dir, recursively, that match filter.
// A missing dir or one that is not a directory records an error and yields
// nothing.
func (c *ExportContext) Entries(dir string, filter PathFilter) iter.Seq[*ExportEntry] {
	return func(yield func(*ExportEntry) bool) {
		root, err := c.Entry(dir)
		if err != nil {
			c.report.RecordError(err)
			return
		}

		abs := root.AbsolutePath()
		info, err := os.Stat(abs)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			c.report.RecordError(newEntryError(models.ErrCodeExport, c.id, root.Path(), nil, "directory does not exist"))
			return
		case err != nil:
			c.report.RecordError(newEntryError(models.ErrCodeExport, c.id, root.Path(), err, "directory could not be read"))
			return
		case !info.IsDir():
			c.report.RecordError(newEntryError(models.ErrCodeExport, c.id, root.Path(), nil, "is not a directory"))
			return
		}

		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				c.report.RecordError(newEntryError(models.ErrCodeExport, c.id, paths.ToSlash(c.home.Relativize(p)), err, "could not be read"))
				return nil
			}
			if d.IsDir() {
				return nil
			}

			entry := c.entry(paths.ToSlash(c.home.Relativize(p)), false)
			if filter != nil && !filter(entry.Path()) {
				return nil
			}
			if !yield(entry) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			c.report.RecordError(newEntryError(models.ErrCodeExport, c.id, root.Path(), err, "directory could not be read"))
		}
	}
}

func (c *ExportContext) validProperty(name, what, value string, defined bool, validator func(string) bool) bool {
	var reason string
	switch {
	case !defined:
		reason = "is not defined"
	case strings.TrimSpace(value) == "":
		reason = "is empty"
	case validator != nil && !validator(value):
		reason = "is invalid"
	default:
		return true
	}

	c.report.RecordError(newEntryError(models.ErrCodeProperty, c.id, "", nil, "%s [%s] %s", what, name, reason))
	return false
}

// reference returns the entry for a property value, an external entry when the
// value points outside home.
func (c *ExportContext) reference(value string) *ExportEntry {
	abs := c.home.Resolve(strings.TrimSpace(value))
	if c.home.IsUnderHome(abs) {
		return c.entry(paths.ToSlash(c.home.Relativize(abs)), false)
	}
	return c.entry(paths.ToSlash(abs), true)
}

func (c *ExportContext) entry(path string, external bool) *ExportEntry {
	if e, ok := c.entries[path]; ok {
		return e
	}
	e := &ExportEntry{
		baseEntry: baseEntry{home: c.home, id: c.id, path: path},
		ctx:       c,
		external:  external,
	}
	c.entries[path] = e
	return e
}

// openEntry opens a new archive entry for e, closing the previously opened
// one. Write failures are recorded in the report.
func (c *ExportContext) openEntry(e *ExportEntry, mode fs.FileMode, modTime time.Time) (io.Writer, error) {
	w, err := c.writer.Create(e.Name(), mode, modTime)
	if err != nil {
		merr := newEntryError(models.ErrCodeExport, c.id, e.Path(), err, "failed to create archive entry")
		c.report.RecordError(merr)
		return nil, merr
	}
	return &recordingWriter{ctx: c, entry: e, w: w}, nil
}

func (c *ExportContext) addExternal(rec models.ExternalRecord) {
	c.externals = append(c.externals, rec)
}

func (c *ExportContext) addFolder(rec models.FolderRecord) {
	c.folders = append(c.folders, rec)
}

// doExport runs the migratable and returns its metadata block. The system
// context has no block.
func (c *ExportContext) doExport() (*models.MigratableMetadata, error) {
	if c.migratable == nil {
		return nil, nil
	}

	c.logger.Debug("Exporting migratable")

	if err := c.migratable.DoExport(c); err != nil {
		return nil, err
	}

	return &models.MigratableMetadata{
		Version:          c.migratable.Version(),
		Title:            c.migratable.Title(),
		Description:      c.migratable.Description(),
		Organization:     c.migratable.Organization(),
		Externals:        c.externals,
		Folders:          c.folders,
		SystemProperties: c.sysRecords,
		JavaProperties:   c.javaRecords,
	}, nil
}

// recordingWriter wraps archive entry write errors into migration errors and
// records them.
type recordingWriter struct {
	ctx   *ExportContext
	entry *ExportEntry
	w     io.Writer
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil {
		merr := newEntryError(models.ErrCodeExport, r.ctx.id, r.entry.Path(), err, "failed to write archive entry")
		r.ctx.report.RecordError(merr)
		return n, merr
	}
	return n, nil
}

func newEntryError(code, id, path string, err error, format string, args ...any) *models.MigrationError {
	return models.WrapError(err, code, format, args...).WithMigratable(id).WithPath(path)
}

func isRecorded(err error) bool {
	var merr *models.MigrationError
	return errors.As(err, &merr)
}
