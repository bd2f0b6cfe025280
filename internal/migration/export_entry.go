package migration

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/paths"
)

// ExportEntry is a file or directory being exported. Symbolic links and
// files outside home are not copied into the archive: they are recorded as
// externals whose checksum is verified on import.
type ExportEntry struct {
	baseEntry
	ctx      *ExportContext
	external bool
	dir      bool

	stored bool
	result bool
}

// Kind returns the entry variant, known for certain once stored.
func (e *ExportEntry) Kind() EntryKind {
	switch {
	case e.external:
		return KindExternal
	case e.dir:
		return KindDirectory
	default:
		return KindFile
	}
}

// Store copies the file, or every file of the directory, into the archive. A
// missing path is an error when required and silently skipped otherwise.
// Storing twice has no further effect.
func (e *ExportEntry) Store(required bool) bool {
	return e.store(required, nil)
}

// StoreFiltered stores a directory keeping only the files accepted by
// filter. Filtered directories are not resynchronized on import.
func (e *ExportEntry) StoreFiltered(required bool, filter PathFilter) bool {
	if filter == nil {
		filter = func(string) bool { return true }
	}
	return e.store(required, filter)
}

// StoreWith lets fn produce the content of the entry.
func (e *ExportEntry) StoreWith(fn func(w io.Writer) error) bool {
	if e.stored {
		return e.result
	}
	e.stored = true

	w, err := e.Writer()
	if err != nil {
		return false
	}

	if err := fn(w); err != nil {
		if !isRecorded(err) {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeExport, e.id, e.path, err, "failed to export"))
		}
		return false
	}

	e.result = true
	return true
}

// Writer opens the archive entry and returns its raw output stream. It stays
// valid until another entry is opened.
func (e *ExportEntry) Writer() (io.Writer, error) {
	e.stored = true
	e.result = true

	w, err := e.ctx.openEntry(e, 0644, time.Now())
	if err != nil {
		e.result = false
		return nil, err
	}
	return w, nil
}

func (e *ExportEntry) store(required bool, filter PathFilter) bool {
	if e.stored {
		return e.result
	}
	e.stored = true
	e.result = e.doStore(required, filter)
	return e.result
}

func (e *ExportEntry) doStore(required bool, filter PathFilter) bool {
	info, err := os.Lstat(e.AbsolutePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if required {
				e.ctx.report.RecordError(newEntryError(models.ErrCodeExport, e.id, e.path, nil, "does not exist"))
				return false
			}
			return true
		}
		e.ctx.report.RecordError(newEntryError(models.ErrCodeExport, e.id, e.path, err, "could not be read"))
		return false
	}

	switch {
	case e.external || info.Mode()&fs.ModeSymlink != 0:
		return e.storeExternal(info)
	case info.IsDir():
		return e.storeDirectory(info, filter)
	case !info.Mode().IsRegular():
		e.ctx.report.RecordError(newEntryError(models.ErrCodeExport, e.id, e.path, nil, "is not a regular file"))
		return false
	default:
		return e.storeFile(info)
	}
}

func (e *ExportEntry) storeFile(info fs.FileInfo) bool {
	file, err := os.Open(e.AbsolutePath())
	if err != nil {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeExport, e.id, e.path, err, "could not be read"))
		return false
	}
	defer file.Close()

	w, err := e.ctx.openEntry(e, info.Mode().Perm(), info.ModTime())
	if err != nil {
		return false
	}

	if _, err := io.Copy(w, file); err != nil {
		if !isRecorded(err) {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeExport, e.id, e.path, err, "could not be read"))
		}
		return false
	}

	return true
}

func (e *ExportEntry) storeExternal(info fs.FileInfo) bool {
	e.external = true
	softlink := info.Mode()&fs.ModeSymlink != 0

	sum, err := paths.Checksum(e.AbsolutePath())
	if err != nil {
		e.ctx.report.RecordWarning(&models.Warning{
			MigratableID: e.id,
			Path:         e.path,
			Message:      "checksum could not be calculated",
		})
	}

	e.ctx.addExternal(models.ExternalRecord{
		Name:     e.path,
		Checksum: sum,
		Softlink: softlink,
	})

	msg := "is outside of home and must be copied manually"
	if softlink {
		msg = "is a symbolic link and must be copied manually"
	}
	e.ctx.report.RecordWarning(&models.Warning{MigratableID: e.id, Path: e.path, Message: msg})
	return true
}

func (e *ExportEntry) storeDirectory(info fs.FileInfo, filter PathFilter) bool {
	e.dir = true

	ok := true
	var members []string
	for entry := range e.ctx.Entries(e.path, filter) {
		if !entry.Store(true) {
			ok = false
		}
		members = append(members, entry.Path())
	}

	if err := e.ctx.writer.CreateDir(e.Name(), info.ModTime()); err != nil {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeExport, e.id, e.path, err, "failed to create archive entry"))
		return false
	}

	if members == nil {
		members = []string{}
	}
	e.ctx.addFolder(models.FolderRecord{
		Folder:       e.path,
		Filtered:     filter != nil,
		LastModified: info.ModTime().UnixMilli(),
		Files:        members,
	})
	return ok
}

// ExportPropertyEntry is an entry referenced by a system or Java property.
type ExportPropertyEntry struct {
	*ExportEntry
	kind           EntryKind
	property       string
	propertiesPath string
}

// Kind returns KindSystemProperty or KindJavaProperty.
func (e *ExportPropertyEntry) Kind() EntryKind {
	return e.kind
}

// Property returns the referencing property name.
func (e *ExportPropertyEntry) Property() string {
	return e.property
}

// PropertiesPath returns the properties file of a Java property reference.
func (e *ExportPropertyEntry) PropertiesPath() string {
	return e.propertiesPath
}

// Referenced returns the referenced entry.
func (e *ExportPropertyEntry) Referenced() *ExportEntry {
	return e.ExportEntry
}
