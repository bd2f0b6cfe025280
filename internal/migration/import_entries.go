package migration

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/paths"
	"github.com/TheMichaelB/migrator/internal/props"
	"github.com/TheMichaelB/migrator/internal/report"
)

// ImportEntry is an entry recorded in an archive, restorable onto the local
// installation.
type ImportEntry interface {
	Entry

	// AbsolutePath returns the local path the entry restores to.
	AbsolutePath() string

	// Open opens the archived content.
	Open() (io.ReadCloser, error)

	// Restore restores the entry and reports whether it succeeded. Failures
	// are recorded in the report.
	Restore(required bool) bool
}

type checksummer interface {
	Checksum() string
}

// ImportFileEntry is a file whose content was copied into the archive.
type ImportFileEntry struct {
	baseEntry
	ctx  *ImportContext
	file *zip.File

	restored bool
	result   bool
	checksum string
}

// Kind returns KindFile.
func (e *ImportFileEntry) Kind() EntryKind {
	return KindFile
}

// Exported reports whether the archive holds content for this entry.
func (e *ImportFileEntry) Exported() bool {
	return e.file != nil
}

// Checksum returns the checksum of the restored bytes, empty until restored.
func (e *ImportFileEntry) Checksum() string {
	return e.checksum
}

// Open opens the archived content.
func (e *ImportFileEntry) Open() (io.ReadCloser, error) {
	if e.file == nil {
		return nil, newEntryError(models.ErrCodeImport, e.id, e.path, models.ErrNotExported, "cannot open")
	}
	return e.ctx.container.OpenFile(e.file)
}

// Restore writes the archived content to disk with the archived permissions
// and modification time. A read only destination is made writable for the
// duration of the write and read only again afterwards. Without archived
// content, a required entry fails while an optional one deletes the local
// file.
func (e *ImportFileEntry) Restore(required bool) bool {
	if e.restored {
		return e.result
	}
	e.restored = true
	e.result = e.restore(required)
	return e.result
}

// RestoreWith hands the archived content to fn instead of writing it to disk.
func (e *ImportFileEntry) RestoreWith(fn func(r io.Reader) error) bool {
	if e.file == nil {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, models.ErrNotExported, "cannot restore"))
		return false
	}

	rc, err := e.Open()
	if err != nil {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "failed to read archive entry"))
		return false
	}
	defer rc.Close()

	if err := fn(rc); err != nil {
		if !isRecorded(err) {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "failed to import"))
		}
		return false
	}
	return true
}

func (e *ImportFileEntry) restore(required bool) bool {
	store := e.ctx.store

	if e.file == nil {
		if required {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, models.ErrNotExported, "cannot restore"))
			return false
		}
		if err := store.Delete(e.path); err != nil {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "failed to delete"))
			return false
		}
		return true
	}

	mode := e.file.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	// Relax a read only destination; it is made read only again on every
	// exit path below.
	var original fs.FileMode
	readOnly := false
	if info, err := store.Stat(e.path); err == nil && !info.IsDir && !info.IsSymlink && info.Mode.Perm()&0200 == 0 {
		readOnly = true
		original = info.Mode.Perm()
		if err := store.Chmod(e.path, original|0200); err != nil {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "is read only and could not be made writable"))
			return false
		}
	}

	written := false
	defer func() {
		if !readOnly {
			return
		}
		final := original
		if written {
			final = mode
		}
		if err := store.Chmod(e.path, final&^0222); err != nil {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "could not be made read only again"))
		}
	}()

	rc, err := e.Open()
	if err != nil {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "failed to read archive entry"))
		return false
	}
	defer rc.Close()

	sum, err := store.WriteStream(e.path, rc, mode)
	if err != nil {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "failed to restore"))
		return false
	}
	written = true
	e.checksum = sum

	if !e.file.Modified.IsZero() {
		if err := store.SetModTime(e.path, e.file.Modified); err != nil {
			e.ctx.report.RecordWarning(&models.Warning{
				MigratableID: e.id,
				Path:         e.path,
				Message:      fmt.Sprintf("modification time could not be restored: %v", err),
			})
		}
	}

	return true
}

// ImportDirectoryEntry is an exported directory and its member files.
type ImportDirectoryEntry struct {
	baseEntry
	ctx          *ImportContext
	filtered     bool
	lastModified int64
	members      []ImportEntry
}

// Kind returns KindDirectory.
func (e *ImportDirectoryEntry) Kind() EntryKind {
	return KindDirectory
}

// Filtered reports whether only part of the directory was exported.
func (e *ImportDirectoryEntry) Filtered() bool {
	return e.filtered
}

// Members returns the member entries sorted by path.
func (e *ImportDirectoryEntry) Members() []ImportEntry {
	return append([]ImportEntry(nil), e.members...)
}

// Open fails, directories have no content.
func (e *ImportDirectoryEntry) Open() (io.ReadCloser, error) {
	return nil, newEntryError(models.ErrCodeImport, e.id, e.path, nil, "is a directory")
}

// Restore restores every member.
func (e *ImportDirectoryEntry) Restore(required bool) bool {
	return e.RestoreFiltered(required, nil)
}

// RestoreFiltered restores the members accepted by filter. Unless the
// directory was exported filtered, local files that are not members are
// deleted first. A failing member does not stop the others.
func (e *ImportDirectoryEntry) RestoreFiltered(required bool, filter PathFilter) bool {
	store := e.ctx.store
	ok := true

	if !e.filtered {
		keep := make(map[string]bool, len(e.members))
		for _, m := range e.members {
			keep[m.Path()] = true
		}

		existing, err := store.ListFiles(e.path)
		if err != nil {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "directory could not be read"))
			return false
		}
		for _, f := range existing {
			if keep[f] {
				continue
			}
			if err := store.Delete(f); err != nil {
				e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, f, err, "failed to delete"))
				ok = false
			}
		}
	}

	if err := store.EnsureDir(e.path); err != nil {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "directory could not be created"))
		return false
	}

	for _, m := range e.members {
		if filter != nil && !filter(m.Path()) {
			continue
		}
		if !m.Restore(required) {
			ok = false
		}
	}

	if e.lastModified > 0 {
		if err := store.SetModTime(e.path, time.UnixMilli(e.lastModified)); err != nil {
			e.ctx.report.RecordWarning(&models.Warning{
				MigratableID: e.id,
				Path:         e.path,
				Message:      fmt.Sprintf("modification time could not be restored: %v", err),
			})
		}
	}

	if !ok {
		e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, nil, "directory was not fully restored"))
	}
	return ok
}

// ImportExternalEntry is a file that was not copied into the archive. Restore
// verifies the local copy instead.
type ImportExternalEntry struct {
	baseEntry
	ctx      *ImportContext
	checksum string
	softlink bool
	verified bool
}

// Kind returns KindExternal.
func (e *ImportExternalEntry) Kind() EntryKind {
	return KindExternal
}

// Checksum returns the checksum recorded at export time.
func (e *ImportExternalEntry) Checksum() string {
	return e.checksum
}

// Softlink reports whether the file was a symbolic link at export time.
func (e *ImportExternalEntry) Softlink() bool {
	return e.softlink
}

// Verified reports whether the last Restore confirmed the local file.
func (e *ImportExternalEntry) Verified() bool {
	return e.verified
}

// Open fails, externals have no archived content.
func (e *ImportExternalEntry) Open() (io.ReadCloser, error) {
	return nil, newEntryError(models.ErrCodeImport, e.id, e.path, models.ErrNotExported, "external file")
}

// Restore verifies that the local file exists and matches what was exported.
// A checksum mismatch is an error for required entries and a warning for
// optional ones.
func (e *ImportExternalEntry) Restore(required bool) bool {
	e.verified = false
	abs := e.AbsolutePath()

	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if required {
				e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, nil, "does not exist"))
				return false
			}
			return true
		}
		e.ctx.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, err, "could not be read"))
		return false
	}

	if e.softlink && info.Mode()&fs.ModeSymlink == 0 {
		e.warn("is not a symbolic link")
	}
	if st, err := os.Stat(abs); err == nil && !st.Mode().IsRegular() {
		e.warn("is not a regular file")
	}

	sum, err := paths.Checksum(abs)
	if err != nil {
		e.warn("checksum could not be calculated")
		return true
	}

	if e.checksum != "" && !strings.EqualFold(sum, e.checksum) {
		if required {
			e.ctx.report.RecordError(newEntryError(models.ErrCodeIntegrity, e.id, e.path,
				&models.IntegrityError{Path: e.path, Expected: e.checksum, Actual: sum}, "checksum doesn't match"))
			return false
		}
		e.warn("checksum doesn't match")
		return true
	}

	e.verified = e.checksum != ""
	return true
}

func (e *ImportExternalEntry) warn(msg string) {
	e.ctx.report.RecordWarning(&models.Warning{MigratableID: e.id, Path: e.path, Message: msg})
}

// ImportPropertyEntry is an entry referenced by a system or Java property.
// Once restored it checks, after the whole import completes, that the live
// property still references it.
type ImportPropertyEntry struct {
	ImportEntry
	ctx            *ImportContext
	kind           EntryKind
	property       string
	propertiesPath string
	registered     bool
}

// Kind returns KindSystemProperty or KindJavaProperty.
func (e *ImportPropertyEntry) Kind() EntryKind {
	return e.kind
}

// Property returns the referencing property name.
func (e *ImportPropertyEntry) Property() string {
	return e.property
}

// PropertiesPath returns the properties file of a Java property reference.
func (e *ImportPropertyEntry) PropertiesPath() string {
	return e.propertiesPath
}

// Referenced returns the referenced entry.
func (e *ImportPropertyEntry) Referenced() ImportEntry {
	return e.ImportEntry
}

// Restore restores the referenced entry and schedules the property check.
func (e *ImportPropertyEntry) Restore(required bool) bool {
	if !e.ImportEntry.Restore(required) {
		return false
	}
	if f, ok := e.ImportEntry.(*ImportFileEntry); ok && !f.Exported() {
		return true
	}
	if !e.registered {
		e.registered = true
		e.ctx.report.DoAfterCompletion(e.verifyProperty)
	}
	return true
}

func (e *ImportPropertyEntry) describe() string {
	if e.kind == KindJavaProperty {
		return fmt.Sprintf("java property [%s] from [%s]", e.property, e.propertiesPath)
	}
	return fmt.Sprintf("system property [%s]", e.property)
}

func (e *ImportPropertyEntry) lookup() (string, bool, error) {
	if e.kind == KindJavaProperty {
		return props.ReadProperty(e.ctx.home.Resolve(e.propertiesPath), e.property)
	}
	v, ok := e.ctx.props.Lookup(e.property)
	return v, ok, nil
}

func (e *ImportPropertyEntry) verifyProperty(r *report.Report) {
	fail := func(err error, format string, args ...any) {
		r.RecordError(newEntryError(models.ErrCodeProperty, e.ID(), e.Path(), err,
			"%s %s", e.describe(), fmt.Sprintf(format, args...)))
	}

	value, ok, err := e.lookup()
	switch {
	case err != nil:
		fail(err, "could not be read")
		return
	case !ok:
		fail(nil, "is no longer defined")
		return
	case strings.TrimSpace(value) == "":
		fail(nil, "is now empty")
		return
	}

	home := e.ctx.home
	abs := home.Resolve(strings.TrimSpace(value))
	if abs != e.AbsolutePath() {
		fail(nil, "now references [%s]", paths.ToSlash(value))
		return
	}

	if _, err := os.Stat(abs); err != nil {
		fail(err, "references a file that no longer exists")
		return
	}

	// An unverified external already carries its own diagnostic.
	if ext, ok := e.ImportEntry.(*ImportExternalEntry); ok && !ext.Verified() {
		return
	}

	cs, ok := e.ImportEntry.(checksummer)
	if !ok || cs.Checksum() == "" {
		return
	}

	sum, err := paths.Checksum(abs)
	if err != nil {
		fail(err, "references a file whose checksum could not be calculated")
		return
	}
	if !strings.EqualFold(sum, cs.Checksum()) {
		fail(&models.IntegrityError{Path: e.Path(), Expected: cs.Checksum(), Actual: sum},
			"references a file that was modified")
	}
}

// EmptyEntry is returned for lookups that find nothing.
type EmptyEntry struct {
	baseEntry
	report *report.Report
}

// Kind returns KindEmpty.
func (e *EmptyEntry) Kind() EntryKind {
	return KindEmpty
}

// Open fails, nothing was exported.
func (e *EmptyEntry) Open() (io.ReadCloser, error) {
	return nil, newEntryError(models.ErrCodeImport, e.id, e.path, models.ErrNotExported, "cannot open")
}

// Restore always fails. A required restore records the entry as not exported.
func (e *EmptyEntry) Restore(required bool) bool {
	if required && e.report != nil {
		e.report.RecordError(newEntryError(models.ErrCodeImport, e.id, e.path, models.ErrNotExported, "cannot restore"))
	}
	return false
}
