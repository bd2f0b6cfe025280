package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheMichaelB/migrator/internal/crypto"
)

// State is the position of the writer cursor.
type State int

const (
	// Idle means no entry is open.
	Idle State = iota
	// EntryOpen means one entry accepts content.
	EntryOpen
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case EntryOpen:
		return "entry-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrEntryClosed  = errors.New("archive entry is closed")
	ErrWriterClosed = errors.New("archive writer is closed")
)

// Writer produces an archive one entry at a time. Opening an entry closes the
// previously opened one.
type Writer struct {
	path   string
	file   *os.File
	zw     *zip.Writer
	key    []byte
	state  State
	entry  *entryWriter
	closed bool
}

// Create creates the archive at path and its parent directories, truncating
// any existing file. Encrypted archives load or generate their key file first.
func Create(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	var key []byte
	if opts.Encrypted {
		var err error
		if key, err = opts.loadKey(path); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	w := NewWriter(file, key)
	w.path = path
	w.file = file
	return w, nil
}

// NewWriter writes an archive to w. A nil key writes plain entries.
func NewWriter(w io.Writer, key []byte) *Writer {
	return &Writer{
		zw:  zip.NewWriter(w),
		key: key,
	}
}

// Path returns the archive path, empty for writers over a plain io.Writer.
func (w *Writer) Path() string {
	return w.path
}

// Encrypted reports whether entry content is encrypted.
func (w *Writer) Encrypted() bool {
	return w.key != nil
}

// State returns the cursor position.
func (w *Writer) State() State {
	return w.state
}

// Create opens a new file entry named name, closing the current one.
func (w *Writer) Create(name string, mode fs.FileMode, modTime time.Time) (io.Writer, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}
	if err := w.CloseEntry(); err != nil {
		return nil, err
	}

	header := &zip.FileHeader{
		Name:     strings.TrimPrefix(name, "/"),
		Method:   zip.Deflate,
		Modified: modTime,
	}
	if mode == 0 {
		mode = 0644
	}
	header.SetMode(mode.Perm())

	zf, err := w.zw.CreateHeader(header)
	if err != nil {
		return nil, fmt.Errorf("create entry %s: %w", name, err)
	}

	entry := &entryWriter{name: header.Name, w: zf}
	if w.key != nil {
		enc, err := crypto.NewEncryptWriter(zf, w.key)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", name, err)
		}
		entry.w = enc
		entry.closer = enc
	}

	w.entry = entry
	w.state = EntryOpen
	return entry, nil
}

// CreateDir records a directory entry. Directory entries end with a slash and
// carry no content.
func (w *Writer) CreateDir(name string, modTime time.Time) error {
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.CloseEntry(); err != nil {
		return err
	}

	name = strings.TrimPrefix(name, "/")
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: modTime,
	}
	header.SetMode(fs.ModeDir | 0755)

	if _, err := w.zw.CreateHeader(header); err != nil {
		return fmt.Errorf("create directory entry %s: %w", name, err)
	}
	return nil
}

// CloseEntry closes the open entry, if any.
func (w *Writer) CloseEntry() error {
	if w.state == Idle {
		return nil
	}

	entry := w.entry
	w.entry = nil
	w.state = Idle
	return entry.close()
}

// Close closes the open entry, finishes the zip directory and closes the
// underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.CloseEntry()
	if zerr := w.zw.Close(); err == nil && zerr != nil {
		err = fmt.Errorf("finish archive: %w", zerr)
	}
	if w.file != nil {
		if ferr := w.file.Close(); err == nil && ferr != nil {
			err = fmt.Errorf("close archive: %w", ferr)
		}
	}
	return err
}

type entryWriter struct {
	name   string
	w      io.Writer
	closer io.Closer
	closed bool
}

func (e *entryWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, fmt.Errorf("%s: %w", e.name, ErrEntryClosed)
	}
	return e.w.Write(p)
}

func (e *entryWriter) close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.closer != nil {
		if err := e.closer.Close(); err != nil {
			return fmt.Errorf("close entry %s: %w", e.name, err)
		}
	}
	return nil
}
