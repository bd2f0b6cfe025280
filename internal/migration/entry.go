package migration

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/TheMichaelB/migrator/internal/paths"
)

// EntryKind identifies the variant of an entry.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindExternal
	KindSystemProperty
	KindJavaProperty
	KindEmpty
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindExternal:
		return "external"
	case KindSystemProperty:
		return "system-property"
	case KindJavaProperty:
		return "java-property"
	case KindEmpty:
		return "empty"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is an addressable piece of exported state. It is identified by the
// migratable id, empty for the system context, and its path relative to home.
type Entry interface {
	// ID returns the owning migratable id.
	ID() string
	// Path returns the home relative slash path. Files outside home keep
	// their absolute path.
	Path() string
	// Name returns the archive entry name.
	Name() string
	// Kind returns the entry variant.
	Kind() EntryKind
}

// PathFilter selects entries by home relative path.
type PathFilter func(path string) bool

// Compare orders entries by id, the system context first, then by path.
func Compare(a, b Entry) int {
	if c := cmp.Compare(a.ID(), b.ID()); c != 0 {
		return c
	}
	return cmp.Compare(a.Path(), b.Path())
}

// SortEntries sorts entries with Compare.
func SortEntries[E Entry](entries []E) {
	slices.SortFunc(entries, func(a, b E) int { return Compare(a, b) })
}

// EntryName returns the archive name of path within migratable id.
func EntryName(id, path string) string {
	path = strings.TrimPrefix(paths.ToSlash(path), "/")
	if id == "" {
		return path
	}
	return id + "/" + path
}

// SplitEntryName splits an archive name into migratable id and path. Names
// whose first segment is not a known id belong to the system context.
func SplitEntryName(name string, ids map[string]bool) (string, string) {
	if i := strings.Index(name, "/"); i > 0 && ids[name[:i]] {
		return name[:i], name[i+1:]
	}
	return "", name
}

type baseEntry struct {
	home *paths.Home
	id   string
	path string
}

func (b *baseEntry) ID() string {
	return b.id
}

func (b *baseEntry) Path() string {
	return b.path
}

func (b *baseEntry) Name() string {
	return EntryName(b.id, b.path)
}

// AbsolutePath returns the path resolved against home.
func (b *baseEntry) AbsolutePath() string {
	return b.home.Resolve(b.path)
}

func (b *baseEntry) String() string {
	if b.id == "" {
		return "[" + b.path + "]"
	}
	return b.id + ": [" + b.path + "]"
}
