// Package props looks up system properties and reads Java properties files.
package props

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/magiconair/properties"
)

// Source resolves system property values.
type Source interface {
	Lookup(name string) (string, bool)
}

// Map is a static property source.
type Map map[string]string

// Lookup returns the value of name.
func (m Map) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Names returns the property names in sorted order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// File reads properties from a properties file on every lookup so values
// restored by an import are seen immediately.
type File struct {
	path string
}

// NewFile creates a source backed by the properties file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Lookup returns the value of name. A missing or unreadable file defines no
// properties.
func (f *File) Lookup(name string) (string, bool) {
	p, err := LoadFile(f.path)
	if err != nil {
		return "", false
	}
	return p.Get(name)
}

// Layered consults each source in turn; the first one defining a property
// wins.
type Layered []Source

// Lookup returns the value of name from the first source defining it.
func (l Layered) Lookup(name string) (string, bool) {
	for _, s := range l {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return "", false
}

// LoadFile reads a Java properties file. Values are taken literally, without
// ${} expansion.
func LoadFile(path string) (*properties.Properties, error) {
	loader := &properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}

	p, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load properties %s: %w", path, err)
	}
	return p, nil
}

// ReadProperty returns the value of name in the properties file at path. The
// boolean is false when the property is not defined.
func ReadProperty(path, name string) (string, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("properties file %s: %w", path, err)
		}
		return "", false, err
	}

	p, err := LoadFile(path)
	if err != nil {
		return "", false, err
	}

	v, ok := p.Get(name)
	return v, ok, nil
}
