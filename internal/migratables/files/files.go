// Package files provides migratables declared in the configuration file: a
// list of files, directories and property referenced files to carry over.
package files

import (
	"fmt"
	"path"
	"strings"

	glob "github.com/ryanuber/go-glob"

	"github.com/TheMichaelB/migrator/internal/config"
	"github.com/TheMichaelB/migrator/internal/migration"
)

// Migratable migrates the files declared by a config.MigratableConfig.
type Migratable struct {
	migration.Descriptor
	cfg config.MigratableConfig
}

// New creates a migratable from its configuration.
func New(cfg config.MigratableConfig) *Migratable {
	title := cfg.Title
	if title == "" {
		title = cfg.ID
	}
	return &Migratable{
		Descriptor: migration.NewDescriptor(cfg.ID, cfg.Version, title, cfg.Description, cfg.Organization),
		cfg:        cfg,
	}
}

// FromConfig creates one migratable per configured entry, in order.
func FromConfig(cfgs []config.MigratableConfig) []migration.Migratable {
	ms := make([]migration.Migratable, 0, len(cfgs))
	for _, cfg := range cfgs {
		ms = append(ms, New(cfg))
	}
	return ms
}

// includeFilter accepts paths below dir matching one of patterns. Patterns are
// relative to dir and may use '*'.
func includeFilter(dir string, patterns []string) migration.PathFilter {
	if len(patterns) == 0 {
		return nil
	}
	prefix := strings.TrimSuffix(path.Clean(dir), "/") + "/"
	return func(p string) bool {
		rel := strings.TrimPrefix(p, prefix)
		for _, pattern := range patterns {
			if glob.Glob(pattern, rel) {
				return true
			}
		}
		return false
	}
}

func (m *Migratable) DoExport(ctx *migration.ExportContext) error {
	for _, f := range m.cfg.Files {
		e, err := ctx.Entry(f)
		if err != nil {
			return err
		}
		e.Store(true)
	}

	for _, f := range m.cfg.OptionalFiles {
		e, err := ctx.Entry(f)
		if err != nil {
			return err
		}
		e.Store(false)
	}

	for _, d := range m.cfg.Directories {
		e, err := ctx.Entry(d.Path)
		if err != nil {
			return err
		}
		if filter := includeFilter(e.Path(), d.Include); filter != nil {
			e.StoreFiltered(true, filter)
		} else {
			e.Store(true)
		}
	}

	for _, name := range m.cfg.SystemProperties {
		if pe, ok := ctx.SystemPropertyReferencedEntry(name, nil); ok {
			pe.Store(true)
		}
	}

	for _, jp := range m.cfg.JavaProperties {
		if pe, ok := ctx.JavaPropertyReferencedEntry(jp.File, jp.Property, nil); ok {
			pe.Store(true)
		}
	}

	return nil
}

func (m *Migratable) DoImport(ctx *migration.ImportContext) error {
	for _, f := range m.cfg.Files {
		ctx.Entry(f).Restore(true)
	}

	for _, f := range m.cfg.OptionalFiles {
		if e, ok := ctx.OptionalEntry(f); ok {
			e.Restore(false)
		}
	}

	for _, d := range m.cfg.Directories {
		ctx.Entry(d.Path).Restore(true)
	}

	for _, name := range m.cfg.SystemProperties {
		if pe, ok := ctx.SystemPropertyReferencedEntry(name); ok {
			pe.Restore(true)
		}
	}

	for _, jp := range m.cfg.JavaProperties {
		if pe, ok := ctx.JavaPropertyReferencedEntry(jp.File, jp.Property); ok {
			pe.Restore(true)
		}
	}

	return nil
}

func (m *Migratable) DoIncompatibleImport(ctx *migration.ImportContext, oldVersion string) error {
	return fmt.Errorf("unsupported %s version [%s] (expected [%s])", m.ID(), oldVersion, m.Version())
}
