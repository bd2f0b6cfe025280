// Package migration exports the state of migratable components into an
// archive and restores it on another installation.
package migration

// Migratable is a component whose state can be exported and imported.
//
// DoImport is called when the archive was produced by the same version of the
// migratable, DoIncompatibleImport otherwise. Errors returned abort the whole
// operation; problems scoped to single entries are recorded in the context's
// report instead.
type Migratable interface {
	ID() string
	Version() string
	Title() string
	Description() string
	Organization() string

	DoExport(ctx *ExportContext) error
	DoImport(ctx *ImportContext) error
	DoIncompatibleImport(ctx *ImportContext, oldVersion string) error
}

// MissingImporter is implemented by migratables able to handle archives that
// do not contain any data for them. Without it such an import fails.
type MissingImporter interface {
	DoMissingImport(ctx *ImportContext) error
}

// Descriptor implements the descriptive methods of Migratable and is meant to
// be embedded.
type Descriptor struct {
	id           string
	version      string
	title        string
	description  string
	organization string
}

// NewDescriptor creates a descriptor.
func NewDescriptor(id, version, title, description, organization string) Descriptor {
	return Descriptor{
		id:           id,
		version:      version,
		title:        title,
		description:  description,
		organization: organization,
	}
}

func (d Descriptor) ID() string           { return d.id }
func (d Descriptor) Version() string      { return d.version }
func (d Descriptor) Title() string        { return d.title }
func (d Descriptor) Description() string  { return d.description }
func (d Descriptor) Organization() string { return d.organization }
