// Package platform migrates the core configuration of an installation: system
// properties, users, certificates and the key and trust stores.
package platform

import (
	"fmt"

	"github.com/TheMichaelB/migrator/internal/migration"
)

const (
	ID      = "platform"
	Version = "1.0"

	CustomSystemProperties = "etc/custom.system.properties"
	UsersProperties        = "etc/users.properties"
	CertsDir               = "etc/certs"

	KeystoreProperty   = "javax.net.ssl.keyStore"
	TruststoreProperty = "javax.net.ssl.trustStore"
)

var storeProperties = []string{KeystoreProperty, TruststoreProperty}

// Migratable exports and imports the platform configuration.
type Migratable struct {
	migration.Descriptor
}

// New creates the platform migratable.
func New() *Migratable {
	return &Migratable{
		Descriptor: migration.NewDescriptor(ID, Version,
			"Platform Migration",
			"Exports system properties, users, certificates and key stores",
			"Migrator"),
	}
}

func (m *Migratable) DoExport(ctx *migration.ExportContext) error {
	props, err := ctx.Entry(CustomSystemProperties)
	if err != nil {
		return err
	}
	props.Store(true)

	for _, path := range []string{UsersProperties, CertsDir} {
		e, err := ctx.Entry(path)
		if err != nil {
			return err
		}
		e.Store(false)
	}

	for _, name := range storeProperties {
		if _, defined := ctx.SystemProperty(name); !defined {
			continue
		}
		if pe, ok := ctx.SystemPropertyReferencedEntry(name, nil); ok {
			pe.Store(true)
		}
	}

	return nil
}

func (m *Migratable) DoImport(ctx *migration.ImportContext) error {
	ctx.Entry(CustomSystemProperties).Restore(true)

	if e, ok := ctx.OptionalEntry(UsersProperties); ok {
		e.Restore(false)
	}
	if e, ok := ctx.OptionalEntry(CertsDir); ok {
		e.Restore(false)
	}

	for _, name := range storeProperties {
		if pe, ok := ctx.SystemPropertyReferencedEntry(name); ok {
			pe.Restore(true)
		}
	}

	return nil
}

func (m *Migratable) DoIncompatibleImport(ctx *migration.ImportContext, oldVersion string) error {
	return fmt.Errorf("unsupported %s version [%s] (expected [%s])", ID, oldVersion, m.Version())
}
