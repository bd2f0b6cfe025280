package migration_test

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/migration"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/paths"
	"github.com/TheMichaelB/migrator/internal/props"
	"github.com/TheMichaelB/migrator/internal/report"
	"github.com/TheMichaelB/migrator/test/testutil"
)

const (
	productVersion = "2.13.0"
	keystoreProp   = "javax.net.ssl.keyStore"
	keystorePath   = "etc/keystores/serverKeystore.jks"
)

type fixture struct {
	h       *testutil.TestHelpers
	src     *paths.Home
	dst     *paths.Home
	archive string
}

func newFixture(t *testing.T) *fixture {
	h := testutil.NewTestHelpers(t)
	f := &fixture{
		h:       h,
		src:     h.NewHome("src"),
		dst:     h.NewHome("dst"),
		archive: filepath.Join(h.TempDir(), "out", "export"+archive.Extension),
	}
	h.WriteTree(f.src, testutil.SampleHome)
	return f
}

func (f *fixture) export(src props.Source, opts archive.Options, ms ...migration.Migratable) *report.Report {
	env := migration.Environment{Home: f.src, Props: src, Logger: testutil.NewTestLogger()}
	return migration.NewExportManager(env, productVersion, ms...).Export(f.archive, opts)
}

func (f *fixture) importArchive(src props.Source, opts archive.Options, ms ...migration.Migratable) *report.Report {
	env := migration.Environment{Home: f.dst, Props: src, Logger: testutil.NewTestLogger()}
	return migration.NewImportManager(env, productVersion, ms...).Import(f.archive, opts)
}

// stub creates a mock whose callbacks all succeed.
func stub(id, version string, log *testutil.CallLog) *testutil.MockMigratable {
	m := testutil.NewMockMigratable(id, version, log)
	m.On("DoExport", mock.Anything).Return(nil).Maybe()
	m.On("DoImport", mock.Anything).Return(nil).Maybe()
	m.On("DoIncompatibleImport", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

func exportPlatform(ctx *migration.ExportContext) error {
	users, err := ctx.Entry("etc/users.properties")
	if err != nil {
		return err
	}
	users.Store(true)

	certs, err := ctx.Entry("etc/certs")
	if err != nil {
		return err
	}
	certs.Store(true)

	if ks, ok := ctx.SystemPropertyReferencedEntry(keystoreProp, nil); ok {
		ks.Store(true)
	}
	return nil
}

func errorMessages(r *report.Report) []string {
	var msgs []string
	for _, err := range r.Errors() {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

func warningMessages(r *report.Report) []string {
	var msgs []string
	for _, w := range r.Warnings() {
		msgs = append(msgs, w.Message)
	}
	return msgs
}

func TestRoundTrip(t *testing.T) {
	for _, encrypted := range []bool{false, true} {
		name := "plain"
		if encrypted {
			name = "encrypted"
		}

		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			sysProps := props.Map{keystoreProp: keystorePath}
			opts := archive.Options{Encrypted: encrypted}

			exporter := stub("platform", "1.0", nil)
			exporter.ExportFunc = exportPlatform

			rep := f.export(sysProps, opts, exporter)
			require.NoError(t, rep.VerifyCompletion())
			if encrypted {
				assert.FileExists(t, opts.KeyFor(f.archive))
				assert.FileExists(t, opts.ChecksumFor(f.archive))
			}

			importer := stub("platform", "1.0", nil)
			importer.ImportFunc = func(ctx *migration.ImportContext) error {
				assert.True(t, ctx.Entry("etc/users.properties").Restore(true))
				assert.True(t, ctx.Entry("etc/certs").Restore(true))

				ks, ok := ctx.SystemPropertyReferencedEntry(keystoreProp)
				require.True(t, ok)
				assert.Equal(t, migration.KindSystemProperty, ks.Kind())
				assert.True(t, ks.Restore(true))
				return nil
			}

			rep = f.importArchive(sysProps, opts, importer)
			require.NoError(t, rep.VerifyCompletion())

			for _, file := range []string{
				"etc/users.properties",
				keystorePath,
				"etc/certs/1.pem",
				"etc/certs/2.pem",
				"etc/certs/sub/3.pem",
			} {
				testutil.CompareFiles(t, f.src.Resolve(file), f.dst.Resolve(file))

				want, err := os.Stat(f.src.Resolve(file))
				require.NoError(t, err)
				f.h.AssertFileMode(f.dst.Resolve(file), want.Mode().Perm())
			}

			// Not exported.
			f.h.AssertFileNotExists(f.dst.Resolve("Version.txt"))
		})
	}
}

func TestExportEntryInterning(t *testing.T) {
	f := newFixture(t)

	m := stub("platform", "1.0", nil)
	m.ExportFunc = func(ctx *migration.ExportContext) error {
		a, err := ctx.Entry("etc/users.properties")
		require.NoError(t, err)
		b, err := ctx.Entry(f.src.Resolve("etc/users.properties"))
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Equal(t, "platform/etc/users.properties", a.Name())
		assert.Equal(t, "etc/users.properties", a.Path())

		_, err = ctx.Entry("../outside.txt")
		assert.ErrorIs(t, err, models.ErrNotMigratable)
		return nil
	}

	rep := f.export(nil, archive.Options{}, m)
	require.NoError(t, rep.VerifyCompletion())
	m.AssertCalled(t, "DoExport", mock.Anything)
}

func TestExportPropertyReferenceErrors(t *testing.T) {
	f := newFixture(t)
	sysProps := props.Map{
		"blank":    "   ",
		"rejected": "etc/users.properties",
	}

	m := stub("platform", "1.0", nil)
	m.ExportFunc = func(ctx *migration.ExportContext) error {
		_, ok := ctx.SystemPropertyReferencedEntry("undefined", nil)
		assert.False(t, ok)
		_, ok = ctx.SystemPropertyReferencedEntry("blank", nil)
		assert.False(t, ok)
		_, ok = ctx.SystemPropertyReferencedEntry("rejected", func(string) bool { return false })
		assert.False(t, ok)
		return nil
	}

	rep := f.export(sysProps, archive.Options{}, m)
	msgs := errorMessages(rep)
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "[undefined] is not defined")
	assert.Contains(t, msgs[1], "[blank] is empty")
	assert.Contains(t, msgs[2], "[rejected] is invalid")

	var compound *models.CompoundError
	require.ErrorAs(t, rep.VerifyCompletion(), &compound)
	assert.Len(t, compound.Suppressed, 2)
}

func TestExportJavaPropertyReference(t *testing.T) {
	f := newFixture(t)
	f.h.WriteFile(f.src, "etc/system.properties", "keystore.path=etc/keystores/serverKeystore.jks\n", 0644)

	m := stub("platform", "1.0", nil)
	m.ExportFunc = func(ctx *migration.ExportContext) error {
		pe, ok := ctx.JavaPropertyReferencedEntry("etc/system.properties", "keystore.path", nil)
		require.True(t, ok)
		assert.Equal(t, migration.KindJavaProperty, pe.Kind())
		assert.Equal(t, "etc/system.properties", pe.PropertiesPath())
		assert.True(t, pe.Store(true))

		_, ok = ctx.JavaPropertyReferencedEntry("etc/system.properties", "missing", nil)
		assert.False(t, ok)
		return nil
	}

	rep := f.export(nil, archive.Options{}, m)
	msgs := errorMessages(rep)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "[missing] is not defined")

	meta := readMetadata(t, f.archive)
	block, ok := meta.Migratables.Get("platform")
	require.True(t, ok)
	mm, err := models.ParseMigratableMetadata(block.Raw)
	require.NoError(t, err)
	assert.Equal(t, []models.JavaPropertyRecord{{
		Property:  "keystore.path",
		Reference: keystorePath,
		Name:      "etc/system.properties",
	}}, mm.JavaProperties)
}

func TestExportEntries(t *testing.T) {
	f := newFixture(t)

	m := stub("platform", "1.0", nil)
	m.ExportFunc = func(ctx *migration.ExportContext) error {
		var all []string
		for e := range ctx.Entries("etc/certs", nil) {
			all = append(all, e.Path())
		}
		assert.Equal(t, []string{"etc/certs/1.pem", "etc/certs/2.pem", "etc/certs/sub/3.pem"}, all)

		var filtered []string
		for e := range ctx.Entries("etc/certs", func(p string) bool { return strings.HasSuffix(p, "2.pem") }) {
			filtered = append(filtered, e.Path())
		}
		assert.Equal(t, []string{"etc/certs/2.pem"}, filtered)

		for range ctx.Entries("etc/missing", nil) {
			t.Error("missing directory yielded an entry")
		}
		for range ctx.Entries("etc/users.properties", nil) {
			t.Error("file yielded an entry")
		}
		return nil
	}

	rep := f.export(nil, archive.Options{}, m)
	msgs := errorMessages(rep)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "directory does not exist")
	assert.Contains(t, msgs[1], "is not a directory")
}

func TestExportMissingFiles(t *testing.T) {
	f := newFixture(t)

	m := stub("platform", "1.0", nil)
	m.ExportFunc = func(ctx *migration.ExportContext) error {
		optional, err := ctx.Entry("etc/optional.cfg")
		require.NoError(t, err)
		assert.True(t, optional.Store(false))

		required, err := ctx.Entry("etc/required.cfg")
		require.NoError(t, err)
		assert.False(t, required.Store(true))
		return nil
	}

	rep := f.export(nil, archive.Options{}, m)
	msgs := errorMessages(rep)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "[etc/required.cfg]")
	assert.Contains(t, msgs[0], "does not exist")
}

func TestExportStoreWith(t *testing.T) {
	f := newFixture(t)

	m := stub("platform", "1.0", nil)
	m.ExportFunc = func(ctx *migration.ExportContext) error {
		e, err := ctx.Entry("etc/generated.cfg")
		require.NoError(t, err)
		assert.True(t, e.StoreWith(func(w io.Writer) error {
			_, err := io.WriteString(w, "generated")
			return err
		}))
		return nil
	}
	require.NoError(t, f.export(nil, archive.Options{}, m).VerifyCompletion())

	importer := stub("platform", "1.0", nil)
	importer.ImportFunc = func(ctx *migration.ImportContext) error {
		e, ok := ctx.OptionalEntry("etc/generated.cfg")
		require.True(t, ok)
		fe, ok := e.(*migration.ImportFileEntry)
		require.True(t, ok)

		var got string
		assert.True(t, fe.RestoreWith(func(r io.Reader) error {
			data, err := io.ReadAll(r)
			got = string(data)
			return err
		}))
		assert.Equal(t, "generated", got)
		return nil
	}
	require.NoError(t, f.importArchive(nil, archive.Options{}, importer).VerifyCompletion())
	f.h.AssertFileNotExists(f.dst.Resolve("etc/generated.cfg"))
}

func TestExportMetadataOrder(t *testing.T) {
	f := newFixture(t)

	zeta := stub("zeta", "3", nil)
	alpha := stub("alpha", "1", nil)

	rep := f.export(nil, archive.Options{}, zeta, alpha)
	require.NoError(t, rep.VerifyCompletion())

	meta := readMetadata(t, f.archive)
	assert.Equal(t, models.MetadataFormatVersion, meta.Version)
	assert.Equal(t, productVersion, meta.ProductVersion)
	assert.Equal(t, []string{"zeta", "alpha"}, meta.Migratables.IDs())

	block, ok := meta.Migratables.Get("zeta")
	require.True(t, ok)
	mm, err := models.ParseMigratableMetadata(block.Raw)
	require.NoError(t, err)
	assert.Equal(t, "3", mm.Version)
	assert.Equal(t, "zeta title", mm.Title)
}

func TestExportAbortsOnMigratableError(t *testing.T) {
	f := newFixture(t)
	log := &testutil.CallLog{}

	failing := testutil.NewMockMigratable("a", "1", log)
	failing.On("DoExport", mock.Anything).Return(errors.New("boom"))
	next := stub("b", "1", log)

	rep := f.export(nil, archive.Options{}, failing, next)
	err := rep.VerifyCompletion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"a.DoExport"}, log.Calls())
	next.AssertNotCalled(t, "DoExport", mock.Anything)
}

func TestExportRejectsDuplicateIDs(t *testing.T) {
	f := newFixture(t)

	rep := f.export(nil, archive.Options{}, stub("a", "1", nil), stub("a", "2", nil))
	require.Error(t, rep.VerifyCompletion())
	_, err := os.Stat(f.archive)
	assert.True(t, os.IsNotExist(err))
}

func TestRejectsSeparatedIDs(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"org/app", `org\app`} {
		rep := f.export(nil, archive.Options{}, stub(id, "1", nil))
		err := rep.VerifyCompletion()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path separator")
	}
	_, err := os.Stat(f.archive)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.export(nil, archive.Options{}, stub("app", "1", nil)).VerifyCompletion())
	err = f.importArchive(nil, archive.Options{}, stub("org/app", "1", nil)).VerifyCompletion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path separator")
}

func TestImportOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.export(nil, archive.Options{}, stub("a", "1", nil), stub("b", "1", nil)).VerifyCompletion())

	log := &testutil.CallLog{}
	rep := f.importArchive(nil, archive.Options{}, stub("b", "1", log), stub("a", "1", log))
	require.NoError(t, rep.VerifyCompletion())

	assert.Equal(t, []string{"a.DoImport", "b.DoImport"}, log.Calls())
}

func TestImportIncompatibleVersionFailsFast(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.export(nil, archive.Options{}, stub("a", "1", nil), stub("b", "1", nil)).VerifyCompletion())

	log := &testutil.CallLog{}
	a := testutil.NewMockMigratable("a", "2", log)
	a.On("DoIncompatibleImport", mock.Anything, "1").Return(errors.New("version 1 is not supported"))
	b := stub("b", "1", log)

	rep := f.importArchive(nil, archive.Options{}, a, b)
	err := rep.VerifyCompletion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 1 is not supported")

	assert.Equal(t, []string{"a.DoIncompatibleImport(1)"}, log.Calls())
	a.AssertExpectations(t)
	b.AssertNotCalled(t, "DoImport", mock.Anything)
}

func TestImportStopsAfterRecordedError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.export(nil, archive.Options{}, stub("a", "1", nil), stub("b", "1", nil)).VerifyCompletion())

	log := &testutil.CallLog{}
	a := stub("a", "1", log)
	a.ImportFunc = func(ctx *migration.ImportContext) error {
		assert.False(t, ctx.Entry("etc/never-exported.cfg").Restore(true))
		ctx.Report().RecordError(models.NewError(models.ErrCodeImport, "restore failed"))
		return nil
	}

	rep := f.importArchive(nil, archive.Options{}, a, stub("b", "1", log))
	require.Error(t, rep.VerifyCompletion())
	assert.Equal(t, []string{"a.DoImport"}, log.Calls())
}

func TestImportNotInstalled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.export(nil, archive.Options{}, stub("a", "1", nil)).VerifyCompletion())

	rep := f.importArchive(nil, archive.Options{})
	err := rep.VerifyCompletion()
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotInstalled)

	var merr *models.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, models.ErrCodeNotInstalled, merr.Code)
	assert.Equal(t, "a", merr.MigratableID)
}

type missingAware struct {
	*testutil.MockMigratable
	called bool
}

func (m *missingAware) DoMissingImport(*migration.ImportContext) error {
	m.called = true
	return nil
}

func TestImportInstalledButNotExported(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.export(nil, archive.Options{}).VerifyCompletion())

	rep := f.importArchive(nil, archive.Options{}, stub("a", "1", nil))
	assert.ErrorIs(t, rep.VerifyCompletion(), models.ErrNotExported)

	aware := &missingAware{MockMigratable: stub("a", "1", nil)}
	rep = f.importArchive(nil, archive.Options{}, aware)
	require.NoError(t, rep.VerifyCompletion())
	assert.True(t, aware.called)
}

func TestImportMetadataErrors(t *testing.T) {
	t.Run("missing metadata", func(t *testing.T) {
		f := newFixture(t)
		w, err := archive.Create(f.archive, archive.Options{})
		require.NoError(t, err)
		require.NoError(t, w.Close())

		log := &testutil.CallLog{}
		rep := f.importArchive(nil, archive.Options{}, stub("a", "1", log))
		assert.ErrorIs(t, rep.VerifyCompletion(), models.ErrMissingMetadata)
		assert.Empty(t, log.Calls())
	})

	t.Run("unparsable metadata", func(t *testing.T) {
		f := newFixture(t)
		w, err := archive.Create(f.archive, archive.Options{})
		require.NoError(t, err)
		out, err := w.Create(models.MetadataFilename, 0644, testTime)
		require.NoError(t, err)
		_, err = io.WriteString(out, "{not json")
		require.NoError(t, err)
		require.NoError(t, w.Close())

		rep := f.importArchive(nil, archive.Options{})
		assert.ErrorIs(t, rep.VerifyCompletion(), models.ErrInvalidMetadata)
	})

	t.Run("product version mismatch", func(t *testing.T) {
		f := newFixture(t)
		env := migration.Environment{Home: f.src}
		rep := migration.NewExportManager(env, "1.0.0").Export(f.archive, archive.Options{})
		require.NoError(t, rep.VerifyCompletion())

		rep = f.importArchive(nil, archive.Options{})
		err := rep.VerifyCompletion()
		assert.ErrorIs(t, err, models.ErrUnsupportedVersion)

		var merr *models.MigrationError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, models.ErrCodeVersion, merr.Code)
	})

	t.Run("malformed block", func(t *testing.T) {
		f := newFixture(t)
		w, err := archive.Create(f.archive, archive.Options{})
		require.NoError(t, err)
		out, err := w.Create(models.MetadataFilename, 0644, testTime)
		require.NoError(t, err)
		_, err = io.WriteString(out, `{"version":"1.0","product.version":"`+productVersion+`","migratables":{"a":{"version":"1","externals":{}}}}`)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		log := &testutil.CallLog{}
		rep := f.importArchive(nil, archive.Options{}, stub("a", "1", log))
		assert.ErrorIs(t, rep.VerifyCompletion(), models.ErrInvalidMetadata)
		assert.Empty(t, log.Calls())
	})
}

func TestImportTamperedArchive(t *testing.T) {
	f := newFixture(t)
	opts := archive.Options{Encrypted: true}
	require.NoError(t, f.export(nil, opts, stub("a", "1", nil)).VerifyCompletion())

	file, err := os.OpenFile(f.archive, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = file.WriteString("tampered")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	log := &testutil.CallLog{}
	rep := f.importArchive(nil, opts, stub("a", "1", log))
	assert.ErrorIs(t, rep.VerifyCompletion(), models.ErrTampered)
	assert.Empty(t, log.Calls())
}

func readMetadata(t *testing.T, path string) *models.ArchiveMetadata {
	t.Helper()

	c, err := archive.Open(path, archive.Options{})
	require.NoError(t, err)
	defer c.Close()

	rc, err := c.Open(models.MetadataFilename)
	require.NoError(t, err)
	defer rc.Close()

	var meta models.ArchiveMetadata
	require.NoError(t, json.NewDecoder(rc).Decode(&meta))
	return &meta
}

func archiveNames(t *testing.T, path string, opts archive.Options) []string {
	t.Helper()

	c, err := archive.Open(path, opts)
	require.NoError(t, err)
	defer c.Close()

	var names []string
	for _, f := range c.Files() {
		names = append(names, f.Name)
	}
	slices.Sort(names)
	return names
}
