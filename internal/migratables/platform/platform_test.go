package platform_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/migrator/internal/archive"
	"github.com/TheMichaelB/migrator/internal/migratables/platform"
	"github.com/TheMichaelB/migrator/internal/migration"
	"github.com/TheMichaelB/migrator/internal/props"
	"github.com/TheMichaelB/migrator/test/testutil"
)

func TestPlatformRoundTrip(t *testing.T) {
	h := testutil.NewTestHelpers(t)
	src := h.NewHome("src")
	dst := h.NewHome("dst")
	h.WriteTree(src, testutil.SampleHome)
	path := filepath.Join(h.TempDir(), "export.dar")

	sysProps := props.Map{platform.KeystoreProperty: "etc/keystores/serverKeystore.jks"}
	opts := archive.Options{Encrypted: true}

	rep := migration.NewExportManager(migration.Environment{Home: src, Props: sysProps}, "1.0", platform.New()).Export(path, opts)
	require.NoError(t, rep.VerifyCompletion())

	h.WriteFile(dst, "etc/certs/stale.pem", "stale", 0644)

	rep = migration.NewImportManager(migration.Environment{Home: dst, Props: sysProps}, "1.0", platform.New()).Import(path, opts)
	require.NoError(t, rep.VerifyCompletion())

	for _, f := range []string{
		platform.CustomSystemProperties,
		platform.UsersProperties,
		"etc/certs/1.pem",
		"etc/certs/2.pem",
		"etc/certs/sub/3.pem",
		"etc/keystores/serverKeystore.jks",
	} {
		testutil.CompareFiles(t, src.Resolve(f), dst.Resolve(f))
	}
	h.AssertFileNotExists(dst.Resolve("etc/certs/stale.pem"))
	h.AssertFileMode(dst.Resolve(platform.UsersProperties), 0600)
}

func TestPlatformOptionalContent(t *testing.T) {
	h := testutil.NewTestHelpers(t)
	src := h.NewHome("src")
	dst := h.NewHome("dst")
	h.WriteFile(src, platform.CustomSystemProperties, "a=b\n", 0644)
	path := filepath.Join(h.TempDir(), "export.dar")

	rep := migration.NewExportManager(migration.Environment{Home: src}, "1.0", platform.New()).Export(path, archive.Options{})
	require.NoError(t, rep.VerifyCompletion())

	rep = migration.NewImportManager(migration.Environment{Home: dst}, "1.0", platform.New()).Import(path, archive.Options{})
	require.NoError(t, rep.VerifyCompletion())
	h.AssertFileContent(dst.Resolve(platform.CustomSystemProperties), "a=b\n")
}

func TestPlatformRequiresSystemProperties(t *testing.T) {
	h := testutil.NewTestHelpers(t)
	src := h.NewHome("src")
	path := filepath.Join(h.TempDir(), "export.dar")

	rep := migration.NewExportManager(migration.Environment{Home: src}, "1.0", platform.New()).Export(path, archive.Options{})
	err := rep.VerifyCompletion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), platform.CustomSystemProperties)
}

func TestPlatformIncompatibleVersion(t *testing.T) {
	err := platform.New().DoIncompatibleImport(nil, "0.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[0.9]")
}
