package props_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/migrator/internal/props"
)

func writeProps(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestMap(t *testing.T) {
	m := props.Map{"b": "2", "a": "1"}

	v, ok := m.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = m.Lookup("c")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, m.Names())
}

func TestFileSeesUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "custom.system.properties")
	src := props.NewFile(path)

	_, ok := src.Lookup("javax.net.ssl.keyStore")
	assert.False(t, ok, "missing file defines nothing")

	writeProps(t, path, "javax.net.ssl.keyStore=etc/keystores/serverKeystore.jks\n")
	v, ok := src.Lookup("javax.net.ssl.keyStore")
	require.True(t, ok)
	assert.Equal(t, "etc/keystores/serverKeystore.jks", v)

	writeProps(t, path, "javax.net.ssl.keyStore=etc/keystores/other.jks\n")
	v, _ = src.Lookup("javax.net.ssl.keyStore")
	assert.Equal(t, "etc/keystores/other.jks", v)
}

func TestFileNoExpansion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.properties")
	writeProps(t, path, "ddf.etc=${ddf.home}/etc\n")

	v, ok := props.NewFile(path).Lookup("ddf.etc")
	require.True(t, ok)
	assert.Equal(t, "${ddf.home}/etc", v)
}

func TestLayered(t *testing.T) {
	src := props.Layered{
		props.Map{"a": "first"},
		nil,
		props.Map{"a": "second", "b": "second"},
	}

	v, _ := src.Lookup("a")
	assert.Equal(t, "first", v)
	v, _ = src.Lookup("b")
	assert.Equal(t, "second", v)
	_, ok := src.Lookup("c")
	assert.False(t, ok)
}

func TestReadProperty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.codice.ddf.security.cfg")
	writeProps(t, path, "# comment\nkeystore = etc/keystores/serverKeystore.jks\nblank=\n")

	tests := []struct {
		name    string
		prop    string
		want    string
		defined bool
	}{
		{"defined", "keystore", "etc/keystores/serverKeystore.jks", true},
		{"blank", "blank", "", true},
		{"undefined", "truststore", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok, err := props.ReadProperty(path, tt.prop)
			require.NoError(t, err)
			assert.Equal(t, tt.defined, ok)
			assert.Equal(t, tt.want, v)
		})
	}

	_, _, err := props.ReadProperty(filepath.Join(t.TempDir(), "missing.cfg"), "keystore")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
