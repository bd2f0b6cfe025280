package models_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/migrator/internal/models"
)

func TestMigrationError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.MigrationError
		want string
	}{
		{
			name: "with migratable and path",
			err: &models.MigrationError{
				Code:         models.ErrCodeImport,
				Op:           models.OperationImport,
				MigratableID: "platform",
				Path:         "etc/users.properties",
				Message:      "was not exported",
			},
			want: "import error [IMPORT_ERROR]: platform: [etc/users.properties]: was not exported",
		},
		{
			name: "with wrapped error",
			err: &models.MigrationError{
				Code:    models.ErrCodeKey,
				Message: "failed to load key",
				Err:     errors.New("encoding/hex: invalid byte"),
			},
			want: "migration error [KEY_ERROR]: failed to load key: encoding/hex: invalid byte",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIntegrityError(t *testing.T) {
	err := &models.IntegrityError{
		Path:     "etc/test.cfg",
		Expected: "abc123",
		Actual:   "def456",
	}

	want := "integrity check failed for etc/test.cfg: expected abc123, got def456"
	assert.Equal(t, want, err.Error())
}

func TestCompoundError(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")
	e3 := errors.New("third")

	err := &models.CompoundError{Cause: e1, Suppressed: []error{e2, e3}}

	assert.Equal(t, "first (and 2 more error(s))", err.Error())
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e3)
	assert.Equal(t, []error{e1, e2, e3}, err.Unwrap())
}

func TestErrorUnwrapping(t *testing.T) {
	err := models.WrapError(models.ErrNotExported, models.ErrCodeImport, "restore failed").
		WithPath("etc/a").
		WithMigratable("m")

	assert.ErrorIs(t, err, models.ErrNotExported)
	assert.Equal(t, "etc/a", err.Path)
	assert.Equal(t, "m", err.MigratableID)
}

func TestWarningString(t *testing.T) {
	assert.Equal(t, "m: [etc/a]: checksum doesn't match",
		(&models.Warning{MigratableID: "m", Path: "etc/a", Message: "checksum doesn't match"}).String())
	assert.Equal(t, "[etc/a]: x", (&models.Warning{Path: "etc/a", Message: "x"}).String())
	assert.Equal(t, "plain", (&models.Warning{Message: "plain"}).String())
}

func TestParseOperation(t *testing.T) {
	op, err := models.ParseOperation(" export ")
	assert.NoError(t, err)
	assert.Equal(t, models.OperationExport, op)
	assert.Equal(t, "export", op.Verb())

	_, err = models.ParseOperation("backup")
	assert.Error(t, err)
}
