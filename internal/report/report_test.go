package report_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
	"github.com/TheMichaelB/migrator/internal/report"
)

func TestVerifyCompletion(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")
	e3 := errors.New("third")

	tests := []struct {
		name   string
		errs   []error
		verify func(t *testing.T, err error)
	}{
		{
			name: "no errors",
			verify: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "single error rethrown as is",
			errs: []error{e1},
			verify: func(t *testing.T, err error) {
				assert.Same(t, e1, err)
			},
		},
		{
			name: "several errors compounded in order",
			errs: []error{e1, e2, e3},
			verify: func(t *testing.T, err error) {
				var compound *models.CompoundError
				require.ErrorAs(t, err, &compound)
				assert.Same(t, e1, compound.Cause)
				assert.Equal(t, []error{e2, e3}, compound.Suppressed)
				assert.ErrorIs(t, err, e3)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := report.New(models.OperationImport, nil)
			for _, err := range tt.errs {
				r.RecordError(err)
			}
			tt.verify(t, r.VerifyCompletion())
		})
	}
}

func TestAfterCompletionRunsOnce(t *testing.T) {
	r := report.New(models.OperationImport, nil)

	calls := 0
	r.DoAfterCompletion(func(*report.Report) { calls++ })
	assert.Equal(t, 0, calls, "never before finalization")

	r.HasWarnings()
	r.HasErrors()
	r.WasSuccessful()
	r.VerifyCompletion()
	r.End()

	assert.Equal(t, 1, calls)
}

func TestAfterCompletionErrorsAreReported(t *testing.T) {
	r := report.New(models.OperationImport, nil)
	checkErr := errors.New("property changed")

	r.DoAfterCompletion(func(rep *report.Report) {
		rep.RecordError(checkErr)
		// Nested registration still runs during this finalization.
		rep.DoAfterCompletion(func(rep *report.Report) {
			rep.RecordWarning(&models.Warning{Message: "nested"})
		})
	})

	assert.Equal(t, 0, r.ErrorCount())
	assert.Same(t, checkErr, r.VerifyCompletion())
	assert.Len(t, r.Warnings(), 1)
	assert.False(t, r.WasSuccessful())
}

func TestAfterCompletionAfterFinalization(t *testing.T) {
	r := report.New(models.OperationExport, nil).End()

	calls := 0
	r.DoAfterCompletion(func(*report.Report) { calls++ })
	assert.Equal(t, 1, calls)

	r.End()
	assert.Equal(t, 1, calls)
}

func TestRecordErrorTagsOperation(t *testing.T) {
	r := report.New(models.OperationImport, nil)

	err := models.WrapError(models.ErrNotExported, models.ErrCodeImport, "restore").
		WithMigratable("platform").
		WithPath("etc/users.properties")
	r.RecordError(err)

	assert.Equal(t, models.OperationImport, err.Op)
	assert.Equal(t, "import error [IMPORT_ERROR]: platform: [etc/users.properties]: restore: was not exported", err.Error())

	r.RecordError(nil)
	assert.Equal(t, 1, r.ErrorCount())
}

func TestEnd(t *testing.T) {
	r := report.New(models.OperationDecrypt, nil)
	assert.True(t, r.EndTime().IsZero())

	r.End()
	end := r.EndTime()
	assert.False(t, end.IsZero())
	assert.False(t, end.Before(r.StartTime()))

	r.End()
	assert.Equal(t, end, r.EndTime())
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	r := report.New(models.OperationExport, logger)
	r.RecordInfo("exported platform")
	r.RecordWarning(&models.Warning{MigratableID: "platform", Path: "/etc/hosts", Message: "must be copied manually"})
	r.RecordError(errors.New("boom"))
	r.End()

	s := r.Summary()
	assert.Equal(t, "export", s.Operation)
	assert.False(t, s.Success)
	assert.Equal(t, []string{"exported platform"}, s.Infos)
	assert.Equal(t, []string{"platform: [/etc/hosts]: must be copied manually"}, s.Warnings)
	assert.Equal(t, []string{"boom"}, s.Errors)
	assert.GreaterOrEqual(t, s.Duration.Nanoseconds(), int64(0))

	assert.Contains(t, buf.String(), `"operation":"export"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestAccessorsReturnCopies(t *testing.T) {
	r := report.New(models.OperationExport, nil)
	r.RecordError(errors.New("a"))

	errs := r.Errors()
	errs[0] = nil

	assert.Error(t, r.Errors()[0])
	assert.True(t, r.HasErrors())
	assert.Empty(t, r.Infos())
}
