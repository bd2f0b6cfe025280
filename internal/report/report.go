// Package report accumulates the outcome of a migration operation.
package report

import (
	"errors"
	"time"

	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/models"
)

// Report records infos, warnings and errors of one export, import or decrypt
// operation, in recording order. Checks registered with DoAfterCompletion run
// once, when the report is first finalized.
//
// A report is not safe for concurrent use.
type Report struct {
	op        models.Operation
	start     time.Time
	end       time.Time
	infos     []*models.Info
	warnings  []*models.Warning
	errs      []error
	callbacks []func(*Report)
	finalized bool
	logger    *events.Logger
}

// New creates a report for op starting now.
func New(op models.Operation, logger *events.Logger) *Report {
	if logger == nil {
		logger = events.Nop()
	}
	return &Report{
		op:     op,
		start:  time.Now(),
		logger: logger.WithField("operation", op.Verb()),
	}
}

// Operation returns the reported operation.
func (r *Report) Operation() models.Operation {
	return r.op
}

// StartTime returns when the operation started.
func (r *Report) StartTime() time.Time {
	return r.start
}

// EndTime returns when the operation ended, zero until End is called.
func (r *Report) EndTime() time.Time {
	return r.end
}

// RecordInfo records an informational message.
func (r *Report) RecordInfo(msg string) *Report {
	r.infos = append(r.infos, &models.Info{Message: msg})
	r.logger.Info(msg)
	return r
}

// RecordWarning records a warning.
func (r *Report) RecordWarning(w *models.Warning) *Report {
	r.warnings = append(r.warnings, w)
	r.logger.WithFields(map[string]interface{}{
		"migratable": w.MigratableID,
		"path":       w.Path,
	}).Warn(w.Message)
	return r
}

// RecordError records an error. Migration errors without an operation are
// tagged with the reported one.
func (r *Report) RecordError(err error) *Report {
	if err == nil {
		return r
	}

	var merr *models.MigrationError
	if errors.As(err, &merr) && merr.Op == "" {
		merr.Op = r.op
	}

	r.errs = append(r.errs, err)
	r.logger.WithError(err).Error("migration error recorded")
	return r
}

// DoAfterCompletion registers fn to run when the report is finalized. Checks
// registered after finalization run immediately.
func (r *Report) DoAfterCompletion(fn func(*Report)) *Report {
	if r.finalized {
		fn(r)
		return r
	}
	r.callbacks = append(r.callbacks, fn)
	return r
}

// HasWarnings finalizes the report and reports whether warnings were recorded.
func (r *Report) HasWarnings() bool {
	r.finalize()
	return len(r.warnings) > 0
}

// HasErrors finalizes the report and reports whether errors were recorded.
func (r *Report) HasErrors() bool {
	r.finalize()
	return len(r.errs) > 0
}

// WasSuccessful finalizes the report and reports whether no errors were
// recorded.
func (r *Report) WasSuccessful() bool {
	return !r.HasErrors()
}

// ErrorCount returns the number of errors recorded so far without finalizing.
func (r *Report) ErrorCount() int {
	return len(r.errs)
}

// Infos returns the recorded infos.
func (r *Report) Infos() []*models.Info {
	return append([]*models.Info(nil), r.infos...)
}

// Warnings returns the recorded warnings.
func (r *Report) Warnings() []*models.Warning {
	return append([]*models.Warning(nil), r.warnings...)
}

// Errors returns the recorded errors.
func (r *Report) Errors() []error {
	return append([]error(nil), r.errs...)
}

// VerifyCompletion finalizes the report and returns nil when no errors were
// recorded, the error itself when exactly one was, and a
// *models.CompoundError otherwise.
func (r *Report) VerifyCompletion() error {
	r.finalize()

	switch len(r.errs) {
	case 0:
		return nil
	case 1:
		return r.errs[0]
	default:
		suppressed := make([]error, len(r.errs)-1)
		copy(suppressed, r.errs[1:])
		return &models.CompoundError{Cause: r.errs[0], Suppressed: suppressed}
	}
}

// End stamps the end time and finalizes the report.
func (r *Report) End() *Report {
	if r.end.IsZero() {
		r.end = time.Now()
	}
	r.finalize()
	return r
}

func (r *Report) finalize() {
	if r.finalized {
		return
	}
	r.finalized = true

	// Callbacks may register further callbacks.
	for i := 0; i < len(r.callbacks); i++ {
		r.callbacks[i](r)
	}
	r.callbacks = nil
}
