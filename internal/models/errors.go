package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured error handling.
const (
	ErrCodeExport       = "EXPORT_ERROR"
	ErrCodeImport       = "IMPORT_ERROR"
	ErrCodeDecrypt      = "DECRYPT_ERROR"
	ErrCodeIntegrity    = "INTEGRITY_ERROR"
	ErrCodeMetadata     = "METADATA_ERROR"
	ErrCodeVersion      = "VERSION_ERROR"
	ErrCodeKey          = "KEY_ERROR"
	ErrCodeStorage      = "STORAGE_ERROR"
	ErrCodeProperty     = "PROPERTY_ERROR"
	ErrCodeNotInstalled = "NOT_INSTALLED"
	ErrCodeConfig       = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrNotExported        = errors.New("was not exported")
	ErrNotMigratable      = errors.New("is not migratable")
	ErrInvalidKey         = errors.New("invalid encryption key")
	ErrInvalidMetadata    = errors.New("invalid metadata")
	ErrMissingMetadata    = errors.New("missing metadata")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrNotInstalled       = errors.New("is not installed")
	ErrTampered           = errors.New("archive checksum does not match")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrPassphraseRequired = errors.New("passphrase required")
)

// MigrationError provides detailed migration failure information.
type MigrationError struct {
	Code         string
	Op           Operation
	MigratableID string
	Path         string
	Message      string
	Err          error
}

// NewError creates a migration error with a formatted message.
func NewError(code string, format string, args ...any) *MigrationError {
	return &MigrationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps err into a migration error with a formatted message.
func WrapError(err error, code string, format string, args ...any) *MigrationError {
	return &MigrationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// WithPath sets the path the error relates to.
func (e *MigrationError) WithPath(path string) *MigrationError {
	e.Path = path
	return e
}

// WithMigratable sets the migratable the error relates to.
func (e *MigrationError) WithMigratable(id string) *MigrationError {
	e.MigratableID = id
	return e
}

func (e *MigrationError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(strings.ToLower(string(e.Op)))
		sb.WriteString(" error")
	} else {
		sb.WriteString("migration error")
	}
	if e.Code != "" {
		fmt.Fprintf(&sb, " [%s]", e.Code)
	}
	if e.MigratableID != "" {
		fmt.Fprintf(&sb, ": %s", e.MigratableID)
	}
	if e.Path != "" {
		fmt.Fprintf(&sb, ": [%s]", e.Path)
	}
	if e.Message != "" {
		fmt.Fprintf(&sb, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// IntegrityError represents a checksum mismatch.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s",
		e.Path, e.Expected, e.Actual)
}

// CompoundError reports several errors recorded during one operation. Cause is
// the first one, Suppressed the remaining ones in recording order.
type CompoundError struct {
	Cause      error
	Suppressed []error
}

func (e *CompoundError) Error() string {
	return fmt.Sprintf("%v (and %d more error(s))", e.Cause, len(e.Suppressed))
}

// Unwrap exposes the cause followed by the suppressed errors.
func (e *CompoundError) Unwrap() []error {
	all := make([]error, 0, len(e.Suppressed)+1)
	all = append(all, e.Cause)
	return append(all, e.Suppressed...)
}

// Warning is a non fatal diagnostic recorded in a report.
type Warning struct {
	MigratableID string
	Path         string
	Message      string
}

func (w *Warning) String() string {
	switch {
	case w.MigratableID != "" && w.Path != "":
		return fmt.Sprintf("%s: [%s]: %s", w.MigratableID, w.Path, w.Message)
	case w.Path != "":
		return fmt.Sprintf("[%s]: %s", w.Path, w.Message)
	case w.MigratableID != "":
		return fmt.Sprintf("%s: %s", w.MigratableID, w.Message)
	default:
		return w.Message
	}
}

// Info is an informational message recorded in a report.
type Info struct {
	Message string
}

func (i *Info) String() string {
	return i.Message
}
