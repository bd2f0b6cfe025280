package models

import (
	"fmt"
	"strings"
)

// Operation tags a report with the kind of migration it tracks.
type Operation string

const (
	OperationExport  Operation = "EXPORT"
	OperationImport  Operation = "IMPORT"
	OperationDecrypt Operation = "DECRYPT"
)

// ParseOperation parses a case insensitive operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToUpper(strings.TrimSpace(s))); op {
	case OperationExport, OperationImport, OperationDecrypt:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation: %q", s)
	}
}

// Verb returns the lower case verb used in messages.
func (o Operation) Verb() string {
	return strings.ToLower(string(o))
}
