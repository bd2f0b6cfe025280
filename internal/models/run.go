package models

import (
	"fmt"
	"strings"
	"time"
)

// RunRecord is the persisted summary of one export, import or decrypt run.
type RunRecord struct {
	ID             string    `json:"id" yaml:"id"`
	Operation      Operation `json:"operation" yaml:"operation"`
	Archive        string    `json:"archive" yaml:"archive"`
	ProductVersion string    `json:"product_version,omitempty" yaml:"product_version,omitempty"`
	StartTime      time.Time `json:"start_time" yaml:"start_time"`
	EndTime        time.Time `json:"end_time" yaml:"end_time"`
	Success        bool      `json:"success" yaml:"success"`
	Warnings       []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors         []string  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Validate validates the record structure.
func (r *RunRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("run ID is required")
	}
	if _, err := ParseOperation(string(r.Operation)); err != nil {
		return err
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("start time is required")
	}
	if !r.EndTime.IsZero() && r.EndTime.Before(r.StartTime) {
		return fmt.Errorf("end time cannot precede start time")
	}
	return nil
}

// Clone creates a deep copy of the record.
func (r *RunRecord) Clone() *RunRecord {
	clone := *r
	clone.Warnings = append([]string(nil), r.Warnings...)
	clone.Errors = append([]string(nil), r.Errors...)
	return &clone
}
