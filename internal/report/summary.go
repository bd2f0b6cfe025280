package report

import (
	"time"
)

// Summary is a rendering friendly snapshot of a report.
type Summary struct {
	Operation string        `json:"operation" yaml:"operation"`
	Start     time.Time     `json:"start" yaml:"start"`
	End       time.Time     `json:"end,omitempty" yaml:"end,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Success   bool          `json:"success" yaml:"success"`
	Infos     []string      `json:"infos,omitempty" yaml:"infos,omitempty"`
	Warnings  []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors    []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Summary finalizes the report and returns its snapshot.
func (r *Report) Summary() Summary {
	s := Summary{
		Operation: r.op.Verb(),
		Start:     r.start,
		End:       r.end,
		Success:   r.WasSuccessful(),
	}

	if !r.end.IsZero() {
		s.Duration = r.end.Sub(r.start)
	}

	for _, i := range r.infos {
		s.Infos = append(s.Infos, i.String())
	}
	for _, w := range r.warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	for _, err := range r.errs {
		s.Errors = append(s.Errors, err.Error())
	}

	return s
}
