// Package diagnostics implements the "shared error sink" §7 refers to:
// a place lowering, analysis, and transformation stages record
// recoverable problems without aborting the whole pipeline.
package diagnostics

import "fmt"

// Severity classifies a diagnostic (§7).
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Diagnostic is one recorded problem: which pipeline stage produced
// it, how severe it is, a message, and an optional source location or
// IR location string (a function/block name — this module has no
// debug-info line tracking, §1 Non-goals).
type Diagnostic struct {
	Stage    string
	Severity Severity
	Message  string
	Location string
}

func (d Diagnostic) String() string {
	if d.Location != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", d.Stage, d.Severity, d.Message, d.Location)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Stage, d.Severity, d.Message)
}

// Sink accumulates diagnostics across a compilation run.
type Sink struct {
	records []Diagnostic
}

// NewSink creates an empty sink.
func NewSink() *Sink { return &Sink{} }

// Warnf records a warning (§7: "analysis impossibilities", "iteration
// overrun" — both log and continue).
func (s *Sink) Warnf(stage, location, format string, args ...interface{}) {
	s.records = append(s.records, Diagnostic{Stage: stage, Severity: Warning, Message: fmt.Sprintf(format, args...), Location: location})
}

// Errorf records an error. Per §7, a lowering error that reaches here
// means the offending function is skipped — the caller is responsible
// for stopping that function's processing, Errorf only records it.
func (s *Sink) Errorf(stage, location, format string, args ...interface{}) {
	s.records = append(s.records, Diagnostic{Stage: stage, Severity: Error, Message: fmt.Sprintf(format, args...), Location: location})
}

// Records returns every diagnostic recorded so far, in order.
func (s *Sink) Records() []Diagnostic { return s.records }

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	for _, d := range s.records {
		if d.Severity == Error {
			return true
		}
	}
	return false
}
