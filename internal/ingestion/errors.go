package ingestion

import "fmt"

// ParseError reports malformed or unexpected file structure. Row is 1-based
// and zero when the failure is not tied to a single row.
type ParseError struct {
	Source string
	Sheet  string
	Row    int
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s", e.Source)
	if e.Sheet != "" {
		msg += fmt.Sprintf(" sheet %q", e.Sheet)
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransformError reports a schema-mapping or unit-conversion failure.
type TransformError struct {
	Source string
	Field  string
	Err    error
}

func (e *TransformError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("transform %s field %q: %v", e.Source, e.Field, e.Err)
	}
	return fmt.Sprintf("transform %s: %v", e.Source, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
