package wdlp

import (
	"errors"
	"fmt"
)

// Error kinds. Every error the pipeline produces unwraps to one of these, so
// callers can classify with errors.Is.
var (
	// ErrFraming is a grammar violation: unterminated field or record, or an
	// illegal byte sequence.
	ErrFraming = errors.New("framing error")
	// ErrConstraint is a field length or field count limit being exceeded.
	ErrConstraint = errors.New("constraint error")
	// ErrDiscriminatorMismatch is a record type code that doesn't match the schema.
	ErrDiscriminatorMismatch = errors.New("discriminator mismatch")
	// ErrFieldValidation is a type, range or pattern failure on one field.
	ErrFieldValidation = errors.New("field validation error")
	// ErrColumnCount is a raw field count that differs from the schema's.
	ErrColumnCount = errors.New("column count mismatch")
	// ErrResource is an I/O failure on input, staging or destination.
	ErrResource = errors.New("resource error")

	ErrInterrupted   = errors.New("processing interrupted")
	ErrSessionOpen   = errors.New("write session already open for destination")
	ErrSessionClosed = errors.New("write session closed")
	ErrUnknownFormat = errors.New("unknown output format")
	ErrInvalidSchema = errors.New("invalid schema")
)

// IsDataError reports whether err is a deterministic data error. Data errors
// reproduce on every run with the same input, so there is no point retrying.
func IsDataError(err error) bool {
	return errors.Is(err, ErrFraming) ||
		errors.Is(err, ErrConstraint) ||
		errors.Is(err, ErrDiscriminatorMismatch) ||
		errors.Is(err, ErrFieldValidation) ||
		errors.Is(err, ErrColumnCount)
}

// ErrorKind names the kind of err for logs, metrics and the ledger.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFraming):
		return "framing"
	case errors.Is(err, ErrConstraint):
		return "constraint"
	case errors.Is(err, ErrDiscriminatorMismatch):
		return "discriminator"
	case errors.Is(err, ErrFieldValidation):
		return "field_validation"
	case errors.Is(err, ErrColumnCount):
		return "column_count"
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	case errors.Is(err, ErrResource):
		return "resource"
	default:
		return "other"
	}
}

// A ParseError is the terminal error of a Parser. It carries the position of
// the violating byte and what had been collected of the record so far.
type ParseError struct {
	Kind     error // ErrFraming or ErrConstraint
	Line     uint64
	Column   uint64 // 1-based byte column within Line
	Offset   uint64 // 0-based byte offset within the stream
	Expected string
	Received string

	// Fields completed before the error, and a bounded preview of the field
	// in progress.
	PartialFields []string
	PartialField  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v at line %d, column %d: expected %s, got %s",
		e.Kind, e.Line, e.Column, e.Expected, e.Received)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

// A MappingError says which field of which record failed and why.
type MappingError struct {
	Kind       error // ErrColumnCount, ErrDiscriminatorMismatch or ErrFieldValidation
	SourceLine uint64
	FieldName  string
	Expected   string
	Received   string
	Record     RawRecord
}

func (e *MappingError) Error() string {
	if e.FieldName == "" {
		return fmt.Sprintf("%v at line %d: expected %s, got %s",
			e.Kind, e.SourceLine, e.Expected, e.Received)
	}
	return fmt.Sprintf("%v at line %d, field %q: expected %s, got %q",
		e.Kind, e.SourceLine, e.FieldName, e.Expected, e.Received)
}

func (e *MappingError) Unwrap() error {
	return e.Kind
}

// A ResourceError wraps an I/O failure with the operation and path involved.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() []error {
	return []error{ErrResource, e.Err}
}

func resourceError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &ResourceError{Op: op, Path: path, Err: err}
}
