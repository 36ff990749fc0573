/*
errors.go - Error taxonomy for ingestion, persistence, and sessions

PURPOSE:
  All error types in one place. Packages return these (wrapped with context
  via fmt.Errorf %w) and the API maps them to HTTP status codes.

ERROR CATEGORIES:
  1. ParseError             - upload could not be decoded
  2. UnsupportedFormatError - upload extension is not csv/xlsx
  3. ValidationError        - bad identifier or payload shape
  4. NotFoundError          - unit, repair item, or store file absent
  5. ErrStoreUnavailable    - no active store yet

USAGE:
  if errors.Is(err, repairs.ErrNotFound) { ... 404 ... }

  var perr *repairs.ParseError
  if errors.As(err, &perr) { log.Printf("bad upload %s", perr.File) }
*/
package repairs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrParse is returned when an uploaded file cannot be decoded in its
	// declared format.
	ErrParse = errors.New("parse error")

	// ErrUnsupportedFormat is returned for any extension other than the
	// delimited text and workbook formats.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrValidation is returned when an identifier or payload is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a unit, repair item, or store file is absent.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable is returned when no store is active.
	ErrStoreUnavailable = errors.New("no database loaded")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ParseError describes a file that could not be decoded.
type ParseError struct {
	File   string
	Format string
	Line   int // 0 when unknown
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot parse %s as %s", e.File, e.Format)
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// UnsupportedFormatError names the extension that was rejected.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return "unsupported file type: no extension"
	}
	return fmt.Sprintf("unsupported file type: %s", e.Extension)
}

func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the kind and key of a missing resource.
type NotFoundError struct {
	Kind string // "unit", "repair item", "database"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// ParseID parses a positive integer identifier taken from a URL path.
func ParseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("%q is not an integer", raw)}
	}
	if id <= 0 {
		return 0, &ValidationError{Field: field, Message: "must be a positive integer"}
	}
	return id, nil
}

// IsClientError returns true if the error is due to invalid client input or
// a missing store, both of which the caller can fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrParse) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
