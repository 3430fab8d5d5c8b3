package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDatasetNotFound is returned when a dataset does not exist or belongs to
// another owner.
var ErrDatasetNotFound = errors.New("dataset not found")

// SchemaValidationError reports canonical fields that no header resolved to.
type SchemaValidationError struct {
	Missing []string // canonical field names, in canonical order
}

func (e *SchemaValidationError) Error() string {
	return "Missing required columns: " + strings.Join(e.Missing, ", ") +
		". Expected columns like: " + strings.Join(DisplayHeaders, ", ") + "."
}

// EmptyTableError is returned when an upload has a header but no data rows.
type EmptyTableError struct{}

func (e *EmptyTableError) Error() string {
	return "CSV is empty."
}

// DecodeError wraps failures turning raw bytes into a table.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Unable to read CSV: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a permanent input problem whose
// message should be shown to the caller verbatim.
func IsValidationError(err error) bool {
	var schemaErr *SchemaValidationError
	var emptyErr *EmptyTableError
	var decodeErr *DecodeError
	return errors.As(err, &schemaErr) || errors.As(err, &emptyErr) || errors.As(err, &decodeErr)
}
