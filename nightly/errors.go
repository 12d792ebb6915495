package nightly

import (
	"errors"
	"fmt"
)

// ErrNoTag reports that a line does not begin with a parseable <TAG>.
// Most callers treat it as "this line continues the previous field"
// rather than as a failure.
var ErrNoTag = errors.New("no tag found")

// MissingFieldError reports a record that lacks a field every record type
// requires. It indicates a malformed feed file.
type MissingFieldError struct {
	RecordType string
	Field      string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record type %s: missing required field %q", e.RecordType, e.Field)
}

// SchemaNotReadyError reports that a destination table is absent. The
// schema must be migrated before loading.
type SchemaNotReadyError struct {
	Table string
}

func (e *SchemaNotReadyError) Error() string {
	return fmt.Sprintf("table %s does not exist, run migrations first", e.Table)
}

// StorageError wraps an insert or transaction failure together with the
// statement that caused it.
type StorageError struct {
	Stmt string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage write failed: %v (statement: %s)", e.Err, e.Stmt)
}

func (e *StorageError) Unwrap() error { return e.Err }
