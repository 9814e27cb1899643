package tabcache

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoTable is returned by metadata queries when the named table has no
// entry in the metatable registry. Data reads never return it for absent or
// expired records; those come back as empty results.
var ErrNoTable = errors.New("tabcache: no such table")

// AbortedError reports a schema or data transaction that could not commit.
// Store state is unchanged. ID is a per-abort correlation id for logs.
type AbortedError struct {
	Op     string // "create_table", "upgrade_table", ...
	Table  string
	Reason string
	ID     string
	Err    error // underlying store error, if any
}

func newAborted(op, table, reason string, err error) *AbortedError {
	return &AbortedError{Op: op, Table: table, Reason: reason, ID: uuid.NewString(), Err: err}
}

func (e *AbortedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tabcache: %s %q aborted (%s): %v [abort %s]", e.Op, e.Table, e.Reason, e.Err, e.ID)
	}
	return fmt.Sprintf("tabcache: %s %q aborted: %s [abort %s]", e.Op, e.Table, e.Reason, e.ID)
}

func (e *AbortedError) Unwrap() error { return e.Err }

// ValidationError reports a malformed schema or record, detected before any
// store mutation is attempted.
type ValidationError struct {
	Table  string
	Field  string // offending field name, empty for table-level problems
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tabcache: invalid schema for %q: field %q: %s", e.Table, e.Field, e.Reason)
	}
	return fmt.Sprintf("tabcache: invalid schema for %q: %s", e.Table, e.Reason)
}

func validationErr(table, field, reason string) *ValidationError {
	return &ValidationError{Table: table, Field: field, Reason: reason}
}
