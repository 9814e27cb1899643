// Package store defines the replicated table-store abstraction consumed by
// tabcache.
//
// A Store keeps named tables of records, replicated across a set of named
// members, and exposes two execution modes: Safe runs a callback inside a
// fully isolated transaction that commits everything or nothing, while Dirty
// hands out a handle that operates directly on local replica state with no
// isolation. Implementations MUST keep the key space of every table totally
// ordered under keyorder (numbers < atoms < strings < composites, recursive),
// since cursor operations (First/Last/Next/Prev) are defined against that
// order.
//
// Stores are schema-unaware byte-pushers for records: they never inspect
// field meaning beyond position 0 being the record key. TTL filtering, schema
// validation and versioning all live above this interface.
package store

import (
	"context"
	"errors"
)

// Record is a stored row. Position 0 holds the record key; the remaining
// positions are opaque field values.
type Record = []any

var (
	// ErrTableExists is returned by CreateTable when the table is already
	// materialized on any member.
	ErrTableExists = errors.New("store: table already exists")

	// ErrNoSuchTable is returned when an operation names a table that was
	// never created (or was dropped).
	ErrNoSuchTable = errors.New("store: no such table")

	// ErrMemberDown is returned when a replica member named in the operation
	// cannot be reached.
	ErrMemberDown = errors.New("store: replica member unreachable")

	// ErrAborted is returned by Safe when the transaction could not commit.
	// State is guaranteed unchanged.
	ErrAborted = errors.New("store: transaction aborted")
)

// Store is the replicated, transactional table store.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateTable materializes an empty table with the given field arity on
	// every listed member. Fails with ErrTableExists or ErrMemberDown.
	CreateTable(ctx context.Context, name string, arity int, members []string) error

	// DropTable removes the table and all its records from every member.
	// Dropping an unknown table returns ErrNoSuchTable.
	DropTable(ctx context.Context, name string) error

	// Safe runs fn inside an isolated transaction. If fn returns an error or
	// the store cannot commit, every change made through the Tx is rolled
	// back and the error (or ErrAborted) is returned.
	Safe(ctx context.Context, fn func(Tx) error) error

	// Dirty returns a handle that applies each operation immediately against
	// local replica state, with no isolation and no rollback.
	Dirty() Tx

	// Close releases resources.
	Close(ctx context.Context) error
}

// Tx is the record-level surface shared by safe transactions and dirty
// handles. Cursor methods return whole records; callers derive the cursor
// position from the record key at position 0.
type Tx interface {
	// Read returns the record stored under key, or ok=false when absent.
	Read(ctx context.Context, table string, key any) (Record, bool, error)

	// MatchIndex returns every record whose field at fieldIdx (0-based)
	// equals value under the keyorder equality. The result order is
	// unspecified.
	MatchIndex(ctx context.Context, table string, fieldIdx int, value any) ([]Record, error)

	// Write inserts or replaces the record keyed by rec[0].
	Write(ctx context.Context, table string, rec Record) error

	// Delete removes the record under key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, table string, key any) error

	// All returns every record of the table in ascending key order.
	All(ctx context.Context, table string) ([]Record, error)

	// First and Last return the records with the smallest and largest keys.
	First(ctx context.Context, table string) (Record, bool, error)
	Last(ctx context.Context, table string) (Record, bool, error)

	// Next returns the record with the smallest key strictly greater than
	// after; Prev the record with the largest key strictly smaller than
	// before.
	Next(ctx context.Context, table string, after any) (Record, bool, error)
	Prev(ctx context.Context, table string, before any) (Record, bool, error)
}
