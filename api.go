package tabcache

import (
	"context"

	"github.com/unkn0wn-root/tabcache/env"
	"github.com/unkn0wn-root/tabcache/store"
)

// Cache is the public surface of the caching layer: the metatable registry,
// the table lifecycle operations and the TTL-aware data accessor.
//
// Data operations exist in two forms: the plain form runs with the default
// transaction type (Safe), the Tx form takes an explicit TxType. Absent and
// TTL-expired records are indistinguishable: both come back as empty results,
// never as errors.
type Cache interface {
	Close(ctx context.Context) error

	// Metatable registry.
	// InitMetatable bootstraps the registry's own table on the given members
	// (Options.DefaultMembers when nil). It is idempotent.
	InitMetatable(ctx context.Context, members []string) error
	// Metatable returns every registered schema.
	Metatable(ctx context.Context) ([]Schema, error)
	// TableInfo returns the schema for a table, or ErrNoTable.
	TableInfo(ctx context.Context, table string) (Schema, error)
	TableVersion(ctx context.Context, table string) (uint32, error)
	TableTimeToLive(ctx context.Context, table string) (int64, error)
	TableFields(ctx context.Context, table string) ([]Field, error)
	// UpdateTableTimeToLive atomically rewrites the stored TTL policy.
	UpdateTableTimeToLive(ctx context.Context, table string, ttl int64) error
	// TTLAndFieldIndex returns (ttl, lastUpdateFieldPos) for a table.
	TTLAndFieldIndex(ctx context.Context, table string) (int64, int, error)

	// Lifecycle.
	// CreateTable materializes the physical table on members and registers
	// schema version 0, atomically: on failure nothing is left behind.
	CreateTable(ctx context.Context, sch Schema, members []string) error
	CreateTables(ctx context.Context, schemas []Schema, members []string) error
	// UpgradeTable widens a table's schema to newFields (a superset of the
	// current fields), migrating every live record in the same transaction
	// and bumping the version by one.
	UpgradeTable(ctx context.Context, table string, newFields []Field) error
	// UpgradeTableVersion is UpgradeTable with an explicit version check:
	// it fails unless the current version equals oldVersion, and records
	// newVersion (which must be greater) on success.
	UpgradeTableVersion(ctx context.Context, table string, oldVersion, newVersion uint32, newFields []Field) error
	// UpgradeMetatable migrates the registry's own schema row to the format
	// this build expects, for registry evolution across deployments.
	UpgradeMetatable(ctx context.Context) error
	// DropTable removes the registry entry and the physical table.
	DropTable(ctx context.Context, table string) error

	// Data access, default transaction type (Safe).
	KeyExists(ctx context.Context, table string, key any) (bool, error)
	Get(ctx context.Context, table string, key any) (Record, bool, error)
	// GetFromIndex returns all visible records whose field named indexField
	// equals key. Secondary indexes need not be unique.
	GetFromIndex(ctx context.Context, table string, key any, indexField string) ([]Record, error)
	// GetLastEntered returns the visible record with the largest primary key.
	GetLastEntered(ctx context.Context, table string) (Record, bool, error)
	// GetAfter returns the visible record with the smallest primary key
	// strictly greater than afterKey; repeated calls walk the table forward.
	GetAfter(ctx context.Context, table string, afterKey any) (Record, bool, error)
	// Set inserts or replaces the record keyed by its primary key field.
	// When the table has a TTL the caller must populate the last-update
	// field itself; Set does not auto-stamp.
	Set(ctx context.Context, table string, rec Record) error
	// Remove deletes the record for key; removing an absent key succeeds.
	Remove(ctx context.Context, table string, key any) error

	// Data access with an explicit transaction type.
	KeyExistsTx(ctx context.Context, tt TxType, table string, key any) (bool, error)
	GetTx(ctx context.Context, tt TxType, table string, key any) (Record, bool, error)
	GetFromIndexTx(ctx context.Context, tt TxType, table string, key any, indexField string) ([]Record, error)
	GetLastEnteredTx(ctx context.Context, tt TxType, table string) (Record, bool, error)
	GetAfterTx(ctx context.Context, tt TxType, table string, afterKey any) (Record, bool, error)
	SetTx(ctx context.Context, tt TxType, table string, rec Record) error
	RemoveTx(ctx context.Context, tt TxType, table string, key any) error
}

// Options tune the cache. Only Store is required.
type Options struct {
	// Required
	Store store.Store

	Logger Logger // if nil, logging is disabled
	Hooks  Hooks  // if nil, NopHooks
	Clock  Clock  // if nil, a monotone wall clock in Unix seconds

	// DefaultMembers is the replica set used when a lifecycle call passes
	// nil members. When empty it is read from the environment
	// (TABCACHE_MEMBERS, see package env).
	DefaultMembers []string

	// SchemaCacheEntries bounds the in-process schema cache. 0 => 4096.
	SchemaCacheEntries int64
}

// New builds a Cache on top of the given store. Call InitMetatable before
// any lifecycle or data operation.
func New(opts Options) (Cache, error) {
	if opts.DefaultMembers == nil {
		opts.DefaultMembers = env.DefaultMembers()
	}
	return newCache(opts)
}
