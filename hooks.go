package tabcache

// Hooks are lightweight callbacks for high-signal events. Implementations
// MUST be cheap and non-blocking; the accessor calls them on hot read paths.
// Wrap with hooks/async to move work off the caller.
type Hooks interface {
	// A read filtered out a record whose TTL had elapsed. Expiry is
	// read-time only, so this is the only signal that a record aged out.
	RecordExpired(table string)

	// A schema or data transaction failed to commit.
	TxAborted(op, table, reason string)

	// UpgradeTable (or UpgradeMetatable) committed, carrying migrated
	// records from one version to the next.
	SchemaUpgraded(table string, fromVersion, toVersion uint32, migrated int)

	// A schema mutation dropped the cached schema for a table.
	SchemaCacheInvalidated(table string)

	// The store returned an infrastructure error that was passed through to
	// the caller.
	StoreError(op, table string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RecordExpired(string)                       {}
func (NopHooks) TxAborted(string, string, string)           {}
func (NopHooks) SchemaUpgraded(string, uint32, uint32, int) {}
func (NopHooks) SchemaCacheInvalidated(string)              {}
func (NopHooks) StoreError(string, string, error)           {}
