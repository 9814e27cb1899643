// Package tabcache is a schema-aware caching layer on top of a replicated,
// transactional table store. Callers declare logical tables with a versioned
// field schema, a time-to-live policy and a replica set, and get uniform
// read/write/delete access at two consistency levels.
//
// Components:
//   - store.Store: the underlying replicated table store (in-memory, Redis,
//     or any implementation of the interface).
//   - Metatable registry: the catalog of table schemas, itself stored as a
//     table in the same store and bootstrapped first via InitMetatable.
//   - Lifecycle: CreateTable materializes a table and registers its schema
//     atomically; UpgradeTable migrates live records to a widened schema in
//     one transaction.
//   - Accessor: KeyExists/Get/GetFromIndex/GetLastEntered/GetAfter/Set/Remove,
//     each in a default-transaction form and an explicit TxType form (Safe or
//     Dirty). Every read applies the table's TTL policy: an expired record is
//     indistinguishable from an absent one. Expiry is read-time only; there
//     is no background sweep.
//
// Typical use:
//
//	st := mem.New()
//	tc, _ := tabcache.New(tabcache.Options{Store: st})
//	_ = tc.InitMetatable(ctx, nil)
//	_ = tc.CreateTable(ctx, tabcache.Schema{
//	    Name:          "sessions",
//	    Fields:        []tabcache.Field{{"id", 1}, {"user", 2}, {"last_seen", 3}},
//	    TTL:           60,
//	    LastUpdatePos: 3,
//	}, nil)
//	_ = tc.Set(ctx, "sessions", tabcache.Record{1, "ada", now})
//	rec, ok, _ := tc.Get(ctx, "sessions", 1)
package tabcache
