package tabcache

import (
	"context"
	"fmt"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tabcache/store"
)

// metatableName is the reserved table holding every schema, its own included.
const metatableName = "tabcache_meta"

type cache struct {
	st    store.Store
	log   Logger
	hooks Hooks
	clock Clock

	defaultMembers []string

	// hot-path schema lookups; rows in the metatable stay authoritative
	schemas *rc.Cache

	// per-table coordinator for schema mutations; TryLock losers abort
	coord sync.Map // table name -> *sync.Mutex
}

func newCache(opts Options) (*cache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("tabcache: store is required")
	}

	entries := coalesce[int64](opts.SchemaCacheEntries, 4096)
	sc, err := rc.NewCache(&rc.Config{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	c := &cache{
		st:             opts.Store,
		schemas:        sc,
		defaultMembers: opts.DefaultMembers,
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.clock = opts.Clock
	if c.clock == nil {
		c.clock = &systemClock{}
	}
	return c, nil
}

func (c *cache) Close(ctx context.Context) error {
	if c.schemas != nil {
		c.schemas.Close()
	}
	if c.st != nil {
		return c.st.Close(ctx)
	}
	return nil
}

// run is the single dispatch point between the two consistency levels: it
// only decides whether fn sees a safe transaction or the dirty handle.
func (c *cache) run(ctx context.Context, tt TxType, fn func(store.Tx) error) error {
	if tt == Dirty {
		return fn(c.st.Dirty())
	}
	return c.st.Safe(ctx, fn)
}

// tableLock returns the coordinator mutex serializing schema mutations on a
// table. Callers TryLock it; the loser of a race aborts rather than waits.
func (c *cache) tableLock(table string) *sync.Mutex {
	m, _ := c.coord.LoadOrStore(table, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func (c *cache) cachedSchema(table string) (Schema, bool) {
	v, ok := c.schemas.Get(table)
	if !ok {
		return Schema{}, false
	}
	sch, ok := v.(Schema)
	return sch, ok
}

func (c *cache) rememberSchema(sch Schema) {
	c.schemas.Set(sch.Name, sch, 1)
}

// invalidateSchema drops the cached schema and waits for the drop to apply,
// so a metadata query right after a schema mutation cannot see the old shape.
func (c *cache) invalidateSchema(table string) {
	c.schemas.Del(table)
	c.schemas.Wait()
	c.hooks.SchemaCacheInvalidated(table)
}
