package tabcache

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/tabcache/store"
)

// metatableSchema is the registry's own schema as this build expects it.
// Rows are {name, def} where def is the CBOR-encoded Schema.
func metatableSchema(members []string) Schema {
	return Schema{
		Name:     metatableName,
		Fields:   []Field{{Name: "name", Pos: 1}, {Name: "def", Pos: 2}},
		Replicas: append([]string(nil), members...),
	}
}

func (c *cache) InitMetatable(ctx context.Context, members []string) error {
	if len(members) == 0 {
		members = c.defaultMembers
	}
	mu := c.tableLock(metatableName)
	if !mu.TryLock() {
		return newAborted("init_metatable", metatableName, "concurrent schema operation", nil)
	}
	defer mu.Unlock()

	sch := metatableSchema(members)
	if err := sch.validate(); err != nil {
		return err
	}

	err := c.st.CreateTable(ctx, metatableName, sch.Arity(), members)
	if errors.Is(err, store.ErrTableExists) {
		return nil // already initialized; repeated init is a no-op
	}
	if err != nil {
		c.hooks.StoreError("init_metatable", metatableName, err)
		return err
	}

	// the registry describes itself: its own schema is its first row
	if err := c.writeSchemaRow(ctx, &sch); err != nil {
		_ = c.st.DropTable(ctx, metatableName) // don't leave a half-initialized registry
		c.hooks.StoreError("init_metatable", metatableName, err)
		return err
	}
	c.log.Info("metatable initialized", Fields{"members": members})
	return nil
}

func (c *cache) Metatable(ctx context.Context) ([]Schema, error) {
	recs, err := c.st.Dirty().All(ctx, metatableName)
	if err != nil {
		c.hooks.StoreError("metatable", metatableName, err)
		return nil, err
	}
	out := make([]Schema, 0, len(recs))
	for _, rec := range recs {
		sch, ok := decodeSchemaRow(rec)
		if !ok {
			c.log.Warn("skipping undecodable metatable row", Fields{"key": rec[0]})
			continue
		}
		out = append(out, sch)
	}
	return out, nil
}

func (c *cache) TableInfo(ctx context.Context, table string) (Schema, error) {
	return c.tableInfo(ctx, table)
}

func (c *cache) TableVersion(ctx context.Context, table string) (uint32, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return 0, err
	}
	return sch.Version, nil
}

func (c *cache) TableTimeToLive(ctx context.Context, table string) (int64, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return 0, err
	}
	return sch.TTL, nil
}

func (c *cache) TableFields(ctx context.Context, table string) ([]Field, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	return append([]Field(nil), sch.Fields...), nil
}

func (c *cache) UpdateTableTimeToLive(ctx context.Context, table string, ttl int64) error {
	if ttl < 0 {
		return validationErr(table, "", "negative TTL")
	}
	if table == metatableName {
		return validationErr(table, "", "the metatable cannot expire")
	}

	mu := c.tableLock(table)
	if !mu.TryLock() {
		c.hooks.TxAborted("update_ttl", table, "concurrent schema operation")
		return newAborted("update_ttl", table, "concurrent schema operation", nil)
	}
	defer mu.Unlock()

	err := c.st.Safe(ctx, func(tx store.Tx) error {
		rec, ok, err := tx.Read(ctx, metatableName, table)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoTable
		}
		sch, ok := decodeSchemaRow(rec)
		if !ok {
			return newAborted("update_ttl", table, "corrupt schema row", nil)
		}
		sch.TTL = ttl
		if err := sch.validate(); err != nil {
			// e.g. enabling TTL on a table with no usable timestamp field
			return err
		}
		return c.writeSchemaRowTx(ctx, tx, &sch)
	})
	if err != nil {
		return err
	}
	c.invalidateSchema(table)
	c.log.Debug("table TTL updated", Fields{"table": table, "ttl": ttl})
	return nil
}

// tableInfo serves schema lookups, consulting the in-process cache first.
func (c *cache) tableInfo(ctx context.Context, table string) (Schema, error) {
	if sch, ok := c.cachedSchema(table); ok {
		return sch, nil
	}
	rec, ok, err := c.st.Dirty().Read(ctx, metatableName, table)
	if err != nil {
		c.hooks.StoreError("table_info", table, err)
		return Schema{}, err
	}
	if !ok {
		return Schema{}, ErrNoTable
	}
	sch, okRow := decodeSchemaRow(rec)
	if !okRow {
		return Schema{}, newAborted("table_info", table, "corrupt schema row", nil)
	}
	c.rememberSchema(sch)
	return sch, nil
}

func decodeSchemaRow(rec Record) (Schema, bool) {
	if len(rec) < 2 {
		return Schema{}, false
	}
	blob, ok := rec[1].([]byte)
	if !ok {
		return Schema{}, false
	}
	sch, err := decodeSchema(blob)
	if err != nil {
		return Schema{}, false
	}
	return sch, true
}

func (c *cache) writeSchemaRow(ctx context.Context, sch *Schema) error {
	return c.st.Safe(ctx, func(tx store.Tx) error {
		return c.writeSchemaRowTx(ctx, tx, sch)
	})
}

func (c *cache) writeSchemaRowTx(ctx context.Context, tx store.Tx, sch *Schema) error {
	blob, err := encodeSchema(sch)
	if err != nil {
		return err
	}
	return tx.Write(ctx, metatableName, Record{sch.Name, blob})
}
