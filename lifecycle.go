package tabcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/tabcache/store"
)

func (c *cache) CreateTable(ctx context.Context, sch Schema, members []string) error {
	if sch.Name == metatableName {
		return validationErr(sch.Name, "", "table name is reserved for the metatable")
	}
	if len(members) == 0 {
		members = c.defaultMembers
	}
	sch.Version = 0
	sch.Replicas = append([]string(nil), members...)
	if err := sch.validate(); err != nil {
		return err
	}

	mu := c.tableLock(sch.Name)
	if !mu.TryLock() {
		c.hooks.TxAborted("create_table", sch.Name, "concurrent schema operation")
		return newAborted("create_table", sch.Name, "concurrent schema operation", nil)
	}
	defer mu.Unlock()

	switch _, err := c.tableInfo(ctx, sch.Name); {
	case err == nil:
		return newAborted("create_table", sch.Name, "table already exists", nil)
	case !errors.Is(err, ErrNoTable):
		return err
	}

	if err := c.st.CreateTable(ctx, sch.Name, sch.Arity(), members); err != nil {
		switch {
		case errors.Is(err, store.ErrTableExists):
			return newAborted("create_table", sch.Name, "table already exists", err)
		case errors.Is(err, store.ErrMemberDown):
			return newAborted("create_table", sch.Name, "replica member unreachable", err)
		}
		c.hooks.StoreError("create_table", sch.Name, err)
		return err
	}

	if err := c.writeSchemaRow(ctx, &sch); err != nil {
		// compensate so neither the physical table nor the registry entry
		// survives a partial create
		_ = c.st.DropTable(ctx, sch.Name)
		c.hooks.TxAborted("create_table", sch.Name, "registry insert failed")
		return newAborted("create_table", sch.Name, "registry insert failed", err)
	}

	c.rememberSchema(sch)
	c.log.Info("table created", Fields{"table": sch.Name, "fields": sch.Arity(), "members": members})
	return nil
}

func (c *cache) CreateTables(ctx context.Context, schemas []Schema, members []string) error {
	for _, sch := range schemas {
		if err := c.CreateTable(ctx, sch, members); err != nil {
			return err
		}
	}
	return nil
}

func (c *cache) UpgradeTable(ctx context.Context, table string, newFields []Field) error {
	return c.upgrade(ctx, table, nil, 0, newFields)
}

func (c *cache) UpgradeTableVersion(ctx context.Context, table string, oldVersion, newVersion uint32, newFields []Field) error {
	if newVersion <= oldVersion {
		return validationErr(table, "", "new version must be greater than the old version")
	}
	return c.upgrade(ctx, table, &oldVersion, newVersion, newFields)
}

// UpgradeMetatable brings the registry's own schema row up to the format
// this build expects. Deployments that never changed the registry format see
// a no-op; older, narrower formats are widened like any other table.
func (c *cache) UpgradeMetatable(ctx context.Context) error {
	target := metatableSchema(nil)
	cur, err := c.tableInfo(ctx, metatableName)
	if err != nil {
		return err
	}
	if fieldsEqual(cur.Fields, target.Fields) {
		return nil
	}
	return c.upgrade(ctx, metatableName, nil, 0, target.Fields)
}

// upgrade widens a table's schema and migrates every live record, all inside
// one safe transaction: either the records carry the new fields and the
// version is bumped, or nothing changed. expectVersion, when non-nil, must
// match the stored version; newVersion 0 means "current + 1".
func (c *cache) upgrade(ctx context.Context, table string, expectVersion *uint32, newVersion uint32, newFields []Field) error {
	mu := c.tableLock(table)
	if !mu.TryLock() {
		c.hooks.TxAborted("upgrade_table", table, "concurrent schema operation")
		return newAborted("upgrade_table", table, "concurrent schema operation", nil)
	}
	defer mu.Unlock()

	var fromV, toV uint32
	var migrated int
	err := c.st.Safe(ctx, func(tx store.Tx) error {
		rec, ok, err := tx.Read(ctx, metatableName, table)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoTable
		}
		sch, okRow := decodeSchemaRow(rec)
		if !okRow {
			return newAborted("upgrade_table", table, "corrupt schema row", nil)
		}
		if expectVersion != nil && sch.Version != *expectVersion {
			return newAborted("upgrade_table", table,
				fmt.Sprintf("version is %d, expected %d", sch.Version, *expectVersion), nil)
		}

		next := sch
		next.Fields = append([]Field(nil), newFields...)
		if newVersion == 0 {
			next.Version = sch.Version + 1
		} else {
			if newVersion <= sch.Version {
				return validationErr(table, "", "new version must be greater than the current version")
			}
			next.Version = newVersion
		}
		if err := next.validate(); err != nil {
			return err
		}
		added, widening := addedFields(sch.Fields, next.Fields)
		if !widening {
			return validationErr(table, "",
				"new fields must be a superset keeping current names and positions")
		}

		// rewrite every record in place with the absence marker in the
		// appended positions; commits together with the version bump
		if len(added) > 0 {
			all, err := tx.All(ctx, table)
			if err != nil {
				return err
			}
			for _, r := range all {
				wide := make(Record, 0, len(r)+len(added))
				wide = append(wide, r...)
				for range added {
					wide = append(wide, Unset)
				}
				if err := tx.Write(ctx, table, wide); err != nil {
					return err
				}
			}
			migrated = len(all)
		}

		fromV, toV = sch.Version, next.Version
		return c.writeSchemaRowTx(ctx, tx, &next)
	})
	if err != nil {
		var ae *AbortedError
		if errors.As(err, &ae) {
			c.hooks.TxAborted(ae.Op, ae.Table, ae.Reason)
		}
		return err
	}

	c.invalidateSchema(table)
	c.hooks.SchemaUpgraded(table, fromV, toV, migrated)
	c.log.Info("table upgraded", Fields{"table": table, "from": fromV, "to": toV, "migrated": migrated})
	return nil
}

func (c *cache) DropTable(ctx context.Context, table string) error {
	if table == metatableName {
		return validationErr(table, "", "the metatable cannot be dropped")
	}

	mu := c.tableLock(table)
	if !mu.TryLock() {
		c.hooks.TxAborted("drop_table", table, "concurrent schema operation")
		return newAborted("drop_table", table, "concurrent schema operation", nil)
	}
	defer mu.Unlock()

	err := c.st.Safe(ctx, func(tx store.Tx) error {
		_, ok, err := tx.Read(ctx, metatableName, table)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoTable
		}
		return tx.Delete(ctx, metatableName, table)
	})
	if err != nil {
		return err
	}

	if err := c.st.DropTable(ctx, table); err != nil && !errors.Is(err, store.ErrNoSuchTable) {
		c.hooks.StoreError("drop_table", table, err)
		return err
	}
	c.invalidateSchema(table)
	c.log.Info("table dropped", Fields{"table": table})
	return nil
}

func fieldsEqual(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
