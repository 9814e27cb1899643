package tabcache

import (
	"context"

	"github.com/unkn0wn-root/tabcache/store"
)

// Default-transaction forms. Safe is the default everywhere a TxType is
// omitted.

func (c *cache) KeyExists(ctx context.Context, table string, key any) (bool, error) {
	return c.KeyExistsTx(ctx, Safe, table, key)
}

func (c *cache) Get(ctx context.Context, table string, key any) (Record, bool, error) {
	return c.GetTx(ctx, Safe, table, key)
}

func (c *cache) GetFromIndex(ctx context.Context, table string, key any, indexField string) ([]Record, error) {
	return c.GetFromIndexTx(ctx, Safe, table, key, indexField)
}

func (c *cache) GetLastEntered(ctx context.Context, table string) (Record, bool, error) {
	return c.GetLastEnteredTx(ctx, Safe, table)
}

func (c *cache) GetAfter(ctx context.Context, table string, afterKey any) (Record, bool, error) {
	return c.GetAfterTx(ctx, Safe, table, afterKey)
}

func (c *cache) Set(ctx context.Context, table string, rec Record) error {
	return c.SetTx(ctx, Safe, table, rec)
}

func (c *cache) Remove(ctx context.Context, table string, key any) error {
	return c.RemoveTx(ctx, Safe, table, key)
}

// Explicit-transaction forms.

func (c *cache) KeyExistsTx(ctx context.Context, tt TxType, table string, key any) (bool, error) {
	rec, ok, err := c.GetTx(ctx, tt, table, key)
	return ok && rec != nil, err
}

func (c *cache) GetTx(ctx context.Context, tt TxType, table string, key any) (Record, bool, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, false, err
	}
	now := c.clock.Now()

	var out Record
	var found bool
	err = c.run(ctx, tt, func(tx store.Tx) error {
		rec, ok, err := tx.Read(ctx, table, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !visibleAt(&sch, rec, now) {
			c.hooks.RecordExpired(table)
			return nil // expired reads like absent
		}
		out, found = rec, true
		return nil
	})
	if err != nil {
		c.hooks.StoreError("get", table, err)
		return nil, false, err
	}
	return out, found, nil
}

func (c *cache) GetFromIndexTx(ctx context.Context, tt TxType, table string, key any, indexField string) ([]Record, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	pos, ok := sch.FieldPos(indexField)
	if !ok {
		return nil, validationErr(table, indexField, "no such field")
	}
	now := c.clock.Now()

	var out []Record
	err = c.run(ctx, tt, func(tx store.Tx) error {
		recs, err := tx.MatchIndex(ctx, table, pos-1, key)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if !visibleAt(&sch, rec, now) {
				c.hooks.RecordExpired(table)
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		c.hooks.StoreError("get_from_index", table, err)
		return nil, err
	}
	return out, nil
}

// GetLastEnteredTx walks backwards from the largest key until it finds a
// visible record, so an expired tail never shadows live data.
func (c *cache) GetLastEnteredTx(ctx context.Context, tt TxType, table string) (Record, bool, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, false, err
	}
	now := c.clock.Now()

	var out Record
	var found bool
	err = c.run(ctx, tt, func(tx store.Tx) error {
		rec, ok, err := tx.Last(ctx, table)
		for {
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if visibleAt(&sch, rec, now) {
				out, found = rec, true
				return nil
			}
			c.hooks.RecordExpired(table)
			rec, ok, err = tx.Prev(ctx, table, rec[0])
		}
	})
	if err != nil {
		c.hooks.StoreError("get_last_entered", table, err)
		return nil, false, err
	}
	return out, found, nil
}

// GetAfterTx returns the first visible record past afterKey, skipping over
// expired ones. Feeding the returned key back in yields a strictly
// increasing walk that ends with an empty result.
func (c *cache) GetAfterTx(ctx context.Context, tt TxType, table string, afterKey any) (Record, bool, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, false, err
	}
	now := c.clock.Now()

	var out Record
	var found bool
	err = c.run(ctx, tt, func(tx store.Tx) error {
		cursor := afterKey
		for {
			rec, ok, err := tx.Next(ctx, table, cursor)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if visibleAt(&sch, rec, now) {
				out, found = rec, true
				return nil
			}
			c.hooks.RecordExpired(table)
			cursor = rec[0]
		}
	})
	if err != nil {
		c.hooks.StoreError("get_after", table, err)
		return nil, false, err
	}
	return out, found, nil
}

func (c *cache) SetTx(ctx context.Context, tt TxType, table string, rec Record) error {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return err
	}
	if len(rec) != sch.Arity() {
		return validationErr(table, "",
			"record arity does not match the table's current schema")
	}
	if sch.TTL > 0 {
		if _, ok := epochSeconds(rec[sch.LastUpdatePos-1]); !ok {
			return validationErr(table, sch.Fields[sch.LastUpdatePos-1].Name,
				"TTL is enabled but the last-update field holds no timestamp")
		}
	}

	err = c.run(ctx, tt, func(tx store.Tx) error {
		return tx.Write(ctx, table, rec)
	})
	if err != nil {
		c.hooks.StoreError("set", table, err)
	}
	return err
}

func (c *cache) RemoveTx(ctx context.Context, tt TxType, table string, key any) error {
	if _, err := c.tableInfo(ctx, table); err != nil {
		return err
	}
	err := c.run(ctx, tt, func(tx store.Tx) error {
		return tx.Delete(ctx, table, key)
	})
	if err != nil {
		c.hooks.StoreError("remove", table, err)
	}
	return err
}
