// Package cached decorates a store with an in-process byte cache for dirty
// point reads.
//
// Only Dirty().Read is served from the cache: safe transactions and cursor
// scans always hit the inner store, and every write or delete going through
// this decorator invalidates the touched entry. The cache holds wire-framed
// records, so hits skip the inner store round trip entirely.
package cached

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tabcache/internal/wire"
	"github.com/unkn0wn-root/tabcache/keyorder"
	"github.com/unkn0wn-root/tabcache/store"
)

const defaultEviction = 30 * time.Second

type Options struct {
	// Inner is the store being decorated. Required.
	Inner store.Store

	// Eviction bounds how stale a cached read may be when another process
	// writes to the inner store directly. Defaults to 30s.
	Eviction time.Duration

	// HardMaxCacheSizeMB caps cache memory. 0 means bigcache's default
	// (unbounded).
	HardMaxCacheSizeMB int
}

// Store implements store.Store, caching dirty point reads.
type Store struct {
	inner store.Store
	bc    *bigcache.BigCache
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Inner == nil {
		return nil, errors.New("cached store: nil inner store")
	}
	ev := opts.Eviction
	if ev <= 0 {
		ev = defaultEviction
	}
	cfg := bigcache.DefaultConfig(ev)
	cfg.HardMaxCacheSize = opts.HardMaxCacheSizeMB
	bc, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cached store: %w", err)
	}
	return &Store{inner: opts.Inner, bc: bc}, nil
}

func cacheKey(table, enc string) string { return table + "\x00" + enc }

func (s *Store) CreateTable(ctx context.Context, name string, arity int, members []string) error {
	return s.inner.CreateTable(ctx, name, arity, members)
}

func (s *Store) DropTable(ctx context.Context, name string) error {
	if err := s.inner.DropTable(ctx, name); err != nil {
		return err
	}
	// per-table eviction is not worth a key scan; dropping a table is rare
	return s.bc.Reset()
}

// Safe passes through untouched but drops staged keys from the cache after a
// successful commit, so the next dirty read observes the committed state.
func (s *Store) Safe(ctx context.Context, fn func(store.Tx) error) error {
	inv := &invalidator{}
	err := s.inner.Safe(ctx, func(tx store.Tx) error {
		return fn(&trackingTx{Tx: tx, inv: inv})
	})
	if err != nil {
		return err
	}
	for _, k := range inv.keys {
		_ = s.bc.Delete(k)
	}
	return nil
}

func (s *Store) Dirty() store.Tx { return &cachedDirty{s: s, inner: s.inner.Dirty()} }

func (s *Store) Close(ctx context.Context) error {
	cerr := s.bc.Close()
	if err := s.inner.Close(ctx); err != nil {
		return err
	}
	return cerr
}

type invalidator struct{ keys []string }

func (i *invalidator) touch(table string, key any) {
	i.keys = append(i.keys, cacheKey(table, string(keyorder.Encode(key))))
}

// trackingTx records which keys a safe transaction mutates.
type trackingTx struct {
	store.Tx
	inv *invalidator
}

func (t *trackingTx) Write(ctx context.Context, table string, rec store.Record) error {
	if err := t.Tx.Write(ctx, table, rec); err != nil {
		return err
	}
	if len(rec) > 0 {
		t.inv.touch(table, rec[0])
	}
	return nil
}

func (t *trackingTx) Delete(ctx context.Context, table string, key any) error {
	if err := t.Tx.Delete(ctx, table, key); err != nil {
		return err
	}
	t.inv.touch(table, key)
	return nil
}

// cachedDirty serves point reads from the byte cache, delegating the rest.
type cachedDirty struct {
	s     *Store
	inner store.Tx
}

var _ store.Tx = (*cachedDirty)(nil)

func (d *cachedDirty) Read(ctx context.Context, table string, key any) (store.Record, bool, error) {
	ck := cacheKey(table, string(keyorder.Encode(key)))
	if b, err := d.s.bc.Get(ck); err == nil {
		if _, rec, derr := wire.DecodeRecord(b); derr == nil {
			return rec, true, nil
		}
		_ = d.s.bc.Delete(ck)
	}
	rec, ok, err := d.inner.Read(ctx, table, key)
	if err != nil || !ok {
		return rec, ok, err
	}
	if frame, ferr := wire.EncodeRecord(0, rec); ferr == nil {
		_ = d.s.bc.Set(ck, frame)
	}
	return rec, true, nil
}

func (d *cachedDirty) Write(ctx context.Context, table string, rec store.Record) error {
	if err := d.inner.Write(ctx, table, rec); err != nil {
		return err
	}
	if len(rec) > 0 {
		_ = d.s.bc.Delete(cacheKey(table, string(keyorder.Encode(rec[0]))))
	}
	return nil
}

func (d *cachedDirty) Delete(ctx context.Context, table string, key any) error {
	if err := d.inner.Delete(ctx, table, key); err != nil {
		return err
	}
	_ = d.s.bc.Delete(cacheKey(table, string(keyorder.Encode(key))))
	return nil
}

func (d *cachedDirty) MatchIndex(ctx context.Context, table string, fieldIdx int, value any) ([]store.Record, error) {
	return d.inner.MatchIndex(ctx, table, fieldIdx, value)
}

func (d *cachedDirty) All(ctx context.Context, table string) ([]store.Record, error) {
	return d.inner.All(ctx, table)
}

func (d *cachedDirty) First(ctx context.Context, table string) (store.Record, bool, error) {
	return d.inner.First(ctx, table)
}

func (d *cachedDirty) Last(ctx context.Context, table string) (store.Record, bool, error) {
	return d.inner.Last(ctx, table)
}

func (d *cachedDirty) Next(ctx context.Context, table string, after any) (store.Record, bool, error) {
	return d.inner.Next(ctx, table, after)
}

func (d *cachedDirty) Prev(ctx context.Context, table string, before any) (store.Record, bool, error) {
	return d.inner.Prev(ctx, table, before)
}
