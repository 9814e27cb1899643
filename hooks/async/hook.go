// Package asynchook decouples hook callbacks from the calling goroutine.
//
// usage:
//
//	raw := myMetricsHooks{}
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := tabcache.New(tabcache.Options{
//	    Store: st,
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full; hooks are advisory signals, not a
// durable event stream.
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/tabcache"
)

type Hooks struct {
	inner tabcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ tabcache.Hooks = (*Hooks)(nil)

func New(inner tabcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) RecordExpired(table string) { h.try(func() { h.inner.RecordExpired(table) }) }
func (h *Hooks) TxAborted(op, table, reason string) {
	h.try(func() { h.inner.TxAborted(op, table, reason) })
}
func (h *Hooks) SchemaUpgraded(table string, from, to uint32, migrated int) {
	h.try(func() { h.inner.SchemaUpgraded(table, from, to, migrated) })
}
func (h *Hooks) SchemaCacheInvalidated(table string) {
	h.try(func() { h.inner.SchemaCacheInvalidated(table) })
}
func (h *Hooks) StoreError(op, table string, err error) {
	h.try(func() { h.inner.StoreError(op, table, err) })
}
