// Package mem implements store.Store in process memory.
//
// It is the reference backend: a single copy of every table stands in for all
// replica members, safe transactions serialize on a store-wide lock with
// staged writes, and dirty handles mutate table state directly under
// fine-grained locks. Members exist as bookkeeping so that replica-set
// semantics (create on N members, member unreachable) can be exercised
// without a cluster; tests flip members down via SetMemberDown.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/unkn0wn-root/tabcache/keyorder"
	"github.com/unkn0wn-root/tabcache/store"
)

type table struct {
	mu      sync.RWMutex
	arity   int // advisory; enforcement lives above the store
	members []string
	recs    map[string]store.Record // keyorder-encoded key -> record
	keys    []string                // sorted encoded keys
}

// Store is an in-memory replicated table store.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	down   map[string]bool

	// one writer at a time keeps safe transactions fully isolated
	txMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tables: make(map[string]*table),
		down:   make(map[string]bool),
	}
}

// SetMemberDown marks a member reachable or unreachable for subsequent
// CreateTable calls.
func (s *Store) SetMemberDown(member string, isDown bool) {
	s.mu.Lock()
	s.down[member] = isDown
	s.mu.Unlock()
}

func (s *Store) CreateTable(_ context.Context, name string, arity int, members []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return store.ErrTableExists
	}
	for _, m := range members {
		if s.down[m] {
			return store.ErrMemberDown
		}
	}
	s.tables[name] = &table{
		arity:   arity,
		members: append([]string(nil), members...),
		recs:    make(map[string]store.Record),
	}
	return nil
}

func (s *Store) DropTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		return store.ErrNoSuchTable
	}
	delete(s.tables, name)
	return nil
}

// Members returns the replica set a table was created with.
func (s *Store) Members(name string) ([]string, bool) {
	s.mu.RLock()
	t, ok := s.tables[name]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return append([]string(nil), t.members...), true
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) lookup(name string) (*table, error) {
	s.mu.RLock()
	t, ok := s.tables[name]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNoSuchTable
	}
	return t, nil
}

// ---- dirty handle ----

type dirtyTx struct{ s *Store }

func (s *Store) Dirty() store.Tx { return dirtyTx{s: s} }

func (d dirtyTx) Read(_ context.Context, name string, key any) (store.Record, bool, error) {
	t, err := d.s.lookup(name)
	if err != nil {
		return nil, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.recs[string(keyorder.Encode(key))]
	return rec, ok, nil
}

func (d dirtyTx) MatchIndex(_ context.Context, name string, fieldIdx int, value any) ([]store.Record, error) {
	t, err := d.s.lookup(name)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.matchIndex(fieldIdx, value), nil
}

func (d dirtyTx) Write(_ context.Context, name string, rec store.Record) error {
	t, err := d.s.lookup(name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.put(rec)
	t.mu.Unlock()
	return nil
}

func (d dirtyTx) Delete(_ context.Context, name string, key any) error {
	t, err := d.s.lookup(name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.remove(string(keyorder.Encode(key)))
	t.mu.Unlock()
	return nil
}

func (d dirtyTx) All(_ context.Context, name string) ([]store.Record, error) {
	t, err := d.s.lookup(name)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.all(), nil
}

func (d dirtyTx) First(_ context.Context, name string) (store.Record, bool, error) {
	return d.at(name, func(t *table) (store.Record, bool) { return t.first() })
}

func (d dirtyTx) Last(_ context.Context, name string) (store.Record, bool, error) {
	return d.at(name, func(t *table) (store.Record, bool) { return t.last() })
}

func (d dirtyTx) Next(_ context.Context, name string, after any) (store.Record, bool, error) {
	enc := string(keyorder.Encode(after))
	return d.at(name, func(t *table) (store.Record, bool) { return t.next(enc) })
}

func (d dirtyTx) Prev(_ context.Context, name string, before any) (store.Record, bool, error) {
	enc := string(keyorder.Encode(before))
	return d.at(name, func(t *table) (store.Record, bool) { return t.prev(enc) })
}

func (d dirtyTx) at(name string, f func(*table) (store.Record, bool)) (store.Record, bool, error) {
	t, err := d.s.lookup(name)
	if err != nil {
		return nil, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := f(t)
	return rec, ok, nil
}

// ---- safe transactions ----

// staged is a per-table write set; a nil record is a tombstone.
type staged map[string]store.Record

type safeTx struct {
	s      *Store
	writes map[string]staged // table -> write set
}

func (s *Store) Safe(_ context.Context, fn func(store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &safeTx{s: s, writes: make(map[string]staged)}
	if err := fn(tx); err != nil {
		return err // nothing staged is applied
	}
	tx.commit()
	return nil
}

func (tx *safeTx) set(name string) staged {
	w, ok := tx.writes[name]
	if !ok {
		w = make(staged)
		tx.writes[name] = w
	}
	return w
}

func (tx *safeTx) commit() {
	for name, w := range tx.writes {
		t, err := tx.s.lookup(name)
		if err != nil {
			continue // table dropped mid-transaction; nothing to apply
		}
		t.mu.Lock()
		for enc, rec := range w {
			if rec == nil {
				t.remove(enc)
				continue
			}
			t.putEncoded(enc, rec)
		}
		t.mu.Unlock()
	}
}

func (tx *safeTx) Read(_ context.Context, name string, key any) (store.Record, bool, error) {
	enc := string(keyorder.Encode(key))
	if w, ok := tx.writes[name]; ok {
		if rec, ok := w[enc]; ok {
			return rec, rec != nil, nil
		}
	}
	t, err := tx.s.lookup(name)
	if err != nil {
		return nil, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.recs[enc]
	return rec, ok, nil
}

func (tx *safeTx) Write(_ context.Context, name string, rec store.Record) error {
	if _, err := tx.s.lookup(name); err != nil {
		return err
	}
	if len(rec) == 0 {
		return store.ErrAborted
	}
	tx.set(name)[string(keyorder.Encode(rec[0]))] = rec
	return nil
}

func (tx *safeTx) Delete(_ context.Context, name string, key any) error {
	if _, err := tx.s.lookup(name); err != nil {
		return err
	}
	tx.set(name)[string(keyorder.Encode(key))] = nil
	return nil
}

// merged materializes committed state overlaid with this transaction's
// write set, in encoded-key order.
func (tx *safeTx) merged(name string) (map[string]store.Record, []string, error) {
	t, err := tx.s.lookup(name)
	if err != nil {
		return nil, nil, err
	}
	t.mu.RLock()
	out := make(map[string]store.Record, len(t.recs))
	for enc, rec := range t.recs {
		out[enc] = rec
	}
	t.mu.RUnlock()

	for enc, rec := range tx.writes[name] {
		if rec == nil {
			delete(out, enc)
			continue
		}
		out[enc] = rec
	}
	keys := make([]string, 0, len(out))
	for enc := range out {
		keys = append(keys, enc)
	}
	sort.Strings(keys)
	return out, keys, nil
}

func (tx *safeTx) MatchIndex(_ context.Context, name string, fieldIdx int, value any) ([]store.Record, error) {
	recs, keys, err := tx.merged(name)
	if err != nil {
		return nil, err
	}
	var out []store.Record
	for _, enc := range keys {
		rec := recs[enc]
		if fieldIdx >= 0 && fieldIdx < len(rec) && keyorder.Equal(rec[fieldIdx], value) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (tx *safeTx) All(_ context.Context, name string) ([]store.Record, error) {
	recs, keys, err := tx.merged(name)
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(keys))
	for _, enc := range keys {
		out = append(out, recs[enc])
	}
	return out, nil
}

func (tx *safeTx) First(ctx context.Context, name string) (store.Record, bool, error) {
	recs, keys, err := tx.merged(name)
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}
	return recs[keys[0]], true, nil
}

func (tx *safeTx) Last(ctx context.Context, name string) (store.Record, bool, error) {
	recs, keys, err := tx.merged(name)
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}
	return recs[keys[len(keys)-1]], true, nil
}

func (tx *safeTx) Next(ctx context.Context, name string, after any) (store.Record, bool, error) {
	recs, keys, err := tx.merged(name)
	if err != nil {
		return nil, false, err
	}
	enc := string(keyorder.Encode(after))
	i := sort.SearchStrings(keys, enc)
	if i < len(keys) && keys[i] == enc {
		i++
	}
	if i >= len(keys) {
		return nil, false, nil
	}
	return recs[keys[i]], true, nil
}

func (tx *safeTx) Prev(ctx context.Context, name string, before any) (store.Record, bool, error) {
	recs, keys, err := tx.merged(name)
	if err != nil {
		return nil, false, err
	}
	enc := string(keyorder.Encode(before))
	i := sort.SearchStrings(keys, enc)
	if i == 0 {
		return nil, false, nil
	}
	return recs[keys[i-1]], true, nil
}

// ---- table internals (callers hold t.mu) ----

func (t *table) put(rec store.Record) {
	if len(rec) == 0 {
		return
	}
	t.putEncoded(string(keyorder.Encode(rec[0])), rec)
}

func (t *table) putEncoded(enc string, rec store.Record) {
	if _, exists := t.recs[enc]; !exists {
		i := sort.SearchStrings(t.keys, enc)
		t.keys = append(t.keys, "")
		copy(t.keys[i+1:], t.keys[i:])
		t.keys[i] = enc
	}
	t.recs[enc] = rec
}

func (t *table) remove(enc string) {
	if _, exists := t.recs[enc]; !exists {
		return
	}
	delete(t.recs, enc)
	i := sort.SearchStrings(t.keys, enc)
	if i < len(t.keys) && t.keys[i] == enc {
		t.keys = append(t.keys[:i], t.keys[i+1:]...)
	}
}

func (t *table) matchIndex(fieldIdx int, value any) []store.Record {
	var out []store.Record
	for _, enc := range t.keys {
		rec := t.recs[enc]
		if fieldIdx >= 0 && fieldIdx < len(rec) && keyorder.Equal(rec[fieldIdx], value) {
			out = append(out, rec)
		}
	}
	return out
}

func (t *table) all() []store.Record {
	out := make([]store.Record, 0, len(t.keys))
	for _, enc := range t.keys {
		out = append(out, t.recs[enc])
	}
	return out
}

func (t *table) first() (store.Record, bool) {
	if len(t.keys) == 0 {
		return nil, false
	}
	return t.recs[t.keys[0]], true
}

func (t *table) last() (store.Record, bool) {
	if len(t.keys) == 0 {
		return nil, false
	}
	return t.recs[t.keys[len(t.keys)-1]], true
}

func (t *table) next(enc string) (store.Record, bool) {
	i := sort.SearchStrings(t.keys, enc)
	if i < len(t.keys) && t.keys[i] == enc {
		i++
	}
	if i >= len(t.keys) {
		return nil, false
	}
	return t.recs[t.keys[i]], true
}

func (t *table) prev(enc string) (store.Record, bool) {
	i := sort.SearchStrings(t.keys, enc)
	if i == 0 {
		return nil, false
	}
	return t.recs[t.keys[i-1]], true
}
