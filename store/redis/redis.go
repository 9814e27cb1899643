// Package redis backs the store interface with a Redis deployment.
//
// Records are wire-framed under "rec:<table>:<keyenc>" and every table keeps a
// lexicographic sorted set of keyorder encodings under "idx:<table>", so
// cursor operations map directly onto ZRANGEBYLEX. Safe transactions are
// serialized by a store-wide lock key and applied through a single MULTI/EXEC
// pipeline; losing the lock maps to store.ErrAborted.
//
// The member list passed to CreateTable is recorded as placement metadata but
// not enforced: a Redis deployment has its own replication topology, so the
// store never reports ErrMemberDown.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/tabcache/internal/wire"
	"github.com/unkn0wn-root/tabcache/keyorder"
	"github.com/unkn0wn-root/tabcache/store"
)

// releases the tx lock only if we still hold it
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

const defaultLockTTL = 5 * time.Second

type Options struct {
	// Client is the connected go-redis client. Required.
	Client redis.UniversalClient

	// KeyPrefix namespaces every key this store touches. Optional.
	KeyPrefix string

	// LockTTL bounds how long a crashed Safe caller can hold the tx lock.
	// Defaults to 5s.
	LockTTL time.Duration
}

// Store implements store.Store on Redis.
type Store struct {
	c       redis.UniversalClient
	prefix  string
	lockTTL time.Duration
}

var _ store.Store = (*Store)(nil)

func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis store: nil client")
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Store{c: opts.Client, prefix: opts.KeyPrefix, lockTTL: ttl}, nil
}

type tableMeta struct {
	Arity   int      `msgpack:"arity"`
	Members []string `msgpack:"members"`
}

func (s *Store) tabKey(table string) string { return s.prefix + "tab:" + table }
func (s *Store) idxKey(table string) string { return s.prefix + "idx:" + table }
func (s *Store) recKey(table, enc string) string {
	return s.prefix + "rec:" + table + ":" + enc
}
func (s *Store) lockKey() string { return s.prefix + "txlock" }

func (s *Store) meta(ctx context.Context, table string) (tableMeta, error) {
	b, err := s.c.Get(ctx, s.tabKey(table)).Bytes()
	if errors.Is(err, redis.Nil) {
		return tableMeta{}, store.ErrNoSuchTable
	}
	if err != nil {
		return tableMeta{}, fmt.Errorf("redis store: read table meta: %w", err)
	}
	var m tableMeta
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return tableMeta{}, fmt.Errorf("redis store: decode table meta: %w", err)
	}
	return m, nil
}

func (s *Store) CreateTable(ctx context.Context, name string, arity int, members []string) error {
	b, err := msgpack.Marshal(tableMeta{Arity: arity, Members: members})
	if err != nil {
		return fmt.Errorf("redis store: encode table meta: %w", err)
	}
	ok, err := s.c.SetNX(ctx, s.tabKey(name), b, 0).Result()
	if err != nil {
		return fmt.Errorf("redis store: create table: %w", err)
	}
	if !ok {
		return store.ErrTableExists
	}
	return nil
}

func (s *Store) DropTable(ctx context.Context, name string) error {
	if _, err := s.meta(ctx, name); err != nil {
		return err
	}
	encs, err := s.c.ZRange(ctx, s.idxKey(name), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis store: drop table: %w", err)
	}
	keys := make([]string, 0, len(encs)+2)
	for _, enc := range encs {
		keys = append(keys, s.recKey(name, enc))
	}
	keys = append(keys, s.idxKey(name), s.tabKey(name))
	if err := s.c.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis store: drop table: %w", err)
	}
	return nil
}

func (s *Store) Dirty() store.Tx { return &dirtyTx{s: s} }

func (s *Store) Safe(ctx context.Context, fn func(store.Tx) error) error {
	token := uuid.NewString()
	ok, err := s.c.SetNX(ctx, s.lockKey(), token, s.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("redis store: acquire tx lock: %w", err)
	}
	if !ok {
		return store.ErrAborted
	}
	defer s.c.Eval(context.WithoutCancel(ctx), unlockScript, []string{s.lockKey()}, token)

	tx := &safeTx{s: s, staged: make(map[string]stagedEntry)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.staged) == 0 {
		return nil
	}

	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, e := range tx.staged {
			if e.del {
				p.Del(ctx, s.recKey(e.table, e.enc))
				p.ZRem(ctx, s.idxKey(e.table), e.enc)
				continue
			}
			frame, err := wire.EncodeRecord(0, e.rec)
			if err != nil {
				return err
			}
			p.Set(ctx, s.recKey(e.table, e.enc), frame, 0)
			p.ZAdd(ctx, s.idxKey(e.table), redis.Z{Member: e.enc})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrAborted, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error { return s.c.Close() }

// dirtyTx applies every operation immediately, no isolation.
type dirtyTx struct{ s *Store }

var _ store.Tx = (*dirtyTx)(nil)

func (d *dirtyTx) Read(ctx context.Context, table string, key any) (store.Record, bool, error) {
	if _, err := d.s.meta(ctx, table); err != nil {
		return nil, false, err
	}
	return d.s.readRec(ctx, table, string(keyorder.Encode(key)))
}

func (d *dirtyTx) Write(ctx context.Context, table string, rec store.Record) error {
	if len(rec) == 0 {
		return errors.New("redis store: empty record")
	}
	if _, err := d.s.meta(ctx, table); err != nil {
		return err
	}
	enc := string(keyorder.Encode(rec[0]))
	frame, err := wire.EncodeRecord(0, rec)
	if err != nil {
		return err
	}
	_, err = d.s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, d.s.recKey(table, enc), frame, 0)
		p.ZAdd(ctx, d.s.idxKey(table), redis.Z{Member: enc})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: write: %w", err)
	}
	return nil
}

func (d *dirtyTx) Delete(ctx context.Context, table string, key any) error {
	if _, err := d.s.meta(ctx, table); err != nil {
		return err
	}
	enc := string(keyorder.Encode(key))
	_, err := d.s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, d.s.recKey(table, enc))
		p.ZRem(ctx, d.s.idxKey(table), enc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: delete: %w", err)
	}
	return nil
}

func (d *dirtyTx) All(ctx context.Context, table string) ([]store.Record, error) {
	if _, err := d.s.meta(ctx, table); err != nil {
		return nil, err
	}
	return d.s.allRecs(ctx, table)
}

func (d *dirtyTx) MatchIndex(ctx context.Context, table string, fieldIdx int, value any) ([]store.Record, error) {
	recs, err := d.All(ctx, table)
	if err != nil {
		return nil, err
	}
	return matchField(recs, fieldIdx, value), nil
}

func (d *dirtyTx) First(ctx context.Context, table string) (store.Record, bool, error) {
	return d.edge(ctx, table, false)
}

func (d *dirtyTx) Last(ctx context.Context, table string) (store.Record, bool, error) {
	return d.edge(ctx, table, true)
}

func (d *dirtyTx) edge(ctx context.Context, table string, last bool) (store.Record, bool, error) {
	if _, err := d.s.meta(ctx, table); err != nil {
		return nil, false, err
	}
	rng := &redis.ZRangeBy{Min: "-", Max: "+", Count: 1}
	var encs []string
	var err error
	if last {
		encs, err = d.s.c.ZRevRangeByLex(ctx, d.s.idxKey(table), rng).Result()
	} else {
		encs, err = d.s.c.ZRangeByLex(ctx, d.s.idxKey(table), rng).Result()
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis store: cursor: %w", err)
	}
	if len(encs) == 0 {
		return nil, false, nil
	}
	return d.s.readRec(ctx, table, encs[0])
}

func (d *dirtyTx) Next(ctx context.Context, table string, after any) (store.Record, bool, error) {
	if _, err := d.s.meta(ctx, table); err != nil {
		return nil, false, err
	}
	enc := string(keyorder.Encode(after))
	encs, err := d.s.c.ZRangeByLex(ctx, d.s.idxKey(table), &redis.ZRangeBy{
		Min: "(" + enc, Max: "+", Count: 1,
	}).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis store: cursor: %w", err)
	}
	if len(encs) == 0 {
		return nil, false, nil
	}
	return d.s.readRec(ctx, table, encs[0])
}

func (d *dirtyTx) Prev(ctx context.Context, table string, before any) (store.Record, bool, error) {
	if _, err := d.s.meta(ctx, table); err != nil {
		return nil, false, err
	}
	enc := string(keyorder.Encode(before))
	encs, err := d.s.c.ZRevRangeByLex(ctx, d.s.idxKey(table), &redis.ZRangeBy{
		Max: "(" + enc, Min: "-", Count: 1,
	}).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis store: cursor: %w", err)
	}
	if len(encs) == 0 {
		return nil, false, nil
	}
	return d.s.readRec(ctx, table, encs[0])
}

type stagedEntry struct {
	table string
	enc   string
	rec   store.Record
	del   bool
}

// safeTx buffers writes until commit; the store-wide lock held by Safe makes
// direct reads consistent for the duration of fn.
type safeTx struct {
	s      *Store
	staged map[string]stagedEntry
}

var _ store.Tx = (*safeTx)(nil)

func stagedKey(table, enc string) string { return table + "\x00" + enc }

func (t *safeTx) Read(ctx context.Context, table string, key any) (store.Record, bool, error) {
	if _, err := t.s.meta(ctx, table); err != nil {
		return nil, false, err
	}
	enc := string(keyorder.Encode(key))
	if e, ok := t.staged[stagedKey(table, enc)]; ok {
		if e.del {
			return nil, false, nil
		}
		return e.rec, true, nil
	}
	return t.s.readRec(ctx, table, enc)
}

func (t *safeTx) Write(ctx context.Context, table string, rec store.Record) error {
	if len(rec) == 0 {
		return errors.New("redis store: empty record")
	}
	if _, err := t.s.meta(ctx, table); err != nil {
		return err
	}
	enc := string(keyorder.Encode(rec[0]))
	t.staged[stagedKey(table, enc)] = stagedEntry{table: table, enc: enc, rec: rec}
	return nil
}

func (t *safeTx) Delete(ctx context.Context, table string, key any) error {
	if _, err := t.s.meta(ctx, table); err != nil {
		return err
	}
	enc := string(keyorder.Encode(key))
	t.staged[stagedKey(table, enc)] = stagedEntry{table: table, enc: enc, del: true}
	return nil
}

// merged overlays the write set onto the stored table, sorted by key encoding.
func (t *safeTx) merged(ctx context.Context, table string) ([]string, map[string]store.Record, error) {
	if _, err := t.s.meta(ctx, table); err != nil {
		return nil, nil, err
	}
	encs, err := t.s.c.ZRangeByLex(ctx, t.s.idxKey(table), &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis store: scan: %w", err)
	}
	view := make(map[string]store.Record, len(encs))
	for _, enc := range encs {
		rec, ok, err := t.s.readRec(ctx, table, enc)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			view[enc] = rec
		}
	}
	for _, e := range t.staged {
		if e.table != table {
			continue
		}
		if e.del {
			delete(view, e.enc)
		} else {
			view[e.enc] = e.rec
		}
	}
	keys := make([]string, 0, len(view))
	for enc := range view {
		keys = append(keys, enc)
	}
	sort.Strings(keys)
	return keys, view, nil
}

func (t *safeTx) All(ctx context.Context, table string) ([]store.Record, error) {
	keys, view, err := t.merged(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(keys))
	for _, enc := range keys {
		out = append(out, view[enc])
	}
	return out, nil
}

func (t *safeTx) MatchIndex(ctx context.Context, table string, fieldIdx int, value any) ([]store.Record, error) {
	recs, err := t.All(ctx, table)
	if err != nil {
		return nil, err
	}
	return matchField(recs, fieldIdx, value), nil
}

func (t *safeTx) First(ctx context.Context, table string) (store.Record, bool, error) {
	keys, view, err := t.merged(ctx, table)
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}
	return view[keys[0]], true, nil
}

func (t *safeTx) Last(ctx context.Context, table string) (store.Record, bool, error) {
	keys, view, err := t.merged(ctx, table)
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}
	return view[keys[len(keys)-1]], true, nil
}

func (t *safeTx) Next(ctx context.Context, table string, after any) (store.Record, bool, error) {
	keys, view, err := t.merged(ctx, table)
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
	return view[keys[i]], true, nil
}

func (t *safeTx) Prev(ctx context.Context, table string, before any) (store.Record, bool, error) {
	keys, view, err := t.merged(ctx, table)
	if err != nil {
		return nil, false, err
	}
	enc := string(keyorder.Encode(before))
	i := sort.SearchStrings(keys, enc)
	if i == 0 {
		return nil, false, nil
	}
	return view[keys[i-1]], true, nil
}

func (s *Store) readRec(ctx context.Context, table, enc string) (store.Record, bool, error) {
	b, err := s.c.Get(ctx, s.recKey(table, enc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis store: read: %w", err)
	}
	_, rec, err := wire.DecodeRecord(b)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *Store) allRecs(ctx context.Context, table string) ([]store.Record, error) {
	encs, err := s.c.ZRangeByLex(ctx, s.idxKey(table), &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: scan: %w", err)
	}
	out := make([]store.Record, 0, len(encs))
	for _, enc := range encs {
		rec, ok, err := s.readRec(ctx, table, enc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matchField(recs []store.Record, fieldIdx int, value any) []store.Record {
	var out []store.Record
	for _, rec := range recs {
		if fieldIdx >= 0 && fieldIdx < len(rec) && keyorder.Equal(rec[fieldIdx], value) {
			out = append(out, rec)
		}
	}
	return out
}
