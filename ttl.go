package tabcache

import (
	"context"
	"sync"
	"time"
)

// Clock is the current-time source used by TTL visibility checks, in seconds
// since the Unix epoch. Implementations must be monotonically non-decreasing.
type Clock interface {
	Now() int64
}

// systemClock clamps wall-clock time so a backwards step never makes an
// expired record visible again.
type systemClock struct {
	mu   sync.Mutex
	last int64
}

func (c *systemClock) Now() int64 {
	now := time.Now().Unix()
	c.mu.Lock()
	if now < c.last {
		now = c.last
	} else {
		c.last = now
	}
	c.mu.Unlock()
	return now
}

// TTLAndFieldIndex returns a table's TTL and the 1-based position of its
// last-update timestamp field. The position is meaningless when TTL is 0.
func (c *cache) TTLAndFieldIndex(ctx context.Context, table string) (int64, int, error) {
	sch, err := c.tableInfo(ctx, table)
	if err != nil {
		return 0, 0, err
	}
	return sch.TTL, sch.LastUpdatePos, nil
}

// visibleAt applies the TTL visibility rule: a record is visible iff the
// table never expires or less than TTL seconds passed since its last update.
// A record at exactly TTL seconds of age is already expired. Records whose
// timestamp field is missing or non-numeric count as expired, not as errors.
func visibleAt(sch *Schema, rec Record, now int64) bool {
	if sch.TTL == 0 {
		return true
	}
	idx := sch.LastUpdatePos - 1
	if idx < 0 || idx >= len(rec) {
		return false
	}
	ts, ok := epochSeconds(rec[idx])
	if !ok {
		return false
	}
	return now-ts < sch.TTL
}

func epochSeconds(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case float64:
		return int64(x), true
	case float32:
		return int64(x), true
	}
	return 0, false
}
