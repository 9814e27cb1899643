package tabcache

import (
	"github.com/unkn0wn-root/tabcache/keyorder"
	"github.com/unkn0wn-root/tabcache/store"
)

// Atom is re-exported from keyorder so callers building records do not need a
// second import.
type Atom = keyorder.Atom

// Unset is the absence marker written into fields that a schema upgrade
// appended to existing records.
const Unset = keyorder.Unset

// Record is a stored row. Its field count and order must match the table's
// schema at write time; position 1 (index 0) is the primary key.
type Record = store.Record
