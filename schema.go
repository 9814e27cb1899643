package tabcache

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Field describes one position of a table schema. Pos is 1-based; position 1
// is always the primary key field.
type Field struct {
	Name string `cbor:"n"`
	Pos  int    `cbor:"p"`
}

// Schema describes the shape of a logical table: its ordered fields, the
// current version, the TTL policy and the replica set the table lives on.
//
// The name-to-position map is resolved once, when the schema is validated,
// not per lookup.
type Schema struct {
	Name    string   `cbor:"name"`
	Version uint32   `cbor:"ver"`
	Fields  []Field  `cbor:"fields"`
	// TTL is seconds after last update beyond which a record is no longer
	// visible to reads. 0 means records never expire.
	TTL int64 `cbor:"ttl"`
	// LastUpdatePos is the 1-based position of the field holding the
	// record's last-write timestamp (seconds since the Unix epoch).
	// Required when TTL > 0, meaningless otherwise.
	LastUpdatePos int      `cbor:"lup"`
	Replicas      []string `cbor:"replicas"`

	index map[string]int // field name -> 1-based position; never serialized
}

// Arity returns the number of fields.
func (s *Schema) Arity() int { return len(s.Fields) }

// FieldPos resolves a field name to its 1-based position.
func (s *Schema) FieldPos(name string) (int, bool) {
	if s.index == nil {
		s.buildIndex()
	}
	pos, ok := s.index[name]
	return pos, ok
}

func (s *Schema) buildIndex() {
	s.index = make(map[string]int, len(s.Fields))
	for _, f := range s.Fields {
		s.index[f.Name] = f.Pos
	}
}

// validate checks schema well-formedness and normalizes Fields into position
// order. It runs before any store mutation; a failure here leaves the store
// untouched.
func (s *Schema) validate() error {
	if s.Name == "" {
		return validationErr(s.Name, "", "table name is empty")
	}
	if len(s.Fields) == 0 {
		return validationErr(s.Name, "", "schema has no fields")
	}

	sort.Slice(s.Fields, func(i, j int) bool { return s.Fields[i].Pos < s.Fields[j].Pos })

	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return validationErr(s.Name, "", "field with empty name")
		}
		if f.Pos != i+1 {
			// catches duplicates, gaps and positions < 1 in one shot
			return validationErr(s.Name, f.Name, "field positions must be unique and contiguous from 1")
		}
		if seen[f.Name] {
			return validationErr(s.Name, f.Name, "duplicate field name")
		}
		seen[f.Name] = true
	}

	if s.TTL < 0 {
		return validationErr(s.Name, "", "negative TTL")
	}
	if s.TTL > 0 {
		if s.LastUpdatePos < 2 || s.LastUpdatePos > len(s.Fields) {
			return validationErr(s.Name, "", "TTL enabled but last-update field position is not a non-key field")
		}
	}

	s.buildIndex()
	return nil
}

// addedFields returns the fields present in next but absent from cur, and
// reports whether next is a valid widening of cur: every current field keeps
// its name and position, new fields are appended after them.
func addedFields(cur, next []Field) ([]Field, bool) {
	if len(next) < len(cur) {
		return nil, false
	}
	for i, f := range cur {
		if next[i].Name != f.Name || next[i].Pos != f.Pos {
			return nil, false
		}
	}
	return next[len(cur):], true
}

// Schemas travel through the metatable as CBOR blobs.

func encodeSchema(s *Schema) ([]byte, error) { return cbor.Marshal(s) }

func decodeSchema(b []byte) (Schema, error) {
	var s Schema
	if err := cbor.Unmarshal(b, &s); err != nil {
		return Schema{}, err
	}
	s.buildIndex()
	return s, nil
}
