package tabcache

import (
	"errors"
	"testing"
)

func TestSchemaValidate(t *testing.T) {
	valid := func() Schema {
		return Schema{
			Name:          "s",
			Fields:        []Field{{Name: "k", Pos: 1}, {Name: "v", Pos: 2}, {Name: "ts", Pos: 3}},
			TTL:           60,
			LastUpdatePos: 3,
		}
	}

	t.Run("accepts a well-formed schema", func(t *testing.T) {
		sch := valid()
		if err := sch.validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}
	})

	t.Run("normalizes field order by position", func(t *testing.T) {
		sch := Schema{
			Name:   "s",
			Fields: []Field{{Name: "v", Pos: 2}, {Name: "k", Pos: 1}},
		}
		if err := sch.validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}
		if sch.Fields[0].Name != "k" || sch.Fields[1].Name != "v" {
			t.Fatalf("fields not sorted by position: %v", sch.Fields)
		}
	})

	mutations := map[string]func(*Schema){
		"empty name":             func(s *Schema) { s.Name = "" },
		"no fields":              func(s *Schema) { s.Fields = nil; s.TTL = 0 },
		"empty field name":       func(s *Schema) { s.Fields[1].Name = "" },
		"duplicate position":     func(s *Schema) { s.Fields[1].Pos = 1 },
		"position gap":           func(s *Schema) { s.Fields[2].Pos = 5; s.LastUpdatePos = 5 },
		"duplicate field name":   func(s *Schema) { s.Fields[1].Name = "k" },
		"negative TTL":           func(s *Schema) { s.TTL = -1 },
		"TTL on the key field":   func(s *Schema) { s.LastUpdatePos = 1 },
		"TTL position off range": func(s *Schema) { s.LastUpdatePos = 4 },
	}
	for name, mutate := range mutations {
		t.Run("rejects "+name, func(t *testing.T) {
			sch := valid()
			mutate(&sch)
			var verr *ValidationError
			if err := sch.validate(); !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
		})
	}
}

func TestFieldPos(t *testing.T) {
	sch := usersSchema()
	if err := sch.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if pos, ok := sch.FieldPos("name"); !ok || pos != 2 {
		t.Fatalf("FieldPos(name): got (%d, %v)", pos, ok)
	}
	if _, ok := sch.FieldPos("ghost"); ok {
		t.Fatal("FieldPos on unknown field must miss")
	}
}

func TestAddedFields(t *testing.T) {
	cur := []Field{{Name: "a", Pos: 1}, {Name: "b", Pos: 2}}

	t.Run("widening", func(t *testing.T) {
		next := []Field{{Name: "a", Pos: 1}, {Name: "b", Pos: 2}, {Name: "c", Pos: 3}}
		added, ok := addedFields(cur, next)
		if !ok || len(added) != 1 || added[0].Name != "c" {
			t.Fatalf("got (%v, %v)", added, ok)
		}
	})

	t.Run("identical", func(t *testing.T) {
		added, ok := addedFields(cur, cur)
		if !ok || len(added) != 0 {
			t.Fatalf("got (%v, %v)", added, ok)
		}
	})

	t.Run("renamed prefix", func(t *testing.T) {
		next := []Field{{Name: "a", Pos: 1}, {Name: "x", Pos: 2}, {Name: "c", Pos: 3}}
		if _, ok := addedFields(cur, next); ok {
			t.Fatal("renaming an existing field is not a widening")
		}
	})

	t.Run("shorter", func(t *testing.T) {
		if _, ok := addedFields(cur, cur[:1]); ok {
			t.Fatal("dropping a field is not a widening")
		}
	})
}

func TestSchemaCodecRoundTrip(t *testing.T) {
	in := sessionsSchema()
	in.Version = 3
	in.Replicas = []string{"a@host1", "b@host2"}
	if err := in.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	blob, err := encodeSchema(&in)
	if err != nil {
		t.Fatalf("encodeSchema: %v", err)
	}
	out, err := decodeSchema(blob)
	if err != nil {
		t.Fatalf("decodeSchema: %v", err)
	}

	if out.Name != in.Name || out.Version != 3 || out.TTL != 60 || out.LastUpdatePos != 3 {
		t.Fatalf("round trip lost header fields: %+v", out)
	}
	if !fieldsEqual(out.Fields, in.Fields) {
		t.Fatalf("round trip lost fields: %v", out.Fields)
	}
	if pos, ok := out.FieldPos("ts"); !ok || pos != 3 {
		t.Fatalf("decoded schema lost its field index: (%d, %v)", pos, ok)
	}

	if _, err := decodeSchema([]byte("junk")); err == nil {
		t.Fatal("decodeSchema must reject garbage")
	}
}
