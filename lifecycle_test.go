package tabcache

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/tabcache/store"
)

func TestCreateTableRegistersVersionZero(t *testing.T) {
	c, st, _, _ := newTestCache(t)
	ctx := context.Background()

	sch := usersSchema()
	sch.Version = 7 // callers don't pick versions; a new table always starts at 0
	mustCreate(t, c, sch)

	if v, err := c.TableVersion(ctx, "users"); err != nil || v != 0 {
		t.Fatalf("TableVersion: got (%d, %v), want (0, nil)", v, err)
	}
	if members, ok := st.Members("users"); !ok || len(members) != 2 {
		t.Fatalf("table should be materialized on the default members, got (%v, %v)", members, ok)
	}
}

func TestCreateTableDuplicate(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	mustCreate(t, c, usersSchema())

	var ae *AbortedError
	if err := c.CreateTable(context.Background(), usersSchema(), nil); !errors.As(err, &ae) {
		t.Fatalf("duplicate create: got %v, want AbortedError", err)
	}
}

func TestCreateTableReservedName(t *testing.T) {
	c, _, _, _ := newTestCache(t)

	sch := usersSchema()
	sch.Name = metatableName
	var verr *ValidationError
	if err := c.CreateTable(context.Background(), sch, nil); !errors.As(err, &verr) {
		t.Fatalf("reserved name: got %v, want ValidationError", err)
	}
}

func TestCreateTableInvalidSchema(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()

	for name, sch := range map[string]Schema{
		"no fields":      {Name: "t"},
		"position gap":   {Name: "t", Fields: []Field{{Name: "a", Pos: 1}, {Name: "b", Pos: 3}}},
		"ttl sans field": {Name: "t", Fields: []Field{{Name: "a", Pos: 1}}, TTL: 10},
	} {
		t.Run(name, func(t *testing.T) {
			var verr *ValidationError
			if err := c.CreateTable(ctx, sch, nil); !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if _, err := c.TableInfo(ctx, "t"); !errors.Is(err, ErrNoTable) {
				t.Fatalf("rejected schema must leave no registry entry, got %v", err)
			}
		})
	}
}

func TestCreateTableMemberDownLeavesNothingBehind(t *testing.T) {
	c, st, _, _ := newTestCache(t)
	ctx := context.Background()

	st.SetMemberDown("b", true)
	var ae *AbortedError
	err := c.CreateTable(ctx, usersSchema(), nil)
	if !errors.As(err, &ae) || !errors.Is(err, store.ErrMemberDown) {
		t.Fatalf("got %v, want AbortedError wrapping ErrMemberDown", err)
	}
	if _, err := c.TableInfo(ctx, "users"); !errors.Is(err, ErrNoTable) {
		t.Fatalf("failed create must not register a schema, got %v", err)
	}

	// once the member is back the same create succeeds
	st.SetMemberDown("b", false)
	mustCreate(t, c, usersSchema())
}

func TestCreateTables(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()

	err := c.CreateTables(ctx, []Schema{usersSchema(), sessionsSchema()}, nil)
	if err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	for _, name := range []string{"users", "sessions"} {
		if _, err := c.TableInfo(ctx, name); err != nil {
			t.Fatalf("TableInfo(%s): %v", name, err)
		}
	}
}

func TestUpgradeTableMigratesRecords(t *testing.T) {
	c, _, _, h := newTestCache(t)
	ctx := context.Background()
	mustCreate(t, c, usersSchema())

	if err := c.Set(ctx, "users", Record{int64(1), "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, "users", Record{int64(2), "bob"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	wider := []Field{{Name: "id", Pos: 1}, {Name: "name", Pos: 2}, {Name: "email", Pos: 3}}
	if err := c.UpgradeTable(ctx, "users", wider); err != nil {
		t.Fatalf("UpgradeTable: %v", err)
	}

	if v, err := c.TableVersion(ctx, "users"); err != nil || v != 1 {
		t.Fatalf("TableVersion after upgrade: got (%d, %v), want (1, nil)", v, err)
	}
	rec, ok, err := c.Get(ctx, "users", int64(1))
	if err != nil || !ok {
		t.Fatalf("Get after upgrade: (%v, %v, %v)", rec, ok, err)
	}
	if len(rec) != 3 || rec[2] != Unset {
		t.Fatalf("migrated record should carry the absence marker, got %v", rec)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.upgrades) != 1 || h.upgrades[0] != "users:0->1:2" {
		t.Fatalf("SchemaUpgraded hook: got %v", h.upgrades)
	}
}

func TestUpgradeTableVersionCheck(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()
	mustCreate(t, c, usersSchema())
	if err := c.Set(ctx, "users", Record{int64(1), "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	wider := []Field{{Name: "id", Pos: 1}, {Name: "name", Pos: 2}, {Name: "email", Pos: 3}}

	t.Run("stale expectation aborts untouched", func(t *testing.T) {
		var ae *AbortedError
		if err := c.UpgradeTableVersion(ctx, "users", 5, 6, wider); !errors.As(err, &ae) {
			t.Fatalf("got %v, want AbortedError", err)
		}
		if v, _ := c.TableVersion(ctx, "users"); v != 0 {
			t.Fatalf("version changed on aborted upgrade: %d", v)
		}
		rec, _, _ := c.Get(ctx, "users", int64(1))
		if len(rec) != 2 {
			t.Fatalf("records changed on aborted upgrade: %v", rec)
		}
	})

	t.Run("new version must exceed old", func(t *testing.T) {
		var verr *ValidationError
		if err := c.UpgradeTableVersion(ctx, "users", 3, 3, wider); !errors.As(err, &verr) {
			t.Fatalf("got %v, want ValidationError", err)
		}
	})

	t.Run("explicit version is recorded", func(t *testing.T) {
		if err := c.UpgradeTableVersion(ctx, "users", 0, 9, wider); err != nil {
			t.Fatalf("UpgradeTableVersion: %v", err)
		}
		if v, _ := c.TableVersion(ctx, "users"); v != 9 {
			t.Fatalf("TableVersion: got %d, want 9", v)
		}
	})
}

func TestUpgradeRejectsNarrowing(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()
	mustCreate(t, c, usersSchema())

	for name, fields := range map[string][]Field{
		"renamed field": {{Name: "id", Pos: 1}, {Name: "nick", Pos: 2}},
		"dropped field": {{Name: "id", Pos: 1}},
		"moved field":   {{Name: "name", Pos: 1}, {Name: "id", Pos: 2}},
	} {
		t.Run(name, func(t *testing.T) {
			var verr *ValidationError
			if err := c.UpgradeTable(ctx, "users", fields); !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if v, _ := c.TableVersion(ctx, "users"); v != 0 {
				t.Fatalf("version changed on rejected upgrade: %d", v)
			}
		})
	}
}

func TestUpgradeMetatable(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()

	// this build's registry format is already in place
	if err := c.UpgradeMetatable(ctx); err != nil {
		t.Fatalf("UpgradeMetatable: %v", err)
	}
	if v, err := c.TableVersion(ctx, metatableName); err != nil || v != 0 {
		t.Fatalf("no-op upgrade must not bump the version: (%d, %v)", v, err)
	}
}

func TestDropTable(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()
	mustCreate(t, c, usersSchema())
	if err := c.Set(ctx, "users", Record{int64(1), "alice"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := c.DropTable(ctx, "users"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, err := c.TableInfo(ctx, "users"); !errors.Is(err, ErrNoTable) {
		t.Fatalf("dropped table still registered: %v", err)
	}
	if _, _, err := c.Get(ctx, "users", int64(1)); !errors.Is(err, ErrNoTable) {
		t.Fatalf("read from dropped table: got %v, want ErrNoTable", err)
	}
	if err := c.DropTable(ctx, "users"); !errors.Is(err, ErrNoTable) {
		t.Fatalf("double drop: got %v, want ErrNoTable", err)
	}

	var verr *ValidationError
	if err := c.DropTable(ctx, metatableName); !errors.As(err, &verr) {
		t.Fatalf("dropping the metatable: got %v, want ValidationError", err)
	}
}

func TestConcurrentSchemaOperationAborts(t *testing.T) {
	c, _, _, h := newTestCache(t)
	ctx := context.Background()
	mustCreate(t, c, usersSchema())

	// hold the coordinator; the competing upgrade must abort, not block
	mu := c.tableLock("users")
	mu.Lock()
	defer mu.Unlock()

	wider := []Field{{Name: "id", Pos: 1}, {Name: "name", Pos: 2}, {Name: "email", Pos: 3}}
	var ae *AbortedError
	if err := c.UpgradeTable(ctx, "users", wider); !errors.As(err, &ae) {
		t.Fatalf("got %v, want AbortedError", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.aborted) == 0 || h.aborted[len(h.aborted)-1] != "upgrade_table/users" {
		t.Fatalf("TxAborted hook: got %v", h.aborted)
	}
}
