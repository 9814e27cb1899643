package env

import (
	"testing"
)

func TestDefaultMembersFallback(t *testing.T) {
	t.Setenv("TABCACHE_MEMBERS", "")
	if got := DefaultMembers(); len(got) != 1 || got[0] != "local" {
		t.Fatalf("unset members should fall back to [local], got %v", got)
	}
}

func TestDefaultMembersFromEnv(t *testing.T) {
	t.Setenv("TABCACHE_MEMBERS", "a@node1, b@node2 ,,c@node3")
	got := DefaultMembers()
	want := []string{"a@node1", "b@node2", "c@node3"}
	if len(got) != len(want) {
		t.Fatalf("members: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("members: got %v want %v", got, want)
		}
	}
}

func TestStringDefault(t *testing.T) {
	if got := String("does_not_exist", "fallback"); got != "fallback" {
		t.Fatalf("String default: got %q", got)
	}
	t.Setenv("TABCACHE_SOME_KEY", "set")
	if got := String("some_key", "fallback"); got != "set" {
		t.Fatalf("String from env: got %q", got)
	}
}
