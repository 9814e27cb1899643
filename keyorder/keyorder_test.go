package keyorder

import (
	"bytes"
	"sort"
	"testing"
)

// TestCrossTypeRank pins the rank order: numbers < atoms < strings < lists.
func TestCrossTypeRank(t *testing.T) {
	asc := []any{
		-12.5,
		0,
		3,
		3.5,
		int64(1000),
		Atom("aardvark"),
		Atom("zebra"),
		"0",
		"aardvark",
		"zebra",
		[]any{},
		[]any{1},
		[]any{1, 2},
		[]any{2},
		[]any{Atom("x")},
		[]any{"x", []any{1}},
	}
	for i := 0; i < len(asc); i++ {
		for j := 0; j < len(asc); j++ {
			got := Compare(asc[i], asc[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Fatalf("Compare(%v, %v) = %d, want %d", asc[i], asc[j], got, want)
			}
		}
	}
}

// TestNumericKindsCollapse verifies that int, int64, uint and float forms of
// the same number occupy the same position.
func TestNumericKindsCollapse(t *testing.T) {
	forms := []any{int(7), int64(7), uint(7), uint16(7), float64(7), float32(7)}
	for _, a := range forms {
		for _, b := range forms {
			if Compare(a, b) != 0 {
				t.Fatalf("Compare(%T(%v), %T(%v)) != 0", a, a, b, b)
			}
		}
	}
	if Compare(int(7), 7.5) != -1 {
		t.Fatalf("7 should order before 7.5")
	}
}

// TestEncodeMatchesCompare: the byte encoding must agree with Compare for
// every ordered pair, including awkward payloads with embedded NULs.
func TestEncodeMatchesCompare(t *testing.T) {
	vals := []any{
		-1e18, -3, -0.5, 0, 0.5, 3, 1e18,
		Atom(""), Atom("a"), Atom("a\x00"), Atom("a\x00b"), Atom("ab"), Unset,
		"", "a", "a\x00", "a\x00b", "ab", "b",
		[]any{}, []any{0}, []any{0, 0}, []any{Atom("a")}, []any{"a"}, []any{[]any{}},
	}
	for _, a := range vals {
		for _, b := range vals {
			cmp := Compare(a, b)
			enc := bytes.Compare(Encode(a), Encode(b))
			if cmp != enc {
				t.Fatalf("Compare(%#v, %#v)=%d but encoded compare=%d", a, b, cmp, enc)
			}
		}
	}
}

// TestSortStability sorts a shuffled slice with Compare and checks a few
// anchors land where the rank rules say they must.
func TestSortStability(t *testing.T) {
	vals := []any{"m", []any{1}, Atom("m"), 4, -1, "a", Atom("a"), []any{}}
	sort.Slice(vals, func(i, j int) bool { return Compare(vals[i], vals[j]) < 0 })

	if vals[0] != -1 || vals[1] != 4 {
		t.Fatalf("numbers should sort first, got %v", vals)
	}
	if vals[2] != Atom("a") || vals[3] != Atom("m") {
		t.Fatalf("atoms should follow numbers, got %v", vals)
	}
	if vals[4] != "a" || vals[5] != "m" {
		t.Fatalf("strings should follow atoms, got %v", vals)
	}
}

func TestEqualOnBytesAndStrings(t *testing.T) {
	if !Equal("abc", []byte("abc")) {
		t.Fatalf("[]byte and string with same content should be order-equal")
	}
	if Equal(Atom("abc"), "abc") {
		t.Fatalf("atom and string must not be order-equal")
	}
}
