package wire

import (
	"testing"

	"github.com/unkn0wn-root/tabcache/keyorder"
)

func TestRecordRoundTrip(t *testing.T) {
	rec := []any{int64(42), "ada", keyorder.Atom("active"), keyorder.Unset, 3.25}
	b, err := EncodeRecord(7, rec)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	ver, got, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if ver != 7 {
		t.Fatalf("schema version: got %d want 7", ver)
	}
	if len(got) != len(rec) {
		t.Fatalf("field count: got %d want %d", len(got), len(rec))
	}
	if got[0] != int64(42) || got[1] != "ada" || got[4] != 3.25 {
		t.Fatalf("scalar fields corrupted: %v", got)
	}
	if got[2] != keyorder.Atom("active") || got[3] != keyorder.Unset {
		t.Fatalf("atom fields did not survive round trip: %v", got)
	}
}

func TestDecodeRejectsTrailing(t *testing.T) {
	b, err := EncodeRecord(1, []any{int64(1), "x"})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	b = append(b, 0xDE, 0xAD)
	if _, _, err := DecodeRecord(b); err == nil {
		t.Fatalf("DecodeRecord should reject trailing bytes")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("short"),
		[]byte("not-a-frame-at-all-but-long-enough"),
	}
	for _, b := range cases {
		if _, _, err := DecodeRecord(b); err == nil {
			t.Fatalf("DecodeRecord accepted garbage %q", b)
		}
	}

	// valid header, truncated field
	b, err := EncodeRecord(1, []any{int64(1), "abcdef"})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	if _, _, err := DecodeRecord(b[:len(b)-3]); err == nil {
		t.Fatalf("DecodeRecord should reject truncated frame")
	}
}

func TestEncodeRejectsEmptyRecord(t *testing.T) {
	if _, err := EncodeRecord(1, nil); err == nil {
		t.Fatalf("EncodeRecord should reject empty records")
	}
}
