// Package wire frames records for byte-backed stores.
//
// A frame carries the schema version the record was written under plus every
// field value, so a byte store can hand back exactly what the caching layer
// wrote and the layer can detect records from an older schema. Decoding is
// strict: wrong magic, wrong version, truncated fields, or trailing bytes all
// fail with ErrCorrupt rather than returning a partial record.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/tabcache/keyorder"
)

const version byte = 1

// Field kind bytes. Atoms carry their raw bytes so the Atom type survives a
// round trip; everything else goes through msgpack. Atoms nested inside
// composite field values degrade to plain strings.
const (
	kindAtom    byte = 1
	kindMsgpack byte = 2
)

var (
	ErrCorrupt = errors.New("wire: corrupt record frame")
	magic4     = [...]byte{'T', 'A', 'B', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeRecord frames a record written under schemaVer:
//
//	magic(4) | ver(1) | schemaVer(u32 be) | nfields(u16 be)
//	kind(1) | vlen(u32 be) | payload(vlen)   * nfields
func EncodeRecord(schemaVer uint32, rec []any) ([]byte, error) {
	if len(rec) == 0 || len(rec) > 0xFFFF {
		return nil, errors.New("wire: invalid field count")
	}

	var buf bytes.Buffer
	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u4 [4]byte
	var u2 [2]byte
	binary.BigEndian.PutUint32(u4[:], schemaVer)
	buf.Write(u4[:])
	binary.BigEndian.PutUint16(u2[:], uint16(len(rec)))
	buf.Write(u2[:])

	for _, f := range rec {
		kind := kindMsgpack
		var payload []byte
		if a, ok := f.(keyorder.Atom); ok {
			kind = kindAtom
			payload = []byte(a)
		} else {
			b, err := msgpack.Marshal(f)
			if err != nil {
				return nil, err
			}
			payload = b
		}
		buf.WriteByte(kind)
		binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
		buf.Write(u4[:])
		buf.Write(payload)
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses a frame produced by EncodeRecord.
func DecodeRecord(b []byte) (schemaVer uint32, rec []any, err error) {
	const hdr = 4 + 1 + 4 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return 0, nil, ErrCorrupt
	}
	off := 5
	schemaVer = binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if n == 0 {
		return 0, nil, ErrCorrupt
	}

	rec = make([]any, 0, n)
	for i := 0; i < n; i++ {
		if off+5 > len(b) {
			return 0, nil, ErrCorrupt
		}
		kind := b[off]
		off++
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		payload := b[off : off+vlen]
		off += vlen

		switch kind {
		case kindAtom:
			rec = append(rec, keyorder.Atom(payload))
		case kindMsgpack:
			// loose decoding keeps field types predictable across a round
			// trip: ints come back as int64, floats as float64
			dec := msgpack.NewDecoder(bytes.NewReader(payload))
			dec.UseLooseInterfaceDecoding(true)
			var v any
			if err := dec.Decode(&v); err != nil {
				return 0, nil, ErrCorrupt
			}
			rec = append(rec, v)
		default:
			return 0, nil, ErrCorrupt
		}
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return schemaVer, rec, nil
}
