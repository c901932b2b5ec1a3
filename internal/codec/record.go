package codec

import (
	"encoding/binary"
	"fmt"
)

// Record is an ordered tuple of Values positionally matching a schema's
// columns (§3). Validate enforces arity, per-column kind match (or Null
// on a nullable column), and a non-null primary key.
type Record []Value

// Validate checks a.Record against its schema's arity and per-column
// kind/nullability rules.
func (r Record) Validate(schema TableSchema) error {
	if len(r) != len(schema.Columns) {
		return fmt.Errorf("codec: record arity %d does not match schema arity %d", len(r), len(schema.Columns))
	}
	for i, col := range schema.Columns {
		v := r[i]
		if v.IsNull() {
			if !col.Nullable {
				return fmt.Errorf("codec: column %q is not nullable", col.Name)
			}
			if col.IsPrimaryKey {
				return fmt.Errorf("codec: primary key column %q cannot be null", col.Name)
			}
			continue
		}
		if v.Kind != col.DataType {
			return fmt.Errorf("codec: column %q expects %v, got %v", col.Name, col.DataType, v.Kind)
		}
	}
	return nil
}

// EncodeRecord encodes r as: u16 column-count prefix, then per column a
// 1-byte null flag followed by the column's encoding when non-null (§4.2).
func EncodeRecord(r Record) ([]byte, error) {
	var out []byte
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(r)))
	out = append(out, hdr[:]...)

	for i, v := range r {
		if v.IsNull() {
			out = append(out, 0)
			continue
		}
		out = append(out, 1)
		enc, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("codec: encode column %d: %w", i, err)
		}
		out = append(out, enc...)
	}
	return out, nil
}

// DecodeRecord decodes a Record given the schema's column types, which
// determine each non-null column's payload width.
func DecodeRecord(schema TableSchema, data []byte) (Record, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: truncated record header", ErrDecode)
	}
	colCount := int(binary.LittleEndian.Uint16(data))
	if colCount != len(schema.Columns) {
		return nil, fmt.Errorf("%w: record has %d columns, schema declares %d", ErrDecode, colCount, len(schema.Columns))
	}
	off := 2
	rec := make(Record, colCount)
	for i, col := range schema.Columns {
		if off >= len(data) {
			return nil, fmt.Errorf("%w: truncated record at column %d", ErrDecode, i)
		}
		flag := data[off]
		off++
		if flag == 0 {
			rec[i] = Null
			continue
		}
		width, err := columnPayloadWidth(col.DataType, data[off:])
		if err != nil {
			return nil, fmt.Errorf("%w: column %d: %v", ErrDecode, i, err)
		}
		if off+width > len(data) {
			return nil, fmt.Errorf("%w: truncated column %d payload", ErrDecode, i)
		}
		v, err := Decode(col.DataType, data[off:off+width])
		if err != nil {
			return nil, err
		}
		rec[i] = v
		off += width
	}
	return rec, nil
}

// columnPayloadWidth returns how many bytes of data the next column's
// payload occupies, reading a length prefix for dynamic kinds.
func columnPayloadWidth(kind Kind, rest []byte) (int, error) {
	sk := Size(kind)
	if sk.Fixed {
		return sk.FixedN, nil
	}
	switch kind {
	case KindText, KindBlob, KindJson:
		if len(rest) < 4 {
			return 0, fmt.Errorf("truncated length prefix")
		}
		n := binary.LittleEndian.Uint32(rest)
		return 4 + int(n), nil
	case KindPrincipal:
		if len(rest) < 1 {
			return 0, fmt.Errorf("truncated length prefix")
		}
		return 1 + int(rest[0]), nil
	default:
		return 0, fmt.Errorf("unknown dynamic kind %v", kind)
	}
}

// EncodedSize returns the byte length EncodeRecord(r) would produce. It
// encodes each non-null column to measure it.
func EncodedSize(r Record) (int, error) {
	size := 2
	for i, v := range r {
		size++ // null flag
		if v.IsNull() {
			continue
		}
		enc, err := Encode(v)
		if err != nil {
			return 0, fmt.Errorf("codec: encode column %d: %w", i, err)
		}
		size += len(enc)
	}
	return size, nil
}
