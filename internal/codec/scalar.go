package codec

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
)

var scratchPool bytebufferpool.Pool

// Encode returns the little-endian, two's-complement wire encoding of v.
// v.Kind determines the shape written; IEEE-754 binary64 is never used —
// Decimal carries its own 32-byte shape.
func Encode(v Value) ([]byte, error) {
	buf := scratchPool.Get()
	defer scratchPool.Put(buf)
	buf.Reset()

	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt8:
		buf.WriteByte(byte(int8(v.I64)))
	case KindUint8:
		buf.WriteByte(byte(uint8(v.U64)))
	case KindInt16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(v.I64)))
		buf.Write(b[:])
	case KindUint16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v.U64))
		buf.Write(b[:])
	case KindInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v.I64)))
		buf.Write(b[:])
	case KindUint32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v.U64))
		buf.Write(b[:])
	case KindInt64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.I64))
		buf.Write(b[:])
	case KindUint64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.U64)
		buf.Write(b[:])
	case KindDecimal:
		out, err := encodeDecimal(v.Dec)
		if err != nil {
			return nil, err
		}
		buf.Write(out)
	case KindText:
		if !utf8.ValidString(v.Text) {
			return nil, fmt.Errorf("%w: invalid utf-8 text", ErrDecode)
		}
		var lenb [4]byte
		binary.LittleEndian.PutUint32(lenb[:], uint32(len(v.Text)))
		buf.Write(lenb[:])
		buf.WriteString(v.Text)
	case KindBlob:
		var lenb [4]byte
		binary.LittleEndian.PutUint32(lenb[:], uint32(len(v.Blob)))
		buf.Write(lenb[:])
		buf.Write(v.Blob)
	case KindDate:
		if !v.Date.Valid() {
			return nil, fmt.Errorf("%w: invalid date", ErrDecode)
		}
		var b [6]byte
		binary.LittleEndian.PutUint32(b[0:4], uint32(v.Date.Year))
		b[4] = v.Date.Month
		b[5] = v.Date.Day
		buf.Write(b[:])
	case KindDateTime:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.Time.UnixNano()))
		buf.Write(b[:])
	case KindPrincipal:
		if len(v.Princ) > MaxPrincipalLen {
			return nil, fmt.Errorf("%w: principal exceeds %d bytes", ErrDecode, MaxPrincipalLen)
		}
		buf.WriteByte(byte(len(v.Princ)))
		buf.Write(v.Princ)
	case KindUuid:
		buf.Write(v.UID[:])
	case KindJson:
		out, err := encodeJson(v.JSON)
		if err != nil {
			return nil, err
		}
		var lenb [4]byte
		binary.LittleEndian.PutUint32(lenb[:], uint32(len(out)))
		buf.Write(lenb[:])
		buf.Write(out)
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrDecode, v.Kind)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Decode parses b as a value of the given kind.
func Decode(kind Kind, b []byte) (Value, error) {
	switch kind {
	case KindNull:
		return Null, nil
	case KindBool:
		if len(b) < 1 {
			return Value{}, fmt.Errorf("%w: truncated bool", ErrDecode)
		}
		return BoolValue(b[0] != 0), nil
	case KindInt8:
		if len(b) < 1 {
			return Value{}, fmt.Errorf("%w: truncated int8", ErrDecode)
		}
		return Int8Value(int8(b[0])), nil
	case KindUint8:
		if len(b) < 1 {
			return Value{}, fmt.Errorf("%w: truncated uint8", ErrDecode)
		}
		return Uint8Value(b[0]), nil
	case KindInt16:
		if len(b) < 2 {
			return Value{}, fmt.Errorf("%w: truncated int16", ErrDecode)
		}
		return Int16Value(int16(binary.LittleEndian.Uint16(b))), nil
	case KindUint16:
		if len(b) < 2 {
			return Value{}, fmt.Errorf("%w: truncated uint16", ErrDecode)
		}
		return Uint16Value(binary.LittleEndian.Uint16(b)), nil
	case KindInt32:
		if len(b) < 4 {
			return Value{}, fmt.Errorf("%w: truncated int32", ErrDecode)
		}
		return Int32Value(int32(binary.LittleEndian.Uint32(b))), nil
	case KindUint32:
		if len(b) < 4 {
			return Value{}, fmt.Errorf("%w: truncated uint32", ErrDecode)
		}
		return Uint32Value(binary.LittleEndian.Uint32(b)), nil
	case KindInt64:
		if len(b) < 8 {
			return Value{}, fmt.Errorf("%w: truncated int64", ErrDecode)
		}
		return Int64Value(int64(binary.LittleEndian.Uint64(b))), nil
	case KindUint64:
		if len(b) < 8 {
			return Value{}, fmt.Errorf("%w: truncated uint64", ErrDecode)
		}
		return Uint64Value(binary.LittleEndian.Uint64(b)), nil
	case KindDecimal:
		d, err := decodeDecimal(b)
		if err != nil {
			return Value{}, err
		}
		return DecimalValue(d), nil
	case KindText:
		if len(b) < 4 {
			return Value{}, fmt.Errorf("%w: truncated text length", ErrDecode)
		}
		n := binary.LittleEndian.Uint32(b)
		if uint32(len(b)-4) < n {
			return Value{}, fmt.Errorf("%w: truncated text payload", ErrDecode)
		}
		s := string(b[4 : 4+n])
		if !utf8.ValidString(s) {
			return Value{}, fmt.Errorf("%w: invalid utf-8 text", ErrDecode)
		}
		return TextValue(s), nil
	case KindBlob:
		if len(b) < 4 {
			return Value{}, fmt.Errorf("%w: truncated blob length", ErrDecode)
		}
		n := binary.LittleEndian.Uint32(b)
		if uint32(len(b)-4) < n {
			return Value{}, fmt.Errorf("%w: truncated blob payload", ErrDecode)
		}
		dst := make([]byte, n)
		copy(dst, b[4:4+n])
		return BlobValue(dst), nil
	case KindDate:
		if len(b) < 6 {
			return Value{}, fmt.Errorf("%w: truncated date", ErrDecode)
		}
		d := Date{
			Year:  int32(binary.LittleEndian.Uint32(b[0:4])),
			Month: b[4],
			Day:   b[5],
		}
		if !d.Valid() {
			return Value{}, fmt.Errorf("%w: invalid date components", ErrDecode)
		}
		return DateValue(d), nil
	case KindDateTime:
		if len(b) < 8 {
			return Value{}, fmt.Errorf("%w: truncated datetime", ErrDecode)
		}
		ns := int64(binary.LittleEndian.Uint64(b))
		return DateTimeValue(time.Unix(0, ns).UTC()), nil
	case KindPrincipal:
		if len(b) < 1 {
			return Value{}, fmt.Errorf("%w: truncated principal length", ErrDecode)
		}
		n := int(b[0])
		if n > MaxPrincipalLen {
			return Value{}, fmt.Errorf("%w: invalid principal length %d", ErrDecode, n)
		}
		if len(b)-1 < n {
			return Value{}, fmt.Errorf("%w: truncated principal payload", ErrDecode)
		}
		dst := make([]byte, n)
		copy(dst, b[1:1+n])
		return PrincipalValue(dst), nil
	case KindUuid:
		if len(b) < 16 {
			return Value{}, fmt.Errorf("%w: truncated uuid", ErrDecode)
		}
		var u Uuid
		copy(u[:], b[:16])
		return UuidValue(u), nil
	case KindJson:
		if len(b) < 4 {
			return Value{}, fmt.Errorf("%w: truncated json length", ErrDecode)
		}
		n := binary.LittleEndian.Uint32(b)
		if uint32(len(b)-4) < n {
			return Value{}, fmt.Errorf("%w: truncated json payload", ErrDecode)
		}
		j, err := decodeJson(b[4 : 4+n])
		if err != nil {
			return Value{}, err
		}
		return JsonValue(j), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown kind %v", ErrDecode, kind)
	}
}

func encodeDecimal(d Decimal) ([]byte, error) {
	if d.Mantissa == nil {
		d.Mantissa = new(big.Int)
	}
	if d.Mantissa.Sign() < 0 || d.Mantissa.Cmp(maxDecimalMagnitude) >= 0 {
		return nil, fmt.Errorf("%w: decimal mantissa out of range", ErrDecode)
	}
	out := make([]byte, 32)
	mb := d.Mantissa.Bytes() // big-endian magnitude
	if len(mb) > 16 {
		return nil, fmt.Errorf("%w: decimal mantissa exceeds 16 bytes", ErrDecode)
	}
	// store little-endian within the 16-byte mantissa field
	for i, bb := range mb {
		out[len(mb)-1-i] = bb
	}
	out[16] = d.Scale
	if d.Negative {
		out[17] = 1
	}
	return out, nil
}

func decodeDecimal(b []byte) (Decimal, error) {
	if len(b) < 32 {
		return Decimal{}, fmt.Errorf("%w: truncated decimal", ErrDecode)
	}
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[i] = b[15-i]
	}
	mant := new(big.Int).SetBytes(be)
	scale := b[16]
	neg := b[17] != 0
	return Decimal{Mantissa: mant, Scale: scale, Negative: neg}, nil
}

// NewUuid generates a random Uuid using google/uuid.
func NewUuid() Uuid {
	u := uuid.New()
	var out Uuid
	copy(out[:], u[:])
	return out
}

// ParseUuid parses a canonical UUID string.
func ParseUuid(s string) (Uuid, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Uuid{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	var out Uuid
	copy(out[:], u[:])
	return out, nil
}

func (u Uuid) String() string {
	return uuid.UUID(u).String()
}
