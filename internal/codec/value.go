// Package codec implements the binary encoding of the engine's closed Value
// sum type and the composite Record format built from it.
package codec

import (
	"fmt"
	"math/big"
	"time"
)

// Kind tags the variant held by a Value. The set is closed — new scalar
// types are never added by plug-ins, only by this package.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindDecimal
	KindText
	KindBlob
	KindDate
	KindDateTime
	KindPrincipal
	KindUuid
	KindJson
)

// String returns a human-readable label, used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindDecimal:
		return "decimal"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindPrincipal:
		return "principal"
	case KindUuid:
		return "uuid"
	case KindJson:
		return "json"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxPrincipalLen is the maximum byte length of a Principal identity.
const MaxPrincipalLen = 29

// Date is a calendar date with no time-of-day component.
type Date struct {
	Year  int32
	Month uint8 // 1..12
	Day   uint8 // 1..31
}

// Valid reports whether the month is in 1..12 and the day in 1..31. It
// does not check the day against the month's length or leap years, so a
// date such as February 31 is accepted.
func (d Date) Valid() bool {
	if d.Month < 1 || d.Month > 12 {
		return false
	}
	if d.Day < 1 || d.Day > 31 {
		return false
	}
	return true
}

// Decimal is a 128-bit fixed-point number: an arbitrary-precision mantissa
// (constrained to fit in 128 bits), an explicit base-10 scale, and a sign.
// The wire shape is 16 bytes mantissa + 1 byte scale + 1 byte sign + 14
// reserved zero bytes (§4.2).
type Decimal struct {
	Mantissa *big.Int // unsigned magnitude, < 2^128
	Scale    uint8
	Negative bool
}

var maxDecimalMagnitude = new(big.Int).Lsh(big.NewInt(1), 128)

// NewDecimal builds a Decimal from a signed mantissa and scale.
func NewDecimal(mantissa *big.Int, scale uint8) (Decimal, error) {
	neg := mantissa.Sign() < 0
	mag := new(big.Int).Abs(mantissa)
	if mag.Cmp(maxDecimalMagnitude) >= 0 {
		return Decimal{}, fmt.Errorf("%w: decimal mantissa exceeds 128 bits", ErrDecode)
	}
	return Decimal{Mantissa: mag, Scale: scale, Negative: neg}, nil
}

// Signed returns the mantissa with its sign applied.
func (d Decimal) Signed() *big.Int {
	m := new(big.Int).Set(d.Mantissa)
	if d.Negative {
		m.Neg(m)
	}
	return m
}

// Cmp compares two decimals after aligning to the larger scale.
func (d Decimal) Cmp(o Decimal) int {
	scale := d.Scale
	if o.Scale > scale {
		scale = o.Scale
	}
	da := scaleUp(d.Signed(), scale-d.Scale)
	ob := scaleUp(o.Signed(), scale-o.Scale)
	return da.Cmp(ob)
}

func scaleUp(v *big.Int, places uint8) *big.Int {
	if places == 0 {
		return v
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	return new(big.Int).Mul(v, factor)
}

func (d Decimal) String() string {
	s := d.Signed().String()
	if d.Scale == 0 {
		return s
	}
	neg := ""
	if d.Signed().Sign() < 0 {
		neg = "-"
		s = s[1:]
	}
	for len(s) <= int(d.Scale) {
		s = "0" + s
	}
	cut := len(s) - int(d.Scale)
	return neg + s[:cut] + "." + s[cut:]
}

// Principal is an opaque byte identity, at most MaxPrincipalLen bytes.
type Principal []byte

func (p Principal) String() string {
	return fmt.Sprintf("%x", []byte(p))
}

// Uuid is a 128-bit universally unique identifier.
type Uuid [16]byte

// Json is an owned DOM: one of nil, bool, Decimal/int64 (numbers),
// string, []Json, or map[string]Json. Numbers that round-trip as
// integers are stored as int64; all others as Decimal, per §4.7's
// JsonFilter projection rules.
type Json struct {
	inner any
}

// NewJson wraps a decoded DOM value.
func NewJson(v any) Json { return Json{inner: v} }

// Raw returns the underlying DOM value.
func (j Json) Raw() any { return j.inner }

// Value is the tagged sum over the scalar universe (§3).
type Value struct {
	Kind  Kind
	Bool  bool
	I64   int64  // backs Int8/16/32/64
	U64   uint64 // backs Uint8/16/32/64
	Dec   Decimal
	Text  string
	Blob  []byte
	Date  Date
	Time  time.Time // UTC instant, nanosecond precision
	Princ Principal
	UID   Uuid
	JSON  Json
}

// Null is the Value representing SQL/engine NULL.
var Null = Value{Kind: KindNull}

func (v Value) IsNull() bool { return v.Kind == KindNull }

func BoolValue(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Int8Value(i int8) Value           { return Value{Kind: KindInt8, I64: int64(i)} }
func Int16Value(i int16) Value         { return Value{Kind: KindInt16, I64: int64(i)} }
func Int32Value(i int32) Value         { return Value{Kind: KindInt32, I64: int64(i)} }
func Int64Value(i int64) Value         { return Value{Kind: KindInt64, I64: i} }
func Uint8Value(u uint8) Value         { return Value{Kind: KindUint8, U64: uint64(u)} }
func Uint16Value(u uint16) Value       { return Value{Kind: KindUint16, U64: uint64(u)} }
func Uint32Value(u uint32) Value       { return Value{Kind: KindUint32, U64: uint64(u)} }
func Uint64Value(u uint64) Value       { return Value{Kind: KindUint64, U64: u} }
func DecimalValue(d Decimal) Value     { return Value{Kind: KindDecimal, Dec: d} }
func TextValue(s string) Value         { return Value{Kind: KindText, Text: s} }
func BlobValue(b []byte) Value         { return Value{Kind: KindBlob, Blob: b} }
func DateValue(d Date) Value           { return Value{Kind: KindDate, Date: d} }
func DateTimeValue(t time.Time) Value  { return Value{Kind: KindDateTime, Time: t.UTC()} }
func PrincipalValue(p Principal) Value { return Value{Kind: KindPrincipal, Princ: p} }
func UuidValue(u Uuid) Value           { return Value{Kind: KindUuid, UID: u} }
func JsonValue(j Json) Value           { return Value{Kind: KindJson, JSON: j} }

// isIntKind reports whether k is one of the signed/unsigned fixed-width
// integer kinds.
func isIntKind(k Kind) bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}

func isUnsigned(k Kind) bool {
	switch k {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}
