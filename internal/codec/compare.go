package codec

import "bytes"

// Compare returns -1, 0, or 1 for a < b, a == b, a > b under the scalar
// universe's total order (§3): Null sorts below all non-null values;
// cross-kind compare (other than against Null) is an error.
func Compare(a, b Value) (int, error) {
	if a.IsNull() && b.IsNull() {
		return 0, nil
	}
	if a.IsNull() {
		return -1, nil
	}
	if b.IsNull() {
		return 1, nil
	}
	if a.Kind != b.Kind {
		return 0, ErrIncomparable
	}
	switch a.Kind {
	case KindBool:
		return compareBool(a.Bool, b.Bool), nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return compareI64(a.I64, b.I64), nil
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return compareU64(a.U64, b.U64), nil
	case KindDecimal:
		return a.Dec.Cmp(b.Dec), nil
	case KindText:
		return bytes.Compare([]byte(a.Text), []byte(b.Text)), nil
	case KindBlob:
		return bytes.Compare(a.Blob, b.Blob), nil
	case KindDate:
		return compareDate(a.Date, b.Date), nil
	case KindDateTime:
		switch {
		case a.Time.Before(b.Time):
			return -1, nil
		case a.Time.After(b.Time):
			return 1, nil
		default:
			return 0, nil
		}
	case KindPrincipal:
		return bytes.Compare(a.Princ, b.Princ), nil
	case KindUuid:
		return bytes.Compare(a.UID[:], b.UID[:]), nil
	case KindJson:
		return 0, ErrIncomparable
	default:
		return 0, ErrIncomparable
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func compareI64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareDate(a, b Date) int {
	if a.Year != b.Year {
		return compareI64(int64(a.Year), int64(b.Year))
	}
	if a.Month != b.Month {
		return compareI64(int64(a.Month), int64(b.Month))
	}
	return compareI64(int64(a.Day), int64(b.Day))
}

// Equal reports whether a and b compare equal, treating cross-kind
// comparisons (other than Null) as unequal rather than erroring — used by
// filter evaluation where Eq/Ne must always produce a boolean.
func Equal(a, b Value) bool {
	c, err := Compare(a, b)
	if err != nil {
		return false
	}
	return c == 0
}
