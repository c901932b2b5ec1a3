package hooks

import (
	"errors"
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
)

// ErrValidationFailed is the sentinel every reference validator wraps, so
// callers can distinguish a validation failure from a programmer error
// via errors.Is.
var ErrValidationFailed = errors.New("hooks: validation failed")

// Required rejects Null values. Applied to a nullable column this simply
// narrows it further for that particular field; the schema's own
// Nullable flag is unaffected.
type Required struct{}

func (Required) Check(v codec.Value) error {
	if v.IsNull() {
		return fmt.Errorf("%w: value is required", ErrValidationFailed)
	}
	return nil
}

// MaxLength rejects Text values longer than N runes, and Blob values
// longer than N bytes. It is a no-op for every other kind.
type MaxLength struct {
	N int
}

func (m MaxLength) Check(v codec.Value) error {
	switch v.Kind {
	case codec.KindText:
		if n := len([]rune(v.Text)); n > m.N {
			return fmt.Errorf("%w: text length %d exceeds maximum %d", ErrValidationFailed, n, m.N)
		}
	case codec.KindBlob:
		if len(v.Blob) > m.N {
			return fmt.Errorf("%w: blob length %d exceeds maximum %d", ErrValidationFailed, len(v.Blob), m.N)
		}
	}
	return nil
}
