package hooks

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/canisterstack/icdb/internal/codec"
)

// Trim strips leading and trailing whitespace from Text values. It is
// identity for every other kind (§4.9: sanitizers not applicable to a
// given kind must be identity).
type Trim struct{}

func (Trim) Apply(v codec.Value) (codec.Value, error) {
	if v.Kind != codec.KindText {
		return v, nil
	}
	v.Text = strings.TrimSpace(v.Text)
	return v, nil
}

// NormalizeUnicode rewrites Text values to Unicode NFC normal form via
// golang.org/x/text/unicode/norm, so that visually identical strings
// compare and encode identically regardless of input composition.
// Identity for every other kind.
type NormalizeUnicode struct{}

func (NormalizeUnicode) Apply(v codec.Value) (codec.Value, error) {
	if v.Kind != codec.KindText {
		return v, nil
	}
	v.Text = norm.NFC.String(v.Text)
	return v, nil
}

// Lowercase folds Text values to lower case. Identity for every other
// kind.
type Lowercase struct{}

func (Lowercase) Apply(v codec.Value) (codec.Value, error) {
	if v.Kind != codec.KindText {
		return v, nil
	}
	v.Text = strings.ToLower(v.Text)
	return v, nil
}
