package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// toWire converts the internal Json DOM into an encoding/json-friendly tree
// (map[string]any, []any, string, bool, nil, json.Number-compatible types).
func toWire(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case int64:
		return json.Number(fmt.Sprintf("%d", x))
	case Decimal:
		return json.Number(x.String())
	case string:
		return x
	case []Json:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toWire(e.inner)
		}
		return out
	case map[string]Json:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = toWire(e.inner)
		}
		return out
	default:
		return x
	}
}

// fromWire converts a decoded encoding/json tree (built with UseNumber)
// into the internal Json DOM, projecting integer-shaped numbers to int64
// and all others to Decimal, per §4.7's extraction projection rules.
func fromWire(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case string:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		r, ok := new(big.Rat).SetString(x.String())
		if !ok {
			// fall back to float rounding if the literal isn't a plain decimal
			f, _ := x.Float64()
			r = new(big.Rat).SetFloat64(f)
		}
		return ratToDecimal(r)
	case []any:
		out := make([]Json, len(x))
		for i, e := range x {
			out[i] = NewJson(fromWire(e))
		}
		return out
	case map[string]any:
		out := make(map[string]Json, len(x))
		for k, e := range x {
			out[k] = NewJson(fromWire(e))
		}
		return out
	default:
		return x
	}
}

// ratToDecimal converts a big.Rat to a Decimal, truncating the mantissa to
// fit 128 bits when the source has more than 28 significant decimal
// digits (§6 open-question resolution #3: lossy beyond that point, never
// widened or panicked).
func ratToDecimal(r *big.Rat) Decimal {
	const maxScale = 28
	scale := uint8(maxScale)
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(maxScale), nil)
	scaled := new(big.Int).Mul(r.Num(), factor)
	scaled.Quo(scaled, r.Denom())
	for scaled.CmpAbs(maxDecimalMagnitude) >= 0 && scale > 0 {
		scaled.Quo(scaled, big.NewInt(10))
		scale--
	}
	// drop trailing zero digits so 3.14 decodes at scale 2, not scale 28
	ten := big.NewInt(10)
	rem := new(big.Int)
	for scale > 0 {
		q, r := new(big.Int).QuoRem(scaled, ten, rem)
		if r.Sign() != 0 {
			break
		}
		scaled = q
		scale--
	}
	d, err := NewDecimal(scaled, scale)
	if err != nil {
		// clamp: truncate to zero scale as a last resort
		clamped := new(big.Int).Mod(scaled, maxDecimalMagnitude)
		d, _ = NewDecimal(clamped, 0)
	}
	return d
}

func encodeJson(j Json) ([]byte, error) {
	wire := toWire(j.inner)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(wire); err != nil {
		return nil, fmt.Errorf("%w: json encode: %v", ErrDecode, err)
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

func decodeJson(b []byte) (Json, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var wire any
	if err := dec.Decode(&wire); err != nil {
		return Json{}, fmt.Errorf("%w: json decode: %v", ErrDecode, err)
	}
	return NewJson(fromWire(wire)), nil
}
