package query

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/canisterstack/icdb/internal/codec"
)

// JsonFilter is the sum type of predicates applicable to a Json column
// (§4.7).
type JsonFilter interface {
	isJsonFilter()
}

// JsonContains implements PostgreSQL @> structural-containment semantics:
// every key of an object pattern must be present in the target with a
// contained value; every element of an array pattern must appear
// somewhere in the target array (order-independent, duplicates treated
// as existence); primitives require equality.
type JsonContains struct {
	Pattern codec.Json
}

// JsonCmpKind is the comparator a JsonExtract filter applies to the value
// found at Path.
type JsonCmpKind int

const (
	JsonCmpIsNull JsonCmpKind = iota
	JsonCmpEq
	JsonCmpNe
	JsonCmpLt
	JsonCmpLe
	JsonCmpGt
	JsonCmpGe
)

// JsonCmp pairs a comparator with the Value to compare against (ignored
// for JsonCmpIsNull).
type JsonCmp struct {
	Kind  JsonCmpKind
	Value codec.Value
}

// JsonExtract resolves Path in the column's JSON DOM and applies Cmp to
// the projected Value. If Path does not resolve, only JsonCmpIsNull
// matches (§4.7).
type JsonExtract struct {
	Path string
	Cmp  JsonCmp
}

// JsonHasKey matches iff Path resolves, even to a JSON null.
type JsonHasKey struct {
	Path string
}

func (JsonContains) isJsonFilter() {}
func (JsonExtract) isJsonFilter()  {}
func (JsonHasKey) isJsonFilter()   {}

// PathStep is one dot-segment of a parsed JSON path: a mandatory object
// key followed by zero or more array indices applied in sequence (e.g.
// "b[0][1]" -> {Key: "b", Indices: [0, 1]}).
type PathStep struct {
	Key     string
	Indices []int
}

// ParsePath parses the dot/bracket grammar of §4.7: segments separated by
// '.', each optionally followed by one or more "[n]" with n a
// non-negative decimal. Empty path, trailing dot, empty/negative/
// non-numeric bracket, and unclosed bracket are InvalidQuery errors.
func ParsePath(path string) ([]PathStep, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty json path", ErrInvalidQuery)
	}
	rawSegments := strings.Split(path, ".")
	steps := make([]PathStep, 0, len(rawSegments))
	for _, seg := range rawSegments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in path %q (trailing or double dot)", ErrInvalidQuery, path)
		}
		key, indices, err := parsePathSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v in path %q", ErrInvalidQuery, err, path)
		}
		steps = append(steps, PathStep{Key: key, Indices: indices})
	}
	return steps, nil
}

func parsePathSegment(seg string) (string, []int, error) {
	bracket := strings.IndexByte(seg, '[')
	if bracket == -1 {
		return seg, nil, nil
	}
	key := seg[:bracket]
	if key == "" {
		return "", nil, fmt.Errorf("empty segment name before bracket in %q", seg)
	}
	rest := seg[bracket:]
	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("expected '[' in %q", seg)
		}
		close := strings.IndexByte(rest, ']')
		if close == -1 {
			return "", nil, fmt.Errorf("unclosed bracket in %q", seg)
		}
		numStr := rest[1:close]
		n, err := parseNonNegativeIndex(numStr)
		if err != nil {
			return "", nil, fmt.Errorf("bad index %q in %q: %w", numStr, seg, err)
		}
		indices = append(indices, n)
		rest = rest[close+1:]
	}
	return key, indices, nil
}

func parseNonNegativeIndex(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty bracket index")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric bracket index")
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("non-numeric bracket index")
	}
	return n, nil
}

// resolvePath walks steps over a Json DOM (the `any` produced by
// Json.Raw — nil/bool/int64/Decimal/string/[]codec.Json/map[string]codec.Json),
// returning the resolved node and whether the path fully resolved.
func resolvePath(root any, steps []PathStep) (any, bool) {
	cur := root
	for _, step := range steps {
		m, ok := cur.(map[string]codec.Json)
		if !ok {
			return nil, false
		}
		v, ok := m[step.Key]
		if !ok {
			return nil, false
		}
		cur = v.Raw()
		for _, idx := range step.Indices {
			arr, ok := cur.([]codec.Json)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx].Raw()
		}
	}
	return cur, true
}

// projectJson converts a resolved DOM node to the Value it compares as
// (§4.7's extraction projection rules): null->Null, bool->Bool,
// int64->Int64, Decimal->Decimal, string->Text, array/object->nested
// Json.
func projectJson(node any) codec.Value {
	switch x := node.(type) {
	case nil:
		return codec.Null
	case bool:
		return codec.BoolValue(x)
	case int64:
		return codec.Int64Value(x)
	case codec.Decimal:
		return codec.DecimalValue(x)
	case string:
		return codec.TextValue(x)
	default:
		return codec.JsonValue(codec.NewJson(node))
	}
}

// evalJsonExtract resolves path against col's DOM and applies cmp.
func evalJsonExtract(col codec.Json, path string, cmp JsonCmp) (bool, error) {
	steps, err := ParsePath(path)
	if err != nil {
		return false, err
	}
	node, ok := resolvePath(col.Raw(), steps)
	if !ok {
		return cmp.Kind == JsonCmpIsNull, nil
	}
	projected := projectJson(node)
	if cmp.Kind == JsonCmpIsNull {
		return projected.IsNull(), nil
	}
	if projected.IsNull() {
		return false, nil
	}
	cmpResult, err := codec.Compare(projected, cmp.Value)
	if err != nil {
		return false, nil // cross-kind comparison never matches, per §4.7 ordering semantics
	}
	switch cmp.Kind {
	case JsonCmpEq:
		return cmpResult == 0, nil
	case JsonCmpNe:
		return cmpResult != 0, nil
	case JsonCmpLt:
		return cmpResult < 0, nil
	case JsonCmpLe:
		return cmpResult <= 0, nil
	case JsonCmpGt:
		return cmpResult > 0, nil
	case JsonCmpGe:
		return cmpResult >= 0, nil
	default:
		return false, fmt.Errorf("%w: unknown json comparator %d", ErrInvalidQuery, cmp.Kind)
	}
}

func evalJsonHasKey(col codec.Json, path string) (bool, error) {
	steps, err := ParsePath(path)
	if err != nil {
		return false, err
	}
	_, ok := resolvePath(col.Raw(), steps)
	return ok, nil
}

// evalJsonContains implements @> structural containment.
func evalJsonContains(target, pattern any) bool {
	switch p := pattern.(type) {
	case map[string]codec.Json:
		t, ok := target.(map[string]codec.Json)
		if !ok {
			return false
		}
		for k, pv := range p {
			tv, ok := t[k]
			if !ok || !evalJsonContains(tv.Raw(), pv.Raw()) {
				return false
			}
		}
		return true
	case []codec.Json:
		t, ok := target.([]codec.Json)
		if !ok {
			return false
		}
		for _, pe := range p {
			found := false
			for _, te := range t {
				if evalJsonContains(te.Raw(), pe.Raw()) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return jsonPrimitiveEqual(target, pattern)
	}
}

func jsonPrimitiveEqual(a, b any) bool {
	switch bv := b.(type) {
	case nil:
		return a == nil
	case bool:
		av, ok := a.(bool)
		return ok && av == bv
	case string:
		av, ok := a.(string)
		return ok && av == bv
	case int64:
		return jsonNumberEqual(a, bv)
	case codec.Decimal:
		return jsonNumberEqual(a, bv)
	default:
		return false
	}
}

// jsonNumberEqual compares two projected JSON numbers (int64 or Decimal)
// by value, regardless of which concrete shape each side took.
func jsonNumberEqual(a, b any) bool {
	av := projectJson(a)
	bv := projectJson(b)
	if av.Kind != codec.KindInt64 && av.Kind != codec.KindDecimal {
		return false
	}
	if bv.Kind != codec.KindInt64 && bv.Kind != codec.KindDecimal {
		return false
	}
	if av.Kind == codec.KindInt64 {
		av = codec.DecimalValue(mustDecimal(av))
	}
	if bv.Kind == codec.KindInt64 {
		bv = codec.DecimalValue(mustDecimal(bv))
	}
	cmp, err := codec.Compare(av, bv)
	return err == nil && cmp == 0
}

func mustDecimal(v codec.Value) codec.Decimal {
	if v.Kind == codec.KindDecimal {
		return v.Dec
	}
	d, _ := codec.NewDecimal(big.NewInt(v.I64), 0)
	return d
}
