package query

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/canisterstack/icdb/internal/codec"
)

// evalFilter applies f to row, resolving column names against schema.
// Cross-kind Compare/In comparisons never match rather than erroring. A
// Null operand follows the Value ordering, where Null sorts below every
// non-null value (so Lt and Ne against a Null column match), while a LIKE or
// Json filter applied to a column of the wrong kind is a caller error.
func evalFilter(f FilterExpr, schema codec.TableSchema, row codec.Record) (bool, error) {
	switch v := f.(type) {
	case Compare:
		idx := schema.ColumnIndex(v.Column)
		result, err := codec.Compare(row[idx], v.Value)
		if err != nil {
			return false, nil
		}
		switch v.Op {
		case OpEq:
			return result == 0, nil
		case OpNe:
			return result != 0, nil
		case OpLt:
			return result < 0, nil
		case OpLe:
			return result <= 0, nil
		case OpGt:
			return result > 0, nil
		case OpGe:
			return result >= 0, nil
		default:
			return false, fmt.Errorf("%w: unknown compare op %d", ErrInvalidQuery, v.Op)
		}
	case In:
		idx := schema.ColumnIndex(v.Column)
		for _, val := range v.Values {
			if result, err := codec.Compare(row[idx], val); err == nil && result == 0 {
				return true, nil
			}
		}
		return false, nil
	case Like:
		idx := schema.ColumnIndex(v.Column)
		col := row[idx]
		if col.IsNull() {
			return false, nil
		}
		if col.Kind != codec.KindText {
			return false, fmt.Errorf("%w: LIKE on non-text column %q", ErrInvalidQuery, v.Column)
		}
		return likeMatch(col.Text, v.Pattern), nil
	case IsNull:
		idx := schema.ColumnIndex(v.Column)
		return row[idx].IsNull(), nil
	case NotNull:
		idx := schema.ColumnIndex(v.Column)
		return !row[idx].IsNull(), nil
	case JsonColumn:
		idx := schema.ColumnIndex(v.Column)
		col := row[idx]
		if col.IsNull() {
			return false, nil
		}
		if col.Kind != codec.KindJson {
			return false, fmt.Errorf("%w: json filter on non-json column %q", ErrInvalidQuery, v.Column)
		}
		return evalJsonFilter(col.JSON, v.Filter)
	case And:
		a, err := evalFilter(v.A, schema, row)
		if err != nil || !a {
			return false, err
		}
		return evalFilter(v.B, schema, row)
	case Or:
		a, err := evalFilter(v.A, schema, row)
		if err != nil || a {
			return a, err
		}
		return evalFilter(v.B, schema, row)
	case Not:
		r, err := evalFilter(v.A, schema, row)
		return !r, err
	default:
		return false, fmt.Errorf("%w: unknown filter expression %T", ErrInvalidQuery, f)
	}
}

func evalJsonFilter(col codec.Json, f JsonFilter) (bool, error) {
	switch v := f.(type) {
	case JsonContains:
		return evalJsonContains(col.Raw(), v.Pattern.Raw()), nil
	case JsonExtract:
		return evalJsonExtract(col, v.Path, v.Cmp)
	case JsonHasKey:
		return evalJsonHasKey(col, v.Path)
	default:
		return false, fmt.Errorf("%w: unknown json filter %T", ErrInvalidQuery, f)
	}
}

// compareRows is the single compound comparator for OrderBy: every key is
// consulted left-to-right within one comparison, not via sequential
// per-column re-sorts (the documented regression that must not recur).
func compareRows(schema codec.TableSchema, orderBy []OrderKey, a, b Row) int {
	for _, ok := range orderBy {
		idx := schema.ColumnIndex(ok.Column)
		cmp, err := codec.Compare(a.Record[idx], b.Record[idx])
		if err != nil {
			continue
		}
		if ok.Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

// projectRow keeps only the selected columns (plus the primary key,
// always retained) and nulls out the rest, preserving the record's
// schema-shaped arity for callers that round-trip it back into Update.
func projectRow(schema codec.TableSchema, sel SelectSpec, rec codec.Record) codec.Record {
	if sel.All {
		return rec
	}
	keepNames := lo.Uniq(append([]string{schema.Columns[schema.PrimaryKeyIndex].Name}, sel.Columns...))
	out := make(codec.Record, len(rec))
	for i, v := range rec {
		if lo.Contains(keepNames, schema.Columns[i].Name) {
			out[i] = v
		} else {
			out[i] = codec.Null
		}
	}
	return out
}

// valueKey renders a Value into a comparable string for deduplication —
// Value itself holds non-comparable fields (*big.Int inside Decimal,
// []byte Blob), so a plain map[Value]struct{} is not an option.
func valueKey(v codec.Value) string {
	b, err := codec.Encode(v)
	if err != nil {
		return fmt.Sprintf("%d:%v", v.Kind, v)
	}
	return fmt.Sprintf("%d:%x", v.Kind, b)
}

// collectForeignKeyValues gathers the distinct non-null values of every
// column in schema whose ForeignKey targets targetTable, across rows.
func collectForeignKeyValues(schema codec.TableSchema, rows []Row, targetTable string) []codec.Value {
	fkCols := lo.Filter(schema.Columns, func(c codec.ColumnDef, _ int) bool {
		return c.ForeignKey != nil && c.ForeignKey.TargetTable == targetTable
	})
	if len(fkCols) == 0 {
		return nil
	}
	var values []codec.Value
	for _, row := range rows {
		for _, col := range fkCols {
			idx := schema.ColumnIndex(col.Name)
			if v := row.Record[idx]; !v.IsNull() {
				values = append(values, v)
			}
		}
	}
	return lo.UniqBy(values, valueKey)
}

// Execute runs q against rows (already scanned and merged with any
// transaction overlay by the caller): filter, a single stable compound
// sort, offset/limit, projection, then eager-load of every table named in
// q.With (§4.7).
func Execute(schema codec.TableSchema, rows []Row, q Query, loadByPK LoadByPK) (Result, error) {
	if err := Validate(schema, q); err != nil {
		return Result{}, err
	}

	var matched []Row
	for _, r := range rows {
		if q.Filter != nil {
			ok, err := evalFilter(q.Filter, schema, r.Record)
			if err != nil {
				return Result{}, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return compareRows(schema, q.OrderBy, matched[i], matched[j]) < 0
	})

	start := 0
	if q.Offset != nil {
		start = int(*q.Offset)
		if start > len(matched) {
			start = len(matched)
		}
	}
	end := len(matched)
	if q.Limit != nil {
		if limEnd := start + int(*q.Limit); limEnd < end {
			end = limEnd
		}
	}
	page := matched[start:end]

	projected := make([]Row, len(page))
	for i, r := range page {
		projected[i] = Row{PK: r.PK, Record: projectRow(schema, q.Select, r.Record), Source: r.Source}
	}

	result := Result{Rows: projected}
	if len(q.With) == 0 {
		return result, nil
	}
	if loadByPK == nil {
		return Result{}, fmt.Errorf("%w: query requests eager-load but no loader was supplied", ErrInvalidQuery)
	}
	result.Eager = make(map[string][]Row, len(q.With))
	for _, target := range q.With {
		fkValues := collectForeignKeyValues(schema, page, target)
		if len(fkValues) == 0 {
			result.Eager[target] = nil
			continue
		}
		loaded, err := loadByPK(target, fkValues)
		if err != nil {
			return Result{}, err
		}
		result.Eager[target] = loaded
	}
	return result, nil
}
