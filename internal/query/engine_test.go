package query

import (
	"math/big"
	"testing"

	"github.com/canisterstack/icdb/internal/codec"
)

func peopleSchema() codec.TableSchema {
	return codec.TableSchema{
		Name: "people",
		Columns: []codec.ColumnDef{
			{Name: "id", DataType: codec.KindUint32, IsPrimaryKey: true},
			{Name: "name", DataType: codec.KindText},
			{Name: "age", DataType: codec.KindInt32},
			{Name: "profile", DataType: codec.KindJson, Nullable: true},
		},
		PrimaryKeyIndex: 0,
	}
}

func personRow(id uint32, name string, age int32, profile *codec.Json) Row {
	jv := codec.Null
	if profile != nil {
		jv = codec.JsonValue(*profile)
	}
	return Row{
		PK: codec.Uint32Value(id),
		Record: codec.Record{
			codec.Uint32Value(id),
			codec.TextValue(name),
			codec.Int32Value(age),
			jv,
		},
	}
}

func TestLikeMatchBasics(t *testing.T) {
	cases := []struct {
		text, pattern string
		want          bool
	}{
		{"hello", "h%o", true},
		{"hello", "h_llo", true},
		{"hello", "h_l", false},
		{"100%", "100%%", true},
		{"100x", "100%%", false},
		{"", "%", true},
		{"abc", "%", true},
		{"abc", "a%c", true},
		{"abc", "a%d", false},
		{"aaa", "a%a%a", true},
	}
	for _, c := range cases {
		if got := likeMatch(c.text, c.pattern); got != c.want {
			t.Errorf("likeMatch(%q, %q) = %v, want %v", c.text, c.pattern, got, c.want)
		}
	}
}

func TestParsePathGrammar(t *testing.T) {
	if _, err := ParsePath(""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := ParsePath("a."); err == nil {
		t.Error("expected error for trailing dot")
	}
	if _, err := ParsePath("a[]"); err == nil {
		t.Error("expected error for empty bracket")
	}
	if _, err := ParsePath("a[-1]"); err == nil {
		t.Error("expected error for negative bracket")
	}
	if _, err := ParsePath("a[x]"); err == nil {
		t.Error("expected error for non-numeric bracket")
	}
	if _, err := ParsePath("a[0"); err == nil {
		t.Error("expected error for unclosed bracket")
	}
	steps, err := ParsePath("a.b[0][1].c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 3 || steps[1].Key != "b" || len(steps[1].Indices) != 2 || steps[1].Indices[1] != 1 {
		t.Fatalf("unexpected parse result: %+v", steps)
	}
}

func TestExtractProjectsIntegerAndDecimal(t *testing.T) {
	obj := map[string]codec.Json{
		"count": codec.NewJson(int64(7)),
		"price": codec.NewJson(mustRatDecimal(t, "3.50")),
	}
	col := codec.NewJson(obj)

	ok, err := evalJsonExtract(col, "count", JsonCmp{Kind: JsonCmpEq, Value: codec.Int64Value(7)})
	if err != nil || !ok {
		t.Fatalf("expected count==7 to match, ok=%v err=%v", ok, err)
	}
	ok, err = evalJsonExtract(col, "price", JsonCmp{Kind: JsonCmpEq, Value: codec.DecimalValue(mustRatDecimal(t, "3.50"))})
	if err != nil || !ok {
		t.Fatalf("expected price==3.50 to match, ok=%v err=%v", ok, err)
	}
	ok, err = evalJsonExtract(col, "missing", JsonCmp{Kind: JsonCmpIsNull})
	if err != nil || !ok {
		t.Fatalf("expected missing path to satisfy IsNull, ok=%v err=%v", ok, err)
	}
	ok, err = evalJsonExtract(col, "missing", JsonCmp{Kind: JsonCmpEq, Value: codec.Int64Value(1)})
	if err != nil || ok {
		t.Fatalf("expected missing path to fail non-IsNull comparators, ok=%v err=%v", ok, err)
	}
}

func mustRatDecimal(t *testing.T, s string) codec.Decimal {
	t.Helper()
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		t.Fatalf("bad decimal literal %q", s)
	}
	num := new(big.Int).Mul(r.Num(), big.NewInt(100))
	num.Quo(num, r.Denom())
	d, err := codec.NewDecimal(num, 2)
	if err != nil {
		t.Fatalf("NewDecimal: %v", err)
	}
	return d
}

func TestJsonContains(t *testing.T) {
	target := codec.NewJson(map[string]codec.Json{
		"tags": codec.NewJson([]codec.Json{codec.NewJson("a"), codec.NewJson("b")}),
		"meta": codec.NewJson(map[string]codec.Json{"active": codec.NewJson(true)}),
	})
	pattern := codec.NewJson(map[string]codec.Json{
		"meta": codec.NewJson(map[string]codec.Json{"active": codec.NewJson(true)}),
	})
	if !evalJsonContains(target.Raw(), pattern.Raw()) {
		t.Fatal("expected containment to hold")
	}
	badPattern := codec.NewJson(map[string]codec.Json{
		"meta": codec.NewJson(map[string]codec.Json{"active": codec.NewJson(false)}),
	})
	if evalJsonContains(target.Raw(), badPattern.Raw()) {
		t.Fatal("expected containment to fail on mismatched value")
	}
}

func TestExecuteFilterSortPaginateProject(t *testing.T) {
	schema := peopleSchema()
	rows := []Row{
		personRow(3, "carol", 40, nil),
		personRow(1, "alice", 30, nil),
		personRow(2, "bob", 30, nil),
		personRow(4, "dave", 25, nil),
	}

	lim := uint64(2)
	off := uint64(0)
	q := Query{
		Select:  SelectSpec{Columns: []string{"name"}},
		Filter:  NotNull{Column: "name"},
		OrderBy: []OrderKey{{Column: "age", Desc: true}, {Column: "name"}},
		Limit:   &lim,
		Offset:  &off,
	}
	res, err := Execute(schema, rows, q, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows after limit, got %d", len(res.Rows))
	}
	if res.Rows[0].Record[1].Text != "carol" {
		t.Fatalf("expected carol (age 40) first, got %q", res.Rows[0].Record[1].Text)
	}
	// age column is not selected but must be nulled, not dropped (arity preserved).
	if !res.Rows[0].Record[2].IsNull() {
		t.Fatalf("expected unselected age column to be nulled, got %+v", res.Rows[0].Record[2])
	}
	// primary key is always retained even when not in Select.Columns.
	if res.Rows[0].Record[0].IsNull() {
		t.Fatal("expected primary key column to be retained")
	}
}

func TestExecuteRejectsUnknownColumn(t *testing.T) {
	schema := peopleSchema()
	q := Query{Select: SelectSpec{All: true}, Filter: IsNull{Column: "nope"}}
	if _, err := Execute(schema, nil, q, nil); err == nil {
		t.Fatal("expected ErrUnknownColumn")
	}
}

func TestExecuteEagerLoad(t *testing.T) {
	ordersSchema := codec.TableSchema{
		Name: "orders",
		Columns: []codec.ColumnDef{
			{Name: "id", DataType: codec.KindUint32, IsPrimaryKey: true},
			{Name: "customer_id", DataType: codec.KindUint32, ForeignKey: &codec.ForeignKey{TargetTable: "customers", TargetColumn: "id"}},
		},
		PrimaryKeyIndex: 0,
	}
	rows := []Row{
		{PK: codec.Uint32Value(1), Record: codec.Record{codec.Uint32Value(1), codec.Uint32Value(10)}},
		{PK: codec.Uint32Value(2), Record: codec.Record{codec.Uint32Value(2), codec.Uint32Value(11)}},
	}
	var loadedPKs []codec.Value
	loader := func(table string, pks []codec.Value) ([]Row, error) {
		if table != "customers" {
			t.Fatalf("unexpected eager-load table %q", table)
		}
		loadedPKs = pks
		return []Row{{PK: pks[0]}}, nil
	}
	q := Query{Select: SelectSpec{All: true}, With: []string{"customers"}}
	res, err := Execute(ordersSchema, rows, q, loader)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Eager["customers"]) == 0 {
		t.Fatal("expected eager-loaded customers")
	}
	if len(loadedPKs) != 2 {
		t.Fatalf("expected 2 distinct FK values, got %d", len(loadedPKs))
	}
}
