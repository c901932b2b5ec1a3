package integrity

import "github.com/canisterstack/icdb/internal/codec"

// fakeRow is one row tracked by fakeLookup, keyed by its primary key.
type fakeRow struct {
	pk  codec.Value
	fks map[string]codec.Value // column name -> value, for RowsWhereColumnEquals
}

// fakeLookup is an in-memory Lookup implementation for tests, standing in
// for what txn.Manager will eventually back with table.Store + overlay.
type fakeLookup struct {
	rows map[string][]fakeRow // table -> rows
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{rows: map[string][]fakeRow{}}
}

func (f *fakeLookup) put(table string, pk codec.Value, fks map[string]codec.Value) {
	f.rows[table] = append(f.rows[table], fakeRow{pk: pk, fks: fks})
}

func (f *fakeLookup) Exists(table string, pk codec.Value) (bool, error) {
	for _, r := range f.rows[table] {
		if codec.Equal(r.pk, pk) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLookup) RowsWhereColumnEquals(table, column string, value codec.Value) ([]codec.Value, error) {
	var out []codec.Value
	for _, r := range f.rows[table] {
		v, ok := r.fks[column]
		if ok && codec.Equal(v, value) {
			out = append(out, r.pk)
		}
	}
	return out, nil
}
