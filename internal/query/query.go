package query

import "github.com/canisterstack/icdb/internal/codec"

// Row is one record handed to the query engine: its primary-key Value
// (for dedup and eager-load FK matching) and the record itself. Source
// carries the caller's opaque row locator (e.g. a table.RowID) through
// unexamined, so Execute need not import the table package.
type Row struct {
	PK     codec.Value
	Record codec.Record
	Source any
}

// SelectSpec chooses which columns a query projects. The primary key is
// always retained regardless of Columns (§4.7).
type SelectSpec struct {
	All     bool
	Columns []string
}

// OrderKey is one (column, direction) pair of a compound sort.
type OrderKey struct {
	Column string
	Desc   bool
}

// Query is the full shape of a select operation (§4.7).
type Query struct {
	Select  SelectSpec
	Filter  FilterExpr // nil matches every row
	OrderBy []OrderKey
	Limit   *uint64
	Offset  *uint64
	With    []string // eager-load target table names
}

// Result is what Execute returns: the primary rows plus, for every
// requested eager-load table, the auxiliary rows referenced by the
// primary result set's foreign keys.
type Result struct {
	Rows  []Row
	Eager map[string][]Row
}

// LoadByPK fetches every row of targetTable whose primary key is in pks,
// supplied by the caller (the Database facade) since the query engine has
// no access to other tables' stores.
type LoadByPK func(targetTable string, pks []codec.Value) ([]Row, error)
