package query

import "github.com/canisterstack/icdb/internal/codec"

// CompareOp is one of the six relational operators of Compare (§4.7).
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// FilterExpr is the recursive predicate sum type of §4.7. Each variant is
// a distinct Go type implementing the marker method; evalFilter
// type-switches over them.
type FilterExpr interface {
	isFilterExpr()
}

// Compare tests column against Value using Op.
type Compare struct {
	Column string
	Op     CompareOp
	Value  codec.Value
}

// In tests column membership against Values.
type In struct {
	Column string
	Values []codec.Value
}

// Like applies SQL LIKE semantics to a text column (§4.7): '%' = any
// run, '_' = any single char, '%%' = literal '%'.
type Like struct {
	Column  string
	Pattern string
}

// IsNull matches rows where column is Null.
type IsNull struct {
	Column string
}

// NotNull matches rows where column is not Null.
type NotNull struct {
	Column string
}

// JsonColumn applies a JsonFilter to a Json-typed column.
type JsonColumn struct {
	Column string
	Filter JsonFilter
}

// And, Or, Not are the boolean combinators.
type And struct{ A, B FilterExpr }
type Or struct{ A, B FilterExpr }
type Not struct{ A FilterExpr }

func (Compare) isFilterExpr()    {}
func (In) isFilterExpr()         {}
func (Like) isFilterExpr()       {}
func (IsNull) isFilterExpr()     {}
func (NotNull) isFilterExpr()    {}
func (JsonColumn) isFilterExpr() {}
func (And) isFilterExpr()        {}
func (Or) isFilterExpr()         {}
func (Not) isFilterExpr()        {}
