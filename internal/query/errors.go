// Package query implements the QueryEngine (C7): Query/FilterExpr/
// JsonFilter evaluation, sorting, pagination, projection, and eager-load
// set construction over a table's already-scanned rows (§4.7).
package query

import "errors"

// ErrInvalidQuery is wrapped by malformed filter/path input: a bad JSON
// path grammar, a LIKE or Json filter on a column of the wrong kind, etc.
var ErrInvalidQuery = errors.New("query: invalid query")

// ErrUnknownColumn is returned when a Query or FilterExpr references a
// column the schema does not declare.
var ErrUnknownColumn = errors.New("query: unknown column")
