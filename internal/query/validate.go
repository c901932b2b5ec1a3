package query

import (
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
)

// Validate checks every column reference in q against schema, returning
// ErrUnknownColumn before any scan starts (§4.11).
func Validate(schema codec.TableSchema, q Query) error {
	if !q.Select.All {
		for _, c := range q.Select.Columns {
			if schema.ColumnIndex(c) < 0 {
				return fmt.Errorf("%w: select column %q", ErrUnknownColumn, c)
			}
		}
	}
	for _, ok := range q.OrderBy {
		if schema.ColumnIndex(ok.Column) < 0 {
			return fmt.Errorf("%w: order_by column %q", ErrUnknownColumn, ok.Column)
		}
	}
	if q.Filter != nil {
		if err := validateFilter(schema, q.Filter); err != nil {
			return err
		}
	}
	return nil
}

func validateFilter(schema codec.TableSchema, f FilterExpr) error {
	switch v := f.(type) {
	case Compare:
		return requireColumn(schema, v.Column)
	case In:
		return requireColumn(schema, v.Column)
	case Like:
		return requireColumn(schema, v.Column)
	case IsNull:
		return requireColumn(schema, v.Column)
	case NotNull:
		return requireColumn(schema, v.Column)
	case JsonColumn:
		return requireColumn(schema, v.Column)
	case And:
		if err := validateFilter(schema, v.A); err != nil {
			return err
		}
		return validateFilter(schema, v.B)
	case Or:
		if err := validateFilter(schema, v.A); err != nil {
			return err
		}
		return validateFilter(schema, v.B)
	case Not:
		return validateFilter(schema, v.A)
	default:
		return fmt.Errorf("%w: unknown filter expression %T", ErrInvalidQuery, f)
	}
}

func requireColumn(schema codec.TableSchema, name string) error {
	if schema.ColumnIndex(name) < 0 {
		return fmt.Errorf("%w: filter column %q", ErrUnknownColumn, name)
	}
	return nil
}
