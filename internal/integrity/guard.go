package integrity

import (
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
)

// Lookup is how the guard consults committed-state-merged-with-overlay
// without owning any storage itself; the caller (txn.Manager, via
// icdb.Database) supplies an implementation backed by table.Store plus
// the active transaction's overlay.
type Lookup interface {
	// Exists reports whether table has a row with primary key pk.
	Exists(table string, pk codec.Value) (bool, error)
	// RowsWhereColumnEquals returns the primary keys of every row in
	// table whose named column equals value.
	RowsWhereColumnEquals(table, column string, value codec.Value) ([]codec.Value, error)
}

// referencerEdge is one (source table, FK column) pair that targets a
// given table, precomputed once per Guard from every known schema.
type referencerEdge struct {
	SourceTable string
	Column      string
	Nullable    bool
}

// Guard enforces PK/FK integrity across a fixed set of table schemas.
type Guard struct {
	schemas     map[string]codec.TableSchema
	referencers map[string][]referencerEdge // target table -> edges referencing it
}

// NewGuard builds a Guard over the full set of declared table schemas,
// precomputing the reverse foreign-key index used by delete-behavior
// traversal and PK-change cascades.
func NewGuard(schemas map[string]codec.TableSchema) *Guard {
	referencers := map[string][]referencerEdge{}
	for _, s := range schemas {
		for _, c := range s.Columns {
			if c.ForeignKey == nil {
				continue
			}
			t := c.ForeignKey.TargetTable
			referencers[t] = append(referencers[t], referencerEdge{
				SourceTable: s.Name,
				Column:      c.Name,
				Nullable:    c.Nullable,
			})
		}
	}
	return &Guard{schemas: schemas, referencers: referencers}
}

// PKCascade describes one referencing row that must have its FK column
// updated to follow a primary-key change.
type PKCascade struct {
	Table  string
	Column string
	PK     codec.Value // the referencing row's own primary key
	NewFK  codec.Value
}

// CheckInsert enforces PK uniqueness and FK existence for rec (§4.8,
// insert). The hook pipeline must have already run, so rec is in its
// persisted (sanitized) form.
func (g *Guard) CheckInsert(table string, rec codec.Record, lookup Lookup) error {
	schema, ok := g.schemas[table]
	if !ok {
		return fmt.Errorf("integrity: unknown table %q", table)
	}
	pk := rec[schema.PrimaryKeyIndex]
	exists, err := lookup.Exists(table, pk)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: table %q primary key %v already exists", ErrPrimaryKeyConflict, table, pk)
	}
	return g.checkForeignKeys(schema, rec, lookup)
}

// CheckUpdate enforces, for an update from oldRec to newRec: if the
// primary key changed, the new value must not collide and every
// referencing row is reported as a cascade the caller must apply; FK
// columns are re-validated exactly as on insert (§4.8, update).
func (g *Guard) CheckUpdate(table string, oldRec, newRec codec.Record, lookup Lookup) ([]PKCascade, error) {
	schema, ok := g.schemas[table]
	if !ok {
		return nil, fmt.Errorf("integrity: unknown table %q", table)
	}
	oldPK := oldRec[schema.PrimaryKeyIndex]
	newPK := newRec[schema.PrimaryKeyIndex]

	var cascades []PKCascade
	if pkChanged(oldPK, newPK) {
		exists, err := lookup.Exists(table, newPK)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: table %q primary key %v already exists", ErrPrimaryKeyConflict, table, newPK)
		}
		for _, edge := range g.referencers[table] {
			pks, err := lookup.RowsWhereColumnEquals(edge.SourceTable, edge.Column, oldPK)
			if err != nil {
				return nil, err
			}
			for _, pk := range pks {
				cascades = append(cascades, PKCascade{Table: edge.SourceTable, Column: edge.Column, PK: pk, NewFK: newPK})
			}
		}
	}
	if err := g.checkForeignKeys(schema, newRec, lookup); err != nil {
		return nil, err
	}
	return cascades, nil
}

func (g *Guard) checkForeignKeys(schema codec.TableSchema, rec codec.Record, lookup Lookup) error {
	for i, col := range schema.Columns {
		if col.ForeignKey == nil {
			continue
		}
		v := rec[i]
		if v.IsNull() {
			continue
		}
		exists, err := lookup.Exists(col.ForeignKey.TargetTable, v)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: table %q column %q references missing %q primary key %v",
				ErrBrokenForeignKeyReference, schema.Name, col.Name, col.ForeignKey.TargetTable, v)
		}
	}
	return nil
}

// pkChanged reports whether two primary-key Values differ, treating a
// comparison error (should not occur for same-kind PK columns) as a
// change, which is the conservative direction — it triggers the
// collision/cascade checks rather than silently skipping them.
func pkChanged(oldPK, newPK codec.Value) bool {
	cmp, err := codec.Compare(oldPK, newPK)
	if err != nil {
		return true
	}
	return cmp != 0
}
