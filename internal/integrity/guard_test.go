package integrity

import (
	"errors"
	"testing"

	"github.com/canisterstack/icdb/internal/codec"
)

func customersOrdersSchemas() map[string]codec.TableSchema {
	customers := codec.TableSchema{
		Name: "customers",
		Columns: []codec.ColumnDef{
			{Name: "id", DataType: codec.KindUint32, IsPrimaryKey: true},
			{Name: "name", DataType: codec.KindText},
		},
		PrimaryKeyIndex: 0,
	}
	orders := codec.TableSchema{
		Name: "orders",
		Columns: []codec.ColumnDef{
			{Name: "id", DataType: codec.KindUint32, IsPrimaryKey: true},
			{Name: "customer_id", DataType: codec.KindUint32, Nullable: true,
				ForeignKey: &codec.ForeignKey{TargetTable: "customers", TargetColumn: "id"}},
		},
		PrimaryKeyIndex: 0,
	}
	return map[string]codec.TableSchema{"customers": customers, "orders": orders}
}

func TestCheckInsertRejectsPrimaryKeyConflict(t *testing.T) {
	g := NewGuard(customersOrdersSchemas())
	lu := newFakeLookup()
	lu.put("customers", codec.Uint32Value(1), nil)

	rec := codec.Record{codec.Uint32Value(1), codec.TextValue("dup")}
	err := g.CheckInsert("customers", rec, lu)
	if !errors.Is(err, ErrPrimaryKeyConflict) {
		t.Fatalf("expected ErrPrimaryKeyConflict, got %v", err)
	}
}

func TestCheckInsertRejectsBrokenForeignKey(t *testing.T) {
	g := NewGuard(customersOrdersSchemas())
	lu := newFakeLookup()

	rec := codec.Record{codec.Uint32Value(1), codec.Uint32Value(99)}
	err := g.CheckInsert("orders", rec, lu)
	if !errors.Is(err, ErrBrokenForeignKeyReference) {
		t.Fatalf("expected ErrBrokenForeignKeyReference, got %v", err)
	}
}

func TestCheckInsertAllowsNullForeignKey(t *testing.T) {
	g := NewGuard(customersOrdersSchemas())
	lu := newFakeLookup()

	rec := codec.Record{codec.Uint32Value(1), codec.Null}
	if err := g.CheckInsert("orders", rec, lu); err != nil {
		t.Fatalf("expected nullable FK to be accepted, got %v", err)
	}
}

func TestCheckUpdatePKChangeCollidesOnExisting(t *testing.T) {
	g := NewGuard(customersOrdersSchemas())
	lu := newFakeLookup()
	lu.put("customers", codec.Uint32Value(1), nil)
	lu.put("customers", codec.Uint32Value(2), nil)

	old := codec.Record{codec.Uint32Value(1), codec.TextValue("a")}
	next := codec.Record{codec.Uint32Value(2), codec.TextValue("a")}
	_, err := g.CheckUpdate("customers", old, next, lu)
	if !errors.Is(err, ErrPrimaryKeyConflict) {
		t.Fatalf("expected ErrPrimaryKeyConflict, got %v", err)
	}
}

func TestCheckUpdatePKChangeCollectsCascades(t *testing.T) {
	g := NewGuard(customersOrdersSchemas())
	lu := newFakeLookup()
	lu.put("customers", codec.Uint32Value(1), nil)
	lu.put("orders", codec.Uint32Value(10), map[string]codec.Value{"customer_id": codec.Uint32Value(1)})
	lu.put("orders", codec.Uint32Value(11), map[string]codec.Value{"customer_id": codec.Uint32Value(1)})

	old := codec.Record{codec.Uint32Value(1), codec.TextValue("a")}
	next := codec.Record{codec.Uint32Value(9), codec.TextValue("a")}
	cascades, err := g.CheckUpdate("customers", old, next, lu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cascades) != 2 {
		t.Fatalf("expected 2 cascades, got %d", len(cascades))
	}
	for _, c := range cascades {
		if c.Table != "orders" || c.Column != "customer_id" || !codec.Equal(c.NewFK, codec.Uint32Value(9)) {
			t.Fatalf("unexpected cascade: %+v", c)
		}
	}
}

func TestCheckUpdateWithoutPKChangeStillValidatesForeignKeys(t *testing.T) {
	g := NewGuard(customersOrdersSchemas())
	lu := newFakeLookup()

	old := codec.Record{codec.Uint32Value(1), codec.Uint32Value(1)}
	next := codec.Record{codec.Uint32Value(1), codec.Uint32Value(404)}
	_, err := g.CheckUpdate("orders", old, next, lu)
	if !errors.Is(err, ErrBrokenForeignKeyReference) {
		t.Fatalf("expected ErrBrokenForeignKeyReference, got %v", err)
	}
}
