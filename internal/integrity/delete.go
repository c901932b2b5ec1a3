package integrity

import (
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
)

// DeleteBehavior is caller-chosen per delete call (§4.8).
type DeleteBehavior int

const (
	// Restrict fails if any row anywhere still references the deleted
	// primary key.
	Restrict DeleteBehavior = iota
	// Cascade deletes every referencing row first, recursively.
	Cascade
	// Break nulls out referencing FK columns that are nullable, and
	// fails if any referencing FK column is not.
	Break
)

// TablePK addresses one row by table name and primary key value.
type TablePK struct {
	Table string
	PK    codec.Value
}

// NullifyOp is one Break-mode action: set table.column to Null on the
// row identified by PK.
type NullifyOp struct {
	Table  string
	Column string
	PK     codec.Value
}

// DeletePlan is what PlanDelete computes: every row to delete, in an
// order safe to apply directly (referencing rows before the rows they
// reference), plus every FK column to null out under Break.
type DeletePlan struct {
	Deletes []TablePK
	Nullify []NullifyOp
}

// deleteFrame is one stack entry of the iterative depth-first traversal:
// the node being processed and how far through its referencing edges the
// traversal has gotten.
type deleteFrame struct {
	node    TablePK
	edges   []referencerEdge
	edgeIdx int
}

// PlanDelete computes the effect of deleting root under behavior,
// traversing the foreign-key reference graph depth-first with an
// explicit stack (never recursion) and a visited set of (table, pk)
// pairs that short-circuits on any revisit, guaranteeing termination even
// across a cycle (§4.8).
func (g *Guard) PlanDelete(root TablePK, behavior DeleteBehavior, lookup Lookup) (DeletePlan, error) {
	visited := map[string]bool{tablePKKey(root): true}
	var deletes []TablePK
	var nullify []NullifyOp

	stack := []*deleteFrame{{node: root, edges: g.referencers[root.Table]}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.edgeIdx >= len(top.edges) {
			deletes = append(deletes, top.node)
			stack = stack[:len(stack)-1]
			continue
		}
		edge := top.edges[top.edgeIdx]
		top.edgeIdx++

		refPKs, err := lookup.RowsWhereColumnEquals(edge.SourceTable, edge.Column, top.node.PK)
		if err != nil {
			return DeletePlan{}, err
		}
		if len(refPKs) == 0 {
			continue
		}

		switch behavior {
		case Restrict:
			return DeletePlan{}, fmt.Errorf("%w: %q primary key %v is referenced by %q.%q",
				ErrForeignKeyConstraintViolation, top.node.Table, top.node.PK, edge.SourceTable, edge.Column)
		case Break:
			if !edge.Nullable {
				return DeletePlan{}, fmt.Errorf("%w: %q.%q referencing %q primary key %v is not nullable",
					ErrForeignKeyConstraintViolation, edge.SourceTable, edge.Column, top.node.Table, top.node.PK)
			}
			for _, pk := range refPKs {
				nullify = append(nullify, NullifyOp{Table: edge.SourceTable, Column: edge.Column, PK: pk})
			}
		case Cascade:
			for _, pk := range refPKs {
				child := TablePK{Table: edge.SourceTable, PK: pk}
				key := tablePKKey(child)
				if visited[key] {
					continue
				}
				visited[key] = true
				stack = append(stack, &deleteFrame{node: child, edges: g.referencers[child.Table]})
			}
		default:
			return DeletePlan{}, fmt.Errorf("integrity: unknown delete behavior %d", behavior)
		}
	}

	return DeletePlan{Deletes: deletes, Nullify: nullify}, nil
}

// tablePKKey renders a TablePK as a comparable map key. codec.Value embeds
// a []byte (Blob) field, so TablePK itself cannot be used as a map key
// directly; this mirrors the query package's valueKey pattern.
func tablePKKey(t TablePK) string {
	b, err := codec.Encode(t.PK)
	if err != nil {
		return fmt.Sprintf("%s/%d:%v", t.Table, t.PK.Kind, t.PK)
	}
	return fmt.Sprintf("%s/%d:%x", t.Table, t.PK.Kind, b)
}
