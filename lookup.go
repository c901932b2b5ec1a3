package icdb

import (
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
	"github.com/canisterstack/icdb/internal/query"
	"github.com/canisterstack/icdb/internal/table"
	"github.com/canisterstack/icdb/internal/txn"
)

// pkKeyOf renders a Value into a comparable string, the same way the
// query and integrity packages do internally — codec.Value embeds a
// *big.Int and a []byte, so it cannot be a map key directly.
func pkKeyOf(v codec.Value) string {
	b, err := codec.Encode(v)
	if err != nil {
		return fmt.Sprintf("%d:%v", v.Kind, v)
	}
	return fmt.Sprintf("%d:%x", v.Kind, b)
}

// mergedRows scans tableName's committed state and, when tx is non-nil,
// overlays that transaction's pending writes on top: a tombstoned key is
// dropped, a put key's record is substituted, and a put key absent from
// the committed scan is appended as a freshly-inserted row (§4.7 reads
// merge overlay with committed rows; §4.10 isolation — only the calling
// transaction's own overlay is ever visible).
func (db *Database) mergedRows(tableName string, tx *txn.ID, caller codec.Principal) ([]query.Row, error) {
	th, ok := db.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	committed, err := th.store.Scan()
	if err != nil {
		return nil, err
	}
	pkIdx := th.schema.PrimaryKeyIndex

	var overlay []txn.Write
	if tx != nil {
		overlay, err = db.txns.Overlay(*tx, caller, tableName)
		if err != nil {
			return nil, err
		}
	}
	overlayByKey := make(map[string]txn.Write, len(overlay))
	for _, w := range overlay {
		overlayByKey[pkKeyOf(w.PK)] = w
	}

	rows := make([]query.Row, 0, len(committed))
	seen := make(map[string]bool, len(overlay))
	for _, row := range committed {
		k := pkKeyOf(row.Record[pkIdx])
		if w, ok := overlayByKey[k]; ok {
			seen[k] = true
			if w.Entry.Tombstone {
				continue
			}
			rows = append(rows, query.Row{PK: w.Entry.Record[pkIdx], Record: w.Entry.Record, Source: row.ID})
			continue
		}
		rows = append(rows, query.Row{PK: row.Record[pkIdx], Record: row.Record, Source: row.ID})
	}
	for _, w := range overlay {
		k := pkKeyOf(w.PK)
		if seen[k] || w.Entry.Tombstone {
			continue
		}
		rows = append(rows, query.Row{PK: w.Entry.Record[pkIdx], Record: w.Entry.Record, Source: nil})
	}
	return rows, nil
}

// findRowByPK scans tableName's committed rows for pk, returning the
// physical RowID and Record when present.
func (db *Database) findRowByPK(tableName string, pk codec.Value) (table.RowID, codec.Record, bool, error) {
	th, ok := db.tables[tableName]
	if !ok {
		return table.RowID{}, nil, false, fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	rows, err := th.store.Scan()
	if err != nil {
		return table.RowID{}, nil, false, err
	}
	idx := th.schema.PrimaryKeyIndex
	for _, r := range rows {
		cmp, err := codec.Compare(r.Record[idx], pk)
		if err == nil && cmp == 0 {
			return r.ID, r.Record, true, nil
		}
	}
	return table.RowID{}, nil, false, nil
}

// dbLookup implements integrity.Lookup against a merged committed+
// overlay view of tx (tx nil means committed-only — the view applyWrite
// consults mid-commit, where every prior write in the same Commit call
// has already landed in the table stores directly).
type dbLookup struct {
	db    *Database
	tx    *txn.ID
	owner codec.Principal
}

func (l dbLookup) Exists(tableName string, pk codec.Value) (bool, error) {
	rows, err := l.db.mergedRows(tableName, l.tx, l.owner)
	if err != nil {
		return false, err
	}
	k := pkKeyOf(pk)
	for _, r := range rows {
		if pkKeyOf(r.PK) == k {
			return true, nil
		}
	}
	return false, nil
}

func (l dbLookup) RowsWhereColumnEquals(tableName, column string, value codec.Value) ([]codec.Value, error) {
	th, ok := l.db.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	idx := th.schema.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("%w: column %q", query.ErrUnknownColumn, column)
	}
	rows, err := l.db.mergedRows(tableName, l.tx, l.owner)
	if err != nil {
		return nil, err
	}
	var out []codec.Value
	for _, r := range rows {
		cmp, err := codec.Compare(r.Record[idx], value)
		if err == nil && cmp == 0 {
			out = append(out, r.PK)
		}
	}
	return out, nil
}
