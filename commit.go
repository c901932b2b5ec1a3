package icdb

import (
	"fmt"

	"github.com/canisterstack/icdb/internal/txn"
)

// applyWrite materializes one drained transaction write against the real
// table stores, used as the txn.Apply callback for every Commit (§4.10:
// "deferred PK/FK checks are re-evaluated at commit time"). It is called
// once per overlay entry, in the order the entries were written, and the
// table stores already reflect every earlier write of the same commit —
// so a committed-only Lookup is correct here even for a multi-row
// operation that writes to the same table more than once.
func (db *Database) applyWrite(w txn.Write) (func() error, error) {
	th, ok := db.tables[w.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, w.Table)
	}
	lookup := dbLookup{db: db}

	rowID, oldRec, found, err := db.findRowByPK(w.Table, w.PK)
	if err != nil {
		return nil, err
	}

	if w.Entry.Tombstone {
		if !found {
			return nil, fmt.Errorf("icdb: commit: delete target %v not found in table %q", w.PK, w.Table)
		}
		if err := th.store.Delete(rowID); err != nil {
			return nil, err
		}
		if err := db.persistTable(w.Table); err != nil {
			return nil, err
		}
		return func() error {
			if _, err := th.store.Insert(oldRec); err != nil {
				return err
			}
			return db.persistTable(w.Table)
		}, nil
	}

	if !found || w.Entry.Insert {
		// CheckInsert re-verifies PK uniqueness against committed state:
		// an insert whose key was committed by another transaction in the
		// meantime fails here rather than silently overwriting it.
		if err := db.guard.CheckInsert(w.Table, w.Entry.Record, lookup); err != nil {
			return nil, err
		}
		newID, err := th.store.Insert(w.Entry.Record)
		if err != nil {
			return nil, err
		}
		if err := db.persistTable(w.Table); err != nil {
			return nil, err
		}
		return func() error {
			if err := th.store.Delete(newID); err != nil {
				return err
			}
			return db.persistTable(w.Table)
		}, nil
	}

	if _, err := db.guard.CheckUpdate(w.Table, oldRec, w.Entry.Record, lookup); err != nil {
		return nil, err
	}
	newID, err := th.store.Update(rowID, w.Entry.Record)
	if err != nil {
		return nil, err
	}
	if err := db.persistTable(w.Table); err != nil {
		return nil, err
	}
	return func() error {
		if _, err := th.store.Update(newID, oldRec); err != nil {
			return err
		}
		return db.persistTable(w.Table)
	}, nil
}
