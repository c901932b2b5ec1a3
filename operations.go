package icdb

import (
	"errors"
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
	"github.com/canisterstack/icdb/internal/hooks"
	"github.com/canisterstack/icdb/internal/integrity"
	"github.com/canisterstack/icdb/internal/query"
	"github.com/canisterstack/icdb/internal/txn"
)

// UpdateRequest describes a bulk update: every row matching Filter (nil
// matches every row) has each named column in Set replaced, run through
// the column's hook pipeline before the integrity checks see it. Set may
// include the primary-key column, triggering the same PK-change cascade
// an insert-free rename would (§4.8).
type UpdateRequest struct {
	Filter query.FilterExpr
	Set    map[string]codec.Value
}

// beginAnon starts a transaction that exists only for the duration of a
// single non-transactional operation (§4.10: "a non-transactional
// operation behaves as its own begin/op/commit").
func (db *Database) beginAnon(caller codec.Principal) txn.ID {
	return db.txns.Begin(caller)
}

// BeginTransaction opens a new transaction owned by caller.
func (db *Database) BeginTransaction(caller codec.Principal) (txn.ID, error) {
	if !db.aclList.Allowed(caller) {
		return 0, ErrUnauthorized
	}
	return db.txns.Begin(caller), nil
}

// Commit drains tx's overlay against the live table stores, rolling back
// everything already applied if any write fails its deferred integrity
// check.
func (db *Database) Commit(tx txn.ID, caller codec.Principal) error {
	if !db.aclList.Allowed(caller) {
		return ErrUnauthorized
	}
	if err := db.txns.Commit(tx, caller, db.applyWrite); err != nil {
		if errors.Is(err, txn.ErrCommitConflict) {
			db.logger.Printf("icdb: commit of transaction %d aborted: %v", tx, err)
		}
		return err
	}
	return nil
}

// Rollback discards tx's overlay without applying any of it.
func (db *Database) Rollback(tx txn.ID, caller codec.Principal) error {
	if !db.aclList.Allowed(caller) {
		return ErrUnauthorized
	}
	return db.txns.Rollback(tx, caller)
}

// AclAdd registers p as an allowed caller, persisting page 1.
func (db *Database) AclAdd(caller, p codec.Principal) error {
	if !db.aclList.Allowed(caller) {
		return ErrUnauthorized
	}
	if err := db.aclList.Add(p); err != nil {
		return err
	}
	return db.persistACL()
}

// AclRemove revokes p, persisting page 1.
func (db *Database) AclRemove(caller, p codec.Principal) error {
	if !db.aclList.Allowed(caller) {
		return ErrUnauthorized
	}
	db.aclList.Remove(p)
	return db.persistACL()
}

// AclList reports every currently-allowed principal.
func (db *Database) AclList(caller codec.Principal) ([]codec.Principal, error) {
	if !db.aclList.Allowed(caller) {
		return nil, ErrUnauthorized
	}
	return db.aclList.Principals(), nil
}

// Insert sanitizes and validates rec against tableName's schema, checks
// PK/FK integrity against the merged view tx (or an anonymous
// transaction, if tx is nil) sees, then stages the write (§4.9, §4.8).
func (db *Database) Insert(tableName string, rec codec.Record, tx *txn.ID, caller codec.Principal) error {
	if !db.aclList.Allowed(caller) {
		return ErrUnauthorized
	}
	th, ok := db.tables[tableName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	sanitized, err := hooks.ApplyRecord(th.schema, rec)
	if err != nil {
		return err
	}
	if err := sanitized.Validate(th.schema); err != nil {
		return err
	}

	lookup := dbLookup{db: db, tx: tx, owner: caller}
	if err := db.guard.CheckInsert(tableName, sanitized, lookup); err != nil {
		return err
	}
	pk := sanitized[th.schema.PrimaryKeyIndex]

	if tx != nil {
		return db.txns.Insert(*tx, caller, tableName, pk, sanitized)
	}
	id := db.beginAnon(caller)
	if err := db.txns.Insert(id, caller, tableName, pk, sanitized); err != nil {
		_ = db.txns.Rollback(id, caller)
		return err
	}
	return db.txns.Commit(id, caller, db.applyWrite)
}

// Select runs q against tableName's merged committed+overlay view,
// resolving any With eager-load against the same tx (§4.7).
func (db *Database) Select(tableName string, q query.Query, tx *txn.ID, caller codec.Principal) (query.Result, error) {
	if !db.aclList.Allowed(caller) {
		return query.Result{}, ErrUnauthorized
	}
	th, ok := db.tables[tableName]
	if !ok {
		return query.Result{}, fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	rows, err := db.mergedRows(tableName, tx, caller)
	if err != nil {
		return query.Result{}, err
	}
	loadByPK := func(target string, pks []codec.Value) ([]query.Row, error) {
		targetRows, err := db.mergedRows(target, tx, caller)
		if err != nil {
			return nil, err
		}
		want := make(map[string]bool, len(pks))
		for _, pk := range pks {
			want[pkKeyOf(pk)] = true
		}
		var out []query.Row
		for _, r := range targetRows {
			if want[pkKeyOf(r.PK)] {
				out = append(out, r)
			}
		}
		return out, nil
	}
	return query.Execute(th.schema, rows, q, loadByPK)
}

// matchRows selects every row of tableName the filter accepts, reusing
// query.Execute's validated filter evaluation without its sort/paginate/
// project stages.
func (db *Database) matchRows(tableName string, filter query.FilterExpr, tx *txn.ID, caller codec.Principal) ([]query.Row, *tableHandle, error) {
	th, ok := db.tables[tableName]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	rows, err := db.mergedRows(tableName, tx, caller)
	if err != nil {
		return nil, nil, err
	}
	result, err := query.Execute(th.schema, rows, query.Query{Select: query.SelectSpec{All: true}, Filter: filter}, nil)
	if err != nil {
		return nil, nil, err
	}
	return result.Rows, th, nil
}

// Update applies req to every row tableName's Filter matches: each
// changed column is sanitized/validated, PK-change cascades are computed
// immediately (against the merged view so far, including earlier rows of
// this same call) and staged alongside the row itself, and PK/FK
// re-validation is deferred to commit like any other write (§4.8).
func (db *Database) Update(tableName string, req UpdateRequest, tx *txn.ID, caller codec.Principal) (int, error) {
	if !db.aclList.Allowed(caller) {
		return 0, ErrUnauthorized
	}
	th, ok := db.tables[tableName]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	for col := range req.Set {
		if th.schema.ColumnIndex(col) < 0 {
			return 0, fmt.Errorf("%w: update column %q", query.ErrUnknownColumn, col)
		}
	}

	matched, _, err := db.matchRows(tableName, req.Filter, tx, caller)
	if err != nil {
		return 0, err
	}

	activeTx := tx
	anon := false
	if activeTx == nil {
		id := db.beginAnon(caller)
		activeTx = &id
		anon = true
	}
	rollbackAnon := func() { _ = db.txns.Rollback(*activeTx, caller) }

	for _, row := range matched {
		newRec := append(codec.Record(nil), row.Record...)
		for col, val := range req.Set {
			idx := th.schema.ColumnIndex(col)
			sv, err := hooks.Apply(th.schema.Columns[idx], val)
			if err != nil {
				if anon {
					rollbackAnon()
				}
				return 0, err
			}
			newRec[idx] = sv
		}
		if err := newRec.Validate(th.schema); err != nil {
			if anon {
				rollbackAnon()
			}
			return 0, err
		}

		lookup := dbLookup{db: db, tx: activeTx, owner: caller}
		cascades, err := db.guard.CheckUpdate(tableName, row.Record, newRec, lookup)
		if err != nil {
			if anon {
				rollbackAnon()
			}
			return 0, err
		}

		oldPK := row.Record[th.schema.PrimaryKeyIndex]
		newPK := newRec[th.schema.PrimaryKeyIndex]
		if cmp, err := codec.Compare(oldPK, newPK); err != nil || cmp != 0 {
			// A PK rename is staged as delete-then-create so commit's
			// found/not-found branching handles the relocation; the create
			// carries insert intent so a concurrently committed newPK is a
			// conflict, not an overwrite.
			if err := db.txns.Delete(*activeTx, caller, tableName, oldPK); err != nil {
				if anon {
					rollbackAnon()
				}
				return 0, err
			}
			if err := db.txns.Insert(*activeTx, caller, tableName, newPK, newRec); err != nil {
				if anon {
					rollbackAnon()
				}
				return 0, err
			}
		} else if err := db.txns.Put(*activeTx, caller, tableName, newPK, newRec); err != nil {
			if anon {
				rollbackAnon()
			}
			return 0, err
		}

		for _, c := range cascades {
			if err := db.applyCascade(c, activeTx, caller); err != nil {
				if anon {
					rollbackAnon()
				}
				return 0, err
			}
		}
	}

	if anon {
		if err := db.txns.Commit(*activeTx, caller, db.applyWrite); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// applyCascade loads a referencing row's current (committed+overlay)
// record, sets its FK column to the cascade's new value, and stages the
// result.
func (db *Database) applyCascade(c integrity.PKCascade, tx *txn.ID, caller codec.Principal) error {
	cth, ok := db.tables[c.Table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, c.Table)
	}
	rows, err := db.mergedRows(c.Table, tx, caller)
	if err != nil {
		return err
	}
	k := pkKeyOf(c.PK)
	for _, r := range rows {
		if pkKeyOf(r.PK) != k {
			continue
		}
		idx := cth.schema.ColumnIndex(c.Column)
		updated := append(codec.Record(nil), r.Record...)
		updated[idx] = c.NewFK
		return db.txns.Put(*tx, caller, c.Table, c.PK, updated)
	}
	return fmt.Errorf("icdb: cascade target %v not found in table %q", c.PK, c.Table)
}

// Delete plans and stages the effect of deleting every row tableName's
// filter matches under behavior — Restrict/Cascade/Break over the
// foreign-key graph, computed immediately via the merged view so
// multiple roots in one call see each other's pending nullify/delete
// writes (§4.8). It returns the number of rows deleted from tableName
// itself; rows cascaded away in other tables are applied but not counted.
func (db *Database) Delete(tableName string, behavior integrity.DeleteBehavior, filter query.FilterExpr, tx *txn.ID, caller codec.Principal) (int, error) {
	if !db.aclList.Allowed(caller) {
		return 0, ErrUnauthorized
	}
	matched, _, err := db.matchRows(tableName, filter, tx, caller)
	if err != nil {
		return 0, err
	}

	activeTx := tx
	anon := false
	if activeTx == nil {
		id := db.beginAnon(caller)
		activeTx = &id
		anon = true
	}
	rollbackAnon := func() { _ = db.txns.Rollback(*activeTx, caller) }

	lookup := dbLookup{db: db, tx: activeTx, owner: caller}
	visited := map[string]bool{}
	var deletes []integrity.TablePK
	var nullify []integrity.NullifyOp
	for _, row := range matched {
		root := integrity.TablePK{Table: tableName, PK: row.PK}
		key := tableName + "\x00" + pkKeyOf(root.PK)
		if visited[key] {
			continue
		}
		plan, err := db.guard.PlanDelete(root, behavior, lookup)
		if err != nil {
			if anon {
				rollbackAnon()
			}
			return 0, err
		}
		for _, d := range plan.Deletes {
			dk := d.Table + "\x00" + pkKeyOf(d.PK)
			if visited[dk] {
				continue
			}
			visited[dk] = true
			deletes = append(deletes, d)
		}
		nullify = append(nullify, plan.Nullify...)
	}

	for _, n := range nullify {
		if err := db.applyNullify(n, activeTx, caller); err != nil {
			if anon {
				rollbackAnon()
			}
			return 0, err
		}
	}
	for _, d := range deletes {
		if err := db.txns.Delete(*activeTx, caller, d.Table, d.PK); err != nil {
			if anon {
				rollbackAnon()
			}
			return 0, err
		}
	}

	if anon {
		if err := db.txns.Commit(*activeTx, caller, db.applyWrite); err != nil {
			return 0, err
		}
	}
	affected := 0
	for _, d := range deletes {
		if d.Table == tableName {
			affected++
		}
	}
	return affected, nil
}

func (db *Database) applyNullify(n integrity.NullifyOp, tx *txn.ID, caller codec.Principal) error {
	nth, ok := db.tables[n.Table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, n.Table)
	}
	rows, err := db.mergedRows(n.Table, tx, caller)
	if err != nil {
		return err
	}
	k := pkKeyOf(n.PK)
	for _, r := range rows {
		if pkKeyOf(r.PK) != k {
			continue
		}
		idx := nth.schema.ColumnIndex(n.Column)
		updated := append(codec.Record(nil), r.Record...)
		updated[idx] = codec.Null
		return db.txns.Put(*tx, caller, n.Table, n.PK, updated)
	}
	return fmt.Errorf("icdb: nullify target %v not found in table %q", n.PK, n.Table)
}
