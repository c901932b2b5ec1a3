// Package txn implements the TransactionManager (C10): a per-principal
// overlay of pending writes, keyed by table and primary key, with
// monotonic transaction ids, ownership-checked access, and a commit that
// drains the overlay in insertion order — rolling back everything already
// applied if a later entry fails (§4.10).
//
// Grounded on the teacher's internal/storage/mvcc.go TxContext/TxStatus
// machinery, narrowed from full MVCC snapshot isolation down to the
// spec's simpler single-overlay-per-transaction model: there is no
// multi-version row chain or GC watermark here, because the spec's
// overlay-drain-on-commit rule supplants them (see DESIGN.md).
package txn

import (
	"errors"
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
)

// ErrTransactionNotFound is returned by any operation against an id that
// does not name an open transaction (never opened, or already
// committed/rolled back).
var ErrTransactionNotFound = errors.New("txn: transaction not found")

// ErrTransactionNotOwned is returned when owner does not match the
// principal that began the transaction.
var ErrTransactionNotOwned = errors.New("txn: transaction not owned by caller")

// ErrCommitConflict wraps the underlying failure when Commit aborts
// partway through draining the overlay.
var ErrCommitConflict = errors.New("txn: commit conflict")

// ID is a transaction's monotonic identifier.
type ID uint64

// Entry is one overlay slot: either a pending Put(Record) or a
// Tombstone marking a pending delete (§3 Overlay). Insert marks a Put
// staged as a row creation — the key did not exist in the transaction's
// merged view — so commit must fail with a primary-key conflict if
// another transaction commits the same key first, rather than silently
// overwriting it.
type Entry struct {
	Tombstone bool
	Insert    bool
	Record    codec.Record // valid only when !Tombstone
}

// Write is one overlay entry addressed by table and primary key, in the
// order it was written — the order Commit drains in.
type Write struct {
	Table string
	PK    codec.Value
	Entry Entry
}

// Apply is supplied by the caller (icdb.Database) to materialize one
// drained Write against the real table stores, re-running the integrity
// checks the spec defers to commit time. It returns an undo closure that
// reverses exactly this write, used if a later write in the same commit
// fails.
type Apply func(w Write) (undo func() error, err error)

type transaction struct {
	id    ID
	owner codec.Principal
	keys  []string // insertion order of "table\x00pkKey"
	byKey map[string]Write
}

// Manager holds every open transaction (§4.10).
type Manager struct {
	nextID uint64
	open   map[ID]*transaction
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{open: map[ID]*transaction{}}
}

// Begin mints a fresh transaction id owned by owner, with an empty
// overlay.
func (m *Manager) Begin(owner codec.Principal) ID {
	m.nextID++
	id := ID(m.nextID)
	m.open[id] = &transaction{id: id, owner: append(codec.Principal(nil), owner...), byKey: map[string]Write{}}
	return id
}

func (m *Manager) lookup(id ID, owner codec.Principal) (*transaction, error) {
	tx, ok := m.open[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if string(tx.owner) != string(owner) {
		return nil, ErrTransactionNotOwned
	}
	return tx, nil
}

func pkKey(table string, pk codec.Value) (string, error) {
	b, err := codec.Encode(pk)
	if err != nil {
		return "", fmt.Errorf("txn: encode primary key: %w", err)
	}
	return fmt.Sprintf("%s\x00%d:%x", table, pk.Kind, b), nil
}

// Get reads the overlay for (table, pk): found is false when nothing has
// been written in this transaction for that key, meaning the caller must
// fall back to committed state.
func (m *Manager) Get(id ID, owner codec.Principal, table string, pk codec.Value) (Entry, bool, error) {
	tx, err := m.lookup(id, owner)
	if err != nil {
		return Entry{}, false, err
	}
	k, err := pkKey(table, pk)
	if err != nil {
		return Entry{}, false, err
	}
	w, ok := tx.byKey[k]
	if !ok {
		return Entry{}, false, nil
	}
	return w.Entry, true, nil
}

// Overlay returns every pending write in table for this transaction, used
// to merge overlay with a committed scan (§4.7 reads merge overlay with
// committed rows).
func (m *Manager) Overlay(id ID, owner codec.Principal, table string) ([]Write, error) {
	tx, err := m.lookup(id, owner)
	if err != nil {
		return nil, err
	}
	var out []Write
	for _, k := range tx.keys {
		w := tx.byKey[k]
		if w.Table == table {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *Manager) put(id ID, owner codec.Principal, w Write) error {
	tx, err := m.lookup(id, owner)
	if err != nil {
		return err
	}
	k, err := pkKey(w.Table, w.PK)
	if err != nil {
		return err
	}
	prev, exists := tx.byKey[k]
	switch {
	case exists && prev.Entry.Insert && w.Entry.Tombstone:
		// Deleting a row this same transaction created: the two writes
		// cancel, and committed state never hears about either.
		delete(tx.byKey, k)
		for i, kk := range tx.keys {
			if kk == k {
				tx.keys = append(tx.keys[:i], tx.keys[i+1:]...)
				break
			}
		}
		return nil
	case exists && prev.Entry.Insert && !w.Entry.Tombstone:
		// Updating a row this transaction created is still a creation as
		// far as committed state is concerned.
		w.Entry.Insert = true
	case exists && prev.Entry.Tombstone && !w.Entry.Tombstone:
		// Recreating a key this transaction tombstoned: the committed row
		// still exists underneath, so the net effect is a replacement.
		w.Entry.Insert = false
	}
	if !exists {
		tx.keys = append(tx.keys, k)
	}
	tx.byKey[k] = w
	return nil
}

// Put writes a pending update of rec under pk into table's overlay for
// this transaction (§4.10: "writes go to the overlay only").
func (m *Manager) Put(id ID, owner codec.Principal, table string, pk codec.Value, rec codec.Record) error {
	return m.put(id, owner, Write{Table: table, PK: pk, Entry: Entry{Record: rec}})
}

// Insert writes a pending row creation into the overlay. Unlike Put, the
// staged entry remembers it was a creation, so a commit that finds the
// key already taken fails instead of overwriting (§4.10 deferred PK
// checks).
func (m *Manager) Insert(id ID, owner codec.Principal, table string, pk codec.Value, rec codec.Record) error {
	return m.put(id, owner, Write{Table: table, PK: pk, Entry: Entry{Record: rec, Insert: true}})
}

// Delete writes a pending tombstone for (table, pk) into the overlay.
func (m *Manager) Delete(id ID, owner codec.Principal, table string, pk codec.Value) error {
	return m.put(id, owner, Write{Table: table, PK: pk, Entry: Entry{Tombstone: true}})
}

// Rollback discards id's overlay entirely. Once rolled back, id is
// invalid for any further operation.
func (m *Manager) Rollback(id ID, owner codec.Principal) error {
	if _, err := m.lookup(id, owner); err != nil {
		return err
	}
	delete(m.open, id)
	return nil
}

// Commit drains id's overlay in insertion order, calling apply for each
// write. If apply fails on any entry, every already-applied entry is
// reversed via its undo closure, in reverse order, and Commit returns
// ErrCommitConflict — the committed state is left byte-identical to
// before Commit was called (§8 property 8). Whether Commit succeeds or
// fails, id is invalid afterward (§4.10: "once committed or rolled back,
// the id is invalid").
func (m *Manager) Commit(id ID, owner codec.Principal, apply Apply) error {
	tx, err := m.lookup(id, owner)
	if err != nil {
		return err
	}
	defer delete(m.open, id)

	var undos []func() error
	for _, k := range tx.keys {
		w := tx.byKey[k]
		undo, err := apply(w)
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				if uerr := undos[i](); uerr != nil {
					return fmt.Errorf("%w: %v (additionally, rollback of a prior write failed: %v)", ErrCommitConflict, err, uerr)
				}
			}
			return fmt.Errorf("%w: %v", ErrCommitConflict, err)
		}
		undos = append(undos, undo)
	}
	return nil
}

// Writes returns id's pending writes in insertion order without
// consuming the transaction, covering the overlay across all tables.
func (m *Manager) Writes(id ID, owner codec.Principal) ([]Write, error) {
	tx, err := m.lookup(id, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Write, 0, len(tx.keys))
	for _, k := range tx.keys {
		out = append(out, tx.byKey[k])
	}
	return out, nil
}
