package txn

import (
	"errors"
	"testing"

	"github.com/canisterstack/icdb/internal/codec"
)

func uintPK(n uint32) codec.Value { return codec.Uint32Value(n) }

func rec(id uint32, name string) codec.Record {
	return codec.Record{uintPK(id), codec.TextValue(name)}
}

func TestBeginProducesDistinctIDs(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	a := m.Begin(owner)
	b := m.Begin(owner)
	if a == b {
		t.Fatal("expected distinct transaction ids")
	}
}

func TestOpUnknownTransaction(t *testing.T) {
	m := NewManager()
	_, _, err := m.Get(ID(999), codec.Principal("alice"), "users", uintPK(1))
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestOpWrongOwner(t *testing.T) {
	m := NewManager()
	id := m.Begin(codec.Principal("alice"))
	_, _, err := m.Get(id, codec.Principal("bob"), "users", uintPK(1))
	if !errors.Is(err, ErrTransactionNotOwned) {
		t.Fatalf("expected ErrTransactionNotOwned, got %v", err)
	}
}

func TestPutThenGetShadowsNothingUntilWritten(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)

	_, found, err := m.Get(id, owner, "users", uintPK(1))
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no overlay entry before any write")
	}

	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "Carol")); err != nil {
		t.Fatal(err)
	}
	entry, found, err := m.Get(id, owner, "users", uintPK(1))
	if err != nil {
		t.Fatal(err)
	}
	if !found || entry.Tombstone {
		t.Fatalf("expected a live Put entry, got %+v found=%v", entry, found)
	}
}

func TestDeleteWritesTombstone(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "Carol")); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(id, owner, "users", uintPK(1)); err != nil {
		t.Fatal(err)
	}
	entry, found, err := m.Get(id, owner, "users", uintPK(1))
	if err != nil {
		t.Fatal(err)
	}
	if !found || !entry.Tombstone {
		t.Fatalf("expected tombstone, got %+v found=%v", entry, found)
	}
}

func TestRollbackDiscardsOverlayAndInvalidatesID(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "Carol")); err != nil {
		t.Fatal(err)
	}
	if err := m.Rollback(id, owner); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Get(id, owner, "users", uintPK(1)); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected transaction invalid after rollback, got %v", err)
	}
}

func TestCommitDrainsInInsertionOrder(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "A")); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(id, owner, "users", uintPK(2), rec(2, "B")); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(id, owner, "users", uintPK(1)); err != nil {
		t.Fatal(err)
	}

	var order []string
	err := m.Commit(id, owner, func(w Write) (func() error, error) {
		if w.Entry.Tombstone {
			order = append(order, "del:1")
		} else {
			order = append(order, "put:"+w.Entry.Record[1].Text)
		}
		return func() error { return nil }, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	// Put(1) then Put(2) are distinct keys (pk 1, pk 2) so both persist in
	// insertion order; the later Delete(1) overwrites the Put(1) overlay
	// entry for the same key rather than appending a new one.
	want := []string{"del:1", "put:B"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestCommitInvalidatesID(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "A")); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(id, owner, func(w Write) (func() error, error) { return func() error { return nil }, nil }); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(id, owner, func(w Write) (func() error, error) { return func() error { return nil }, nil }); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound on double-commit, got %v", err)
	}
}

func TestCommitConflictRollsBackAlreadyAppliedWrites(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "A")); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(id, owner, "users", uintPK(2), rec(2, "B")); err != nil {
		t.Fatal(err)
	}

	var applied []uint32
	var undone []uint32
	err := m.Commit(id, owner, func(w Write) (func() error, error) {
		pkID := uint32(w.PK.U64)
		if pkID == 2 {
			return nil, errors.New("simulated integrity failure")
		}
		applied = append(applied, pkID)
		return func() error { undone = append(undone, pkID); return nil }, nil
	})
	if !errors.Is(err, ErrCommitConflict) {
		t.Fatalf("expected ErrCommitConflict, got %v", err)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Fatalf("applied = %v, want [1]", applied)
	}
	if len(undone) != 1 || undone[0] != 1 {
		t.Fatalf("undone = %v, want [1]", undone)
	}
}

func TestInsertThenDeleteCancelsOut(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Insert(id, owner, "users", uintPK(1), rec(1, "A")); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(id, owner, "users", uintPK(1)); err != nil {
		t.Fatal(err)
	}
	_, found, err := m.Get(id, owner, "users", uintPK(1))
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected insert+delete of the same key to leave no overlay entry")
	}
	applied := 0
	if err := m.Commit(id, owner, func(w Write) (func() error, error) {
		applied++
		return func() error { return nil }, nil
	}); err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Fatalf("expected nothing to drain, got %d writes", applied)
	}
}

func TestUpdateAfterInsertKeepsInsertIntent(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Insert(id, owner, "users", uintPK(1), rec(1, "A")); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "B")); err != nil {
		t.Fatal(err)
	}
	entry, found, err := m.Get(id, owner, "users", uintPK(1))
	if err != nil || !found {
		t.Fatalf("expected overlay entry, found=%v err=%v", found, err)
	}
	if !entry.Insert {
		t.Fatal("expected the entry to remain a creation after an in-transaction update")
	}
	if entry.Record[1].Text != "B" {
		t.Fatalf("expected latest record, got %+v", entry.Record)
	}
}

func TestRecreateAfterTombstoneIsAReplacement(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Delete(id, owner, "users", uintPK(1)); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(id, owner, "users", uintPK(1), rec(1, "A")); err != nil {
		t.Fatal(err)
	}
	entry, found, err := m.Get(id, owner, "users", uintPK(1))
	if err != nil || !found {
		t.Fatalf("expected overlay entry, found=%v err=%v", found, err)
	}
	if entry.Tombstone || entry.Insert {
		t.Fatalf("expected a plain replacement entry, got %+v", entry)
	}
}

func TestOverlayReturnsOnlyMatchingTable(t *testing.T) {
	m := NewManager()
	owner := codec.Principal("alice")
	id := m.Begin(owner)
	if err := m.Put(id, owner, "users", uintPK(1), rec(1, "A")); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(id, owner, "posts", uintPK(10), codec.Record{uintPK(10)}); err != nil {
		t.Fatal(err)
	}
	writes, err := m.Overlay(id, owner, "users")
	if err != nil {
		t.Fatal(err)
	}
	if len(writes) != 1 || writes[0].Table != "users" {
		t.Fatalf("Overlay(users) = %+v", writes)
	}
}
