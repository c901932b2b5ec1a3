package acl

import (
	"testing"

	"github.com/canisterstack/icdb/internal/codec"
	"github.com/canisterstack/icdb/internal/pageio"
)

func TestEmptyListDeniesEverything(t *testing.T) {
	l := New()
	if l.Allowed(codec.Principal("alice")) {
		t.Fatal("empty list must deny every principal")
	}
}

func TestAddRemoveAllowed(t *testing.T) {
	l := New()
	alice := codec.Principal("alice")
	if err := l.Add(alice); err != nil {
		t.Fatal(err)
	}
	if !l.Allowed(alice) {
		t.Fatal("expected alice to be allowed after Add")
	}
	l.Remove(alice)
	if l.Allowed(alice) {
		t.Fatal("expected alice to be denied after Remove")
	}
}

func TestAddDuplicateIsNoop(t *testing.T) {
	l := New()
	alice := codec.Principal("alice")
	if err := l.Add(alice); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(alice); err != nil {
		t.Fatal(err)
	}
	if len(l.Principals()) != 1 {
		t.Fatalf("expected one principal, got %d", len(l.Principals()))
	}
}

func TestAddRejectsOversizedPrincipal(t *testing.T) {
	l := New()
	huge := make(codec.Principal, codec.MaxPrincipalLen+1)
	if err := l.Add(huge); err == nil {
		t.Fatal("expected error for oversized principal")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := New()
	for _, name := range []string{"alice", "bob", "carol"} {
		if err := l.Add(codec.Principal(name)); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := l.Encode(pageio.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		if !decoded.Allowed(codec.Principal(name)) {
			t.Fatalf("expected %q allowed after round trip", name)
		}
	}
	if len(decoded.Principals()) != 3 {
		t.Fatalf("expected 3 principals, got %d", len(decoded.Principals()))
	}
}

func TestDecodeRejectsTruncatedPage(t *testing.T) {
	if _, err := Decode([]byte{1, 2}); err == nil {
		t.Fatal("expected error decoding truncated page")
	}
}
