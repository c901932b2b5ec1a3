// Package acl implements the page-1 access-control list the Database
// facade's AclGate consults before every operation (§6 "Page 1 — ACL").
// The storage shape is specified in full ("1 page of allowed identities");
// only the predicate the core consumes is in scope per §1, but the page
// layout itself is byte-exact per §6 so it is implemented here rather than
// left to the host.
package acl

import (
	"encoding/binary"
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
)

// headerSize is { u32 count }.
const headerSize = 4

// List holds the set of principals currently allowed to call the
// Database. Membership order is insertion order, which is what Encode
// and Principals report; it has no bearing on gating (membership is set
// semantics).
type List struct {
	order []string
	byKey map[string]codec.Principal
}

// New returns an empty List.
func New() *List {
	return &List{byKey: map[string]codec.Principal{}}
}

func key(p codec.Principal) string { return string(p) }

// Add registers p as allowed, a no-op if already present.
func (l *List) Add(p codec.Principal) error {
	if len(p) == 0 || len(p) > codec.MaxPrincipalLen {
		return fmt.Errorf("acl: principal length %d outside 1..%d", len(p), codec.MaxPrincipalLen)
	}
	k := key(p)
	if _, ok := l.byKey[k]; ok {
		return nil
	}
	cp := make(codec.Principal, len(p))
	copy(cp, p)
	l.byKey[k] = cp
	l.order = append(l.order, k)
	return nil
}

// Remove drops p from the list, a no-op if absent.
func (l *List) Remove(p codec.Principal) {
	k := key(p)
	if _, ok := l.byKey[k]; !ok {
		return
	}
	delete(l.byKey, k)
	for i, ordKey := range l.order {
		if ordKey == k {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Allowed reports whether p is present in the list. An empty list denies
// every principal — the host must seed at least one identity at
// construction for the gate to ever pass (§6 "initial ACL").
func (l *List) Allowed(p codec.Principal) bool {
	_, ok := l.byKey[key(p)]
	return ok
}

// Principals returns the list's members in insertion order.
func (l *List) Principals() []codec.Principal {
	out := make([]codec.Principal, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.byKey[k])
	}
	return out
}

// Encode serializes the list into a single page-1 buffer: { u32 count },
// then count entries of { u8 len, len bytes } (§6).
func (l *List) Encode(pageSize int) ([]byte, error) {
	need := headerSize
	for _, k := range l.order {
		need += 1 + len(k)
	}
	if need > pageSize {
		return nil, fmt.Errorf("acl: %d principals exceed page size %d", len(l.order), pageSize)
	}
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(l.order)))
	off := headerSize
	for _, k := range l.order {
		buf[off] = byte(len(k))
		off++
		copy(buf[off:off+len(k)], k)
		off += len(k)
	}
	return buf, nil
}

// Decode parses a page-1 buffer into a List.
func Decode(buf []byte) (*List, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("acl: truncated page")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	l := New()
	off := headerSize
	for i := uint32(0); i < count; i++ {
		if off >= len(buf) {
			return nil, fmt.Errorf("acl: truncated entry %d", i)
		}
		n := int(buf[off])
		off++
		if off+n > len(buf) {
			return nil, fmt.Errorf("acl: truncated entry %d payload", i)
		}
		p := make(codec.Principal, n)
		copy(p, buf[off:off+n])
		off += n
		if err := l.Add(p); err != nil {
			return nil, err
		}
	}
	return l, nil
}
