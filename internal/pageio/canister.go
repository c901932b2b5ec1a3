package pageio

import "fmt"

// StableMemory is the minimal shape a canister-style host exposes for its
// growable, persistent byte store. The production Store binding adapts to
// this; the host implementation itself is out of scope (§1).
type StableMemory interface {
	StableSize() uint64 // in pages
	StableGrow(pages uint64) (priorPages uint64, ok bool)
	StableRead(offset uint64, buf []byte)
	StableWrite(offset uint64, buf []byte)
}

// CanisterStore adapts a host's StableMemory to the Store contract.
type CanisterStore struct {
	host StableMemory
}

// NewCanisterStore wraps a host-provided StableMemory.
func NewCanisterStore(host StableMemory) *CanisterStore {
	return &CanisterStore{host: host}
}

func (c *CanisterStore) Size() int64 { return int64(c.host.StableSize()) * PageSize }

func (c *CanisterStore) PageCount() uint64 { return c.host.StableSize() }

func (c *CanisterStore) Grow(pages uint64) (uint64, error) {
	prior, ok := c.host.StableGrow(pages)
	if !ok {
		return prior, fmt.Errorf("%w: host rejected growth by %d pages", ErrInsufficientSpace, pages)
	}
	return prior, nil
}

func (c *CanisterStore) ReadAt(offset int64, buf []byte) error {
	size := c.Size()
	if offset < 0 || offset+int64(len(buf)) > size {
		return boundsError(offset, len(buf), size)
	}
	c.host.StableRead(uint64(offset), buf)
	return nil
}

func (c *CanisterStore) WriteAt(offset int64, buf []byte) error {
	size := c.Size()
	if offset < 0 || offset+int64(len(buf)) > size {
		return boundsError(offset, len(buf), size)
	}
	c.host.StableWrite(uint64(offset), buf)
	return nil
}
