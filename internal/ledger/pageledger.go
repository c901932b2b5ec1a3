// Package ledger implements the per-table PageLedger (C4) and
// FreeSegmentLedger (C5): the bookkeeping structures that tell the table
// store where to find free space, stored themselves as chained pages in
// the page store.
package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/canisterstack/icdb/internal/pageid"
)

// pageLedgerEntrySize is the on-disk size of one PageLedger entry:
// { u64 page_id, u32 free_bytes } (§6).
const pageLedgerEntrySize = 12

// pageLedgerHeaderSize is { u64 next_page, u32 entry_count }.
const pageLedgerHeaderSize = 12

// PageEntry is one PageLedger row: a data page and its remaining free
// bytes (§4.4).
type PageEntry struct {
	Page      pageid.PageID
	FreeBytes uint32
}

// PageLedger is the per-table ordered sequence of PageEntry, chained
// across backing pages when one fills (§4.4). It is held fully in memory
// between Load/Flush calls — the spec's single-threaded host means no
// concurrent mutation can occur between them.
type PageLedger struct {
	entries    []PageEntry
	index      map[pageid.PageID]int
	headPage   pageid.PageID
	chainPages []pageid.PageID // pages currently backing the ledger, in chain order
}

// NewPageLedger returns an empty ledger with no backing pages yet.
func NewPageLedger() *PageLedger {
	return &PageLedger{index: map[pageid.PageID]int{}}
}

// Load reads the ledger's chained pages starting at head, via readPage
// (a callback over the backing pageio.Store).
func Load(head pageid.PageID, readPage func(pageid.PageID) ([]byte, error)) (*PageLedger, error) {
	pl := NewPageLedger()
	pl.headPage = head
	pid := head
	for pid != pageid.Invalid {
		buf, err := readPage(pid)
		if err != nil {
			return nil, fmt.Errorf("ledger: load page %d: %w", pid, err)
		}
		next, entries, err := decodePageLedgerPage(buf)
		if err != nil {
			return nil, err
		}
		pl.chainPages = append(pl.chainPages, pid)
		for _, e := range entries {
			pl.index[e.Page] = len(pl.entries)
			pl.entries = append(pl.entries, e)
		}
		pid = next
	}
	return pl, nil
}

func decodePageLedgerPage(buf []byte) (pageid.PageID, []PageEntry, error) {
	if len(buf) < pageLedgerHeaderSize {
		return 0, nil, fmt.Errorf("ledger: truncated page header")
	}
	next := pageid.PageID(binary.LittleEndian.Uint64(buf[0:8]))
	count := binary.LittleEndian.Uint32(buf[8:12])
	entries := make([]PageEntry, 0, count)
	off := pageLedgerHeaderSize
	for i := uint32(0); i < count; i++ {
		if off+pageLedgerEntrySize > len(buf) {
			return 0, nil, fmt.Errorf("ledger: truncated entry %d", i)
		}
		entries = append(entries, PageEntry{
			Page:      pageid.PageID(binary.LittleEndian.Uint64(buf[off : off+8])),
			FreeBytes: binary.LittleEndian.Uint32(buf[off+8 : off+12]),
		})
		off += pageLedgerEntrySize
	}
	return next, entries, nil
}

// EntriesPerPage returns the entry capacity of one backing page.
func EntriesPerPage(pageSize int) int {
	return (pageSize - pageLedgerHeaderSize) / pageLedgerEntrySize
}

// FlushPage is one backing page a Flush call produced: the page to write
// and the full buffer to write there.
type FlushPage struct {
	ID  pageid.PageID
	Buf []byte
}

// Flush serializes the ledger over its existing backing pages, calling
// allocPage only when the chain must grow — once adopted into the schema
// registry, a ledger's head page is never relocated. It returns the head
// page and every (page, buffer) pair the caller must persist. A ledger
// that has never held an entry and owns no pages yet flushes to nothing
// and reports pageid.Invalid.
func (pl *PageLedger) Flush(pageSize int, allocPage func() (pageid.PageID, error)) (pageid.PageID, []FlushPage, error) {
	cap := EntriesPerPage(pageSize)
	if len(pl.entries) == 0 && len(pl.chainPages) == 0 {
		return pageid.Invalid, nil, nil
	}
	needed := (len(pl.entries) + cap - 1) / cap
	if needed < 1 {
		needed = 1
	}
	if needed < len(pl.chainPages) {
		needed = len(pl.chainPages)
	}
	for len(pl.chainPages) < needed {
		pid, err := allocPage()
		if err != nil {
			return pageid.Invalid, nil, err
		}
		pl.chainPages = append(pl.chainPages, pid)
	}
	out := make([]FlushPage, len(pl.chainPages))
	for i, pid := range pl.chainPages {
		buf := make([]byte, pageSize)
		start := i * cap
		if start > len(pl.entries) {
			start = len(pl.entries)
		}
		end := start + cap
		if end > len(pl.entries) {
			end = len(pl.entries)
		}
		chunk := pl.entries[start:end]
		if i+1 < len(pl.chainPages) {
			binary.LittleEndian.PutUint64(buf[0:8], uint64(pl.chainPages[i+1]))
		}
		binary.LittleEndian.PutUint32(buf[8:12], uint32(len(chunk)))
		off := pageLedgerHeaderSize
		for _, e := range chunk {
			binary.LittleEndian.PutUint64(buf[off:off+8], uint64(e.Page))
			binary.LittleEndian.PutUint32(buf[off+8:off+12], e.FreeBytes)
			off += pageLedgerEntrySize
		}
		out[i] = FlushPage{ID: pid, Buf: buf}
	}
	pl.headPage = pl.chainPages[0]
	return pl.headPage, out, nil
}

// FindPageFor returns the first page (first-fit) with at least
// rowSizeAligned free bytes, or pageid.Invalid if none qualifies — the
// caller must then allocate a fresh page and Append it.
func (pl *PageLedger) FindPageFor(rowSizeAligned uint32) pageid.PageID {
	for _, e := range pl.entries {
		if e.FreeBytes >= rowSizeAligned {
			return e.Page
		}
	}
	return pageid.Invalid
}

// Append adds a brand-new data page entry with capacity bytes free.
func (pl *PageLedger) Append(page pageid.PageID, capacity uint32) {
	pl.index[page] = len(pl.entries)
	pl.entries = append(pl.entries, PageEntry{Page: page, FreeBytes: capacity})
}

// Debit reduces a page's free-bytes count, never below zero.
func (pl *PageLedger) Debit(page pageid.PageID, bytes uint32) error {
	i, ok := pl.index[page]
	if !ok {
		return fmt.Errorf("ledger: unknown page %d", page)
	}
	if pl.entries[i].FreeBytes < bytes {
		pl.entries[i].FreeBytes = 0
		return nil
	}
	pl.entries[i].FreeBytes -= bytes
	return nil
}

// Credit increases a page's free-bytes count, never above capacity.
func (pl *PageLedger) Credit(page pageid.PageID, bytes, capacity uint32) error {
	i, ok := pl.index[page]
	if !ok {
		return fmt.Errorf("ledger: unknown page %d", page)
	}
	nv := pl.entries[i].FreeBytes + bytes
	if nv > capacity {
		nv = capacity
	}
	pl.entries[i].FreeBytes = nv
	return nil
}

// Pages returns the ledger's entries in deterministic (insertion) order,
// the order scans must follow (§4.6).
func (pl *PageLedger) Pages() []PageEntry {
	out := make([]PageEntry, len(pl.entries))
	copy(out, pl.entries)
	return out
}

// FreeBytesOf returns the tracked free-byte count for page, or an error
// if the page is unknown to this ledger.
func (pl *PageLedger) FreeBytesOf(page pageid.PageID) (uint32, error) {
	i, ok := pl.index[page]
	if !ok {
		return 0, fmt.Errorf("ledger: unknown page %d", page)
	}
	return pl.entries[i].FreeBytes, nil
}
