package ledger

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/canisterstack/icdb/internal/pageid"
)

// freeSegEntrySize is { u64 page_id, u32 offset, u32 size } (§6).
const freeSegEntrySize = 16

// freeSegHeaderSize is { u64 next_page, u32 entry_count }.
const freeSegHeaderSize = 12

// Segment is one reclaimable hole: (page, offset, size), with offset and
// size both multiples of the table's alignment (§4.5).
type Segment struct {
	Page   pageid.PageID
	Offset uint32
	Size   uint32
}

func segmentLess(a, b Segment) bool {
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	return a.Offset < b.Offset
}

// FreeSegmentLedger is the per-table index of reclaimable holes, sorted
// by (page_id, offset), growable across backing pages (§4.5).
type FreeSegmentLedger struct {
	segments   []Segment
	headPage   pageid.PageID
	chainPages []pageid.PageID // pages currently backing the ledger, in chain order
}

// NewFreeSegmentLedger returns an empty ledger.
func NewFreeSegmentLedger() *FreeSegmentLedger {
	return &FreeSegmentLedger{}
}

// LoadFreeSegments reads the ledger's chained pages starting at head.
func LoadFreeSegments(head pageid.PageID, readPage func(pageid.PageID) ([]byte, error)) (*FreeSegmentLedger, error) {
	fl := NewFreeSegmentLedger()
	fl.headPage = head
	pid := head
	for pid != pageid.Invalid {
		buf, err := readPage(pid)
		if err != nil {
			return nil, fmt.Errorf("ledger: load free-segment page %d: %w", pid, err)
		}
		next, segs, err := decodeFreeSegPage(buf)
		if err != nil {
			return nil, err
		}
		fl.chainPages = append(fl.chainPages, pid)
		fl.segments = append(fl.segments, segs...)
		pid = next
	}
	slices.SortFunc(fl.segments, func(a, b Segment) int {
		if segmentLess(a, b) {
			return -1
		}
		if segmentLess(b, a) {
			return 1
		}
		return 0
	})
	return fl, nil
}

func decodeFreeSegPage(buf []byte) (pageid.PageID, []Segment, error) {
	if len(buf) < freeSegHeaderSize {
		return 0, nil, fmt.Errorf("ledger: truncated free-segment page header")
	}
	next := pageid.PageID(binary.LittleEndian.Uint64(buf[0:8]))
	count := binary.LittleEndian.Uint32(buf[8:12])
	segs := make([]Segment, 0, count)
	off := freeSegHeaderSize
	for i := uint32(0); i < count; i++ {
		if off+freeSegEntrySize > len(buf) {
			return 0, nil, fmt.Errorf("ledger: truncated free-segment entry %d", i)
		}
		segs = append(segs, Segment{
			Page:   pageid.PageID(binary.LittleEndian.Uint64(buf[off : off+8])),
			Offset: binary.LittleEndian.Uint32(buf[off+8 : off+12]),
			Size:   binary.LittleEndian.Uint32(buf[off+12 : off+16]),
		})
		off += freeSegEntrySize
	}
	return next, segs, nil
}

// EntriesPerSegPage returns how many Segment entries fit in one backing
// page.
func EntriesPerSegPage(pageSize int) int {
	return (pageSize - freeSegHeaderSize) / freeSegEntrySize
}

// Flush serializes the ledger over its existing backing pages, calling
// allocPage only when the chain must grow — like the PageLedger, an
// adopted free-segment head page is never relocated. A ledger that has
// never held a segment and owns no pages yet flushes to nothing and
// reports pageid.Invalid; once a chain exists it is rewritten in place
// even when all segments have been consumed.
func (fl *FreeSegmentLedger) Flush(pageSize int, allocPage func() (pageid.PageID, error)) (pageid.PageID, []FlushPage, error) {
	cap := EntriesPerSegPage(pageSize)
	if len(fl.segments) == 0 && len(fl.chainPages) == 0 {
		return pageid.Invalid, nil, nil
	}
	needed := (len(fl.segments) + cap - 1) / cap
	if needed < 1 {
		needed = 1
	}
	if needed < len(fl.chainPages) {
		needed = len(fl.chainPages)
	}
	for len(fl.chainPages) < needed {
		pid, err := allocPage()
		if err != nil {
			return pageid.Invalid, nil, err
		}
		fl.chainPages = append(fl.chainPages, pid)
	}
	out := make([]FlushPage, len(fl.chainPages))
	for i, pid := range fl.chainPages {
		buf := make([]byte, pageSize)
		start := i * cap
		if start > len(fl.segments) {
			start = len(fl.segments)
		}
		end := start + cap
		if end > len(fl.segments) {
			end = len(fl.segments)
		}
		chunk := fl.segments[start:end]
		if i+1 < len(fl.chainPages) {
			binary.LittleEndian.PutUint64(buf[0:8], uint64(fl.chainPages[i+1]))
		}
		binary.LittleEndian.PutUint32(buf[8:12], uint32(len(chunk)))
		off := freeSegHeaderSize
		for _, s := range chunk {
			binary.LittleEndian.PutUint64(buf[off:off+8], uint64(s.Page))
			binary.LittleEndian.PutUint32(buf[off+8:off+12], s.Offset)
			binary.LittleEndian.PutUint32(buf[off+12:off+16], s.Size)
			off += freeSegEntrySize
		}
		out[i] = FlushPage{ID: pid, Buf: buf}
	}
	fl.headPage = fl.chainPages[0]
	return fl.headPage, out, nil
}

// Reserve finds the first segment (first-fit, in (page,offset) order)
// with Size >= size and removes it, returning the remainder to the
// ledger as a new segment if it is larger than requested (§4.5).
func (fl *FreeSegmentLedger) Reserve(size uint32) (Segment, bool) {
	for i, s := range fl.segments {
		if s.Size >= size {
			fl.segments = slices.Delete(fl.segments, i, i+1)
			if s.Size > size {
				remainder := Segment{Page: s.Page, Offset: s.Offset + size, Size: s.Size - size}
				fl.insertSorted(remainder)
			}
			return Segment{Page: s.Page, Offset: s.Offset, Size: size}, true
		}
	}
	return Segment{}, false
}

// Release returns a segment to the ledger, inserting it in sorted order
// and eagerly merging with any segment physically adjacent on the same
// page (§4.5, invariant 4).
func (fl *FreeSegmentLedger) Release(page pageid.PageID, offset, size uint32) error {
	if size == 0 {
		return fmt.Errorf("ledger: cannot release zero-size segment")
	}
	seg := Segment{Page: page, Offset: offset, Size: size}
	if err := fl.checkNoOverlap(seg); err != nil {
		return err
	}
	fl.insertSorted(seg)
	fl.mergeAdjacent(page)
	return nil
}

func (fl *FreeSegmentLedger) checkNoOverlap(seg Segment) error {
	for _, s := range fl.segments {
		if s.Page != seg.Page {
			continue
		}
		if seg.Offset < s.Offset+s.Size && s.Offset < seg.Offset+seg.Size {
			return fmt.Errorf("ledger: release of page %d offset %d size %d overlaps existing segment at offset %d size %d",
				seg.Page, seg.Offset, seg.Size, s.Offset, s.Size)
		}
	}
	return nil
}

func (fl *FreeSegmentLedger) insertSorted(seg Segment) {
	i, _ := slices.BinarySearchFunc(fl.segments, seg, func(a, b Segment) int {
		if segmentLess(a, b) {
			return -1
		}
		if segmentLess(b, a) {
			return 1
		}
		return 0
	})
	fl.segments = slices.Insert(fl.segments, i, seg)
}

// mergeAdjacent coalesces physically adjacent segments on the given
// page. Called after every insertion so no two free segments on the same
// page are ever left touching.
func (fl *FreeSegmentLedger) mergeAdjacent(page pageid.PageID) {
	for {
		merged := false
		for i := 0; i < len(fl.segments)-1; i++ {
			a, b := fl.segments[i], fl.segments[i+1]
			if a.Page != page || b.Page != page {
				continue
			}
			if a.Offset+a.Size == b.Offset {
				fl.segments[i] = Segment{Page: page, Offset: a.Offset, Size: a.Size + b.Size}
				fl.segments = slices.Delete(fl.segments, i+1, i+2)
				merged = true
				break
			}
		}
		if !merged {
			return
		}
	}
}

// PurgePage drops all segments on the given page, used when a page is
// retired.
func (fl *FreeSegmentLedger) PurgePage(page pageid.PageID) {
	fl.segments = slices.DeleteFunc(fl.segments, func(s Segment) bool {
		return s.Page == page
	})
}

// Segments returns a copy of the ledger's segments in sorted order.
func (fl *FreeSegmentLedger) Segments() []Segment {
	out := make([]Segment, len(fl.segments))
	copy(out, fl.segments)
	return out
}
