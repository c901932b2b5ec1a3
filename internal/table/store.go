package table

import (
	"encoding/binary"
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
	"github.com/canisterstack/icdb/internal/ledger"
	"github.com/canisterstack/icdb/internal/pageid"
	"github.com/canisterstack/icdb/internal/pageio"
)

// rowHeaderSize is the PhysicalRow's u16 length prefix (§6).
const rowHeaderSize = 2

// Row pairs a RowID with its decoded Record, as produced by Scan.
type Row struct {
	ID     RowID
	Record codec.Record
}

// Stats is a diagnostic snapshot of a table's page usage.
type Stats struct {
	PageCount    int
	FreeBytes    uint64
	FreeSegments int
}

// Store is the write/scan/update/delete path for a single table's data
// pages (C6), operating over a shared pageio.Store and the table's own
// PageLedger + FreeSegmentLedger. Page IDs are 1-based so pageid.Invalid
// (0) remains available as a "no page" sentinel; pageOffset translates to
// the underlying pageio.Store's 0-based byte addressing.
type Store struct {
	schema     codec.TableSchema
	alignment  int
	pages      pageio.Store
	pageLedger *ledger.PageLedger
	freeSegs   *ledger.FreeSegmentLedger
}

// NewStore builds a TableStore over already-loaded ledgers (recovered via
// the SchemaRegistry's recorded ledger/free-segment pages, §4.3).
func NewStore(schema codec.TableSchema, pages pageio.Store, pl *ledger.PageLedger, fl *ledger.FreeSegmentLedger) (*Store, error) {
	align, err := schema.ResolvedAlignment()
	if err != nil {
		return nil, err
	}
	return &Store{schema: schema, alignment: align, pages: pages, pageLedger: pl, freeSegs: fl}, nil
}

func pageOffset(pid pageid.PageID) int64 {
	return int64(pid-1) * pageio.PageSize
}

func (s *Store) readPage(pid pageid.PageID) ([]byte, error) {
	buf := make([]byte, pageio.PageSize)
	if err := s.pages.ReadAt(pageOffset(pid), buf); err != nil {
		return nil, fmt.Errorf("table %q: read page %d: %w", s.schema.Name, pid, err)
	}
	return buf, nil
}

func (s *Store) writePage(pid pageid.PageID, buf []byte) error {
	if err := s.pages.WriteAt(pageOffset(pid), buf); err != nil {
		return fmt.Errorf("table %q: write page %d: %w", s.schema.Name, pid, err)
	}
	return nil
}

// allocPage grows the backing store by one page and registers it with the
// PageLedger as entirely free.
func (s *Store) allocPage() (pageid.PageID, error) {
	prior, err := s.pages.Grow(1)
	if err != nil {
		return pageid.Invalid, fmt.Errorf("table %q: grow: %w", s.schema.Name, err)
	}
	pid := pageid.PageID(prior + 1)
	s.pageLedger.Append(pid, pageio.PageSize)
	return pid, nil
}

// writeRowAt encodes { u16 len, payload, zero padding } into a slot of
// aligned bytes at (page, offset), enforcing the alignment invariant
// (§4.2): offset must be a multiple of the table's alignment.
func (s *Store) writeRowAt(page pageid.PageID, offset uint32, payload []byte, aligned int) error {
	if int(offset)%s.alignment != 0 {
		return fmt.Errorf("%w: row offset %d on page %d is not a multiple of alignment %d",
			codec.ErrOffsetNotAligned, offset, page, s.alignment)
	}
	buf, err := s.readPage(page)
	if err != nil {
		return err
	}
	if int(offset)+aligned > len(buf) {
		return fmt.Errorf("table %q: row of %d bytes at offset %d overruns page %d", s.schema.Name, aligned, offset, page)
	}
	slot := make([]byte, aligned)
	binary.LittleEndian.PutUint16(slot[0:2], uint16(len(payload)))
	copy(slot[rowHeaderSize:], payload)
	copy(buf[int(offset):int(offset)+aligned], slot)
	return s.writePage(page, buf)
}

// slotAlignedSize reads the length header at id and returns the aligned
// byte size of its current slot. Fails with ErrRowDeleted if the slot is
// already a tombstone.
func (s *Store) slotAlignedSize(id RowID) (int, error) {
	buf, err := s.readPage(id.Page)
	if err != nil {
		return 0, err
	}
	off := int(id.Offset)
	if off+rowHeaderSize > len(buf) {
		return 0, fmt.Errorf("table %q: row id offset %d out of bounds", s.schema.Name, off)
	}
	length := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	if length == 0 {
		return 0, ErrRowDeleted
	}
	return codec.AlignUp(rowHeaderSize+length, s.alignment), nil
}

// tombstone zeroes an entire slot, header through padding. Scan's "advance
// by one alignment unit on len==0" rule only walks a tombstoned multi-unit
// dynamic row correctly if every unit inside it also reads as len==0, so
// the whole aligned region is cleared, not just the header.
func (s *Store) tombstone(id RowID, aligned int) error {
	buf, err := s.readPage(id.Page)
	if err != nil {
		return err
	}
	off := int(id.Offset)
	for i := 0; i < aligned; i++ {
		buf[off+i] = 0
	}
	return s.writePage(id.Page, buf)
}

// Insert encodes rec and places it in a reserved free segment if one
// fits, else appends to the first page with enough trailing free space,
// growing the store if none qualifies (§4.6 write path).
func (s *Store) Insert(rec codec.Record) (RowID, error) {
	if err := rec.Validate(s.schema); err != nil {
		return RowID{}, err
	}
	payload, err := codec.EncodeRecord(rec)
	if err != nil {
		return RowID{}, err
	}
	aligned := codec.AlignUp(rowHeaderSize+len(payload), s.alignment)

	if seg, ok := s.freeSegs.Reserve(uint32(aligned)); ok {
		if err := s.writeRowAt(seg.Page, seg.Offset, payload, aligned); err != nil {
			return RowID{}, err
		}
		return RowID{Page: seg.Page, Offset: seg.Offset}, nil
	}

	page := s.pageLedger.FindPageFor(uint32(aligned))
	if page == pageid.Invalid {
		pid, err := s.allocPage()
		if err != nil {
			return RowID{}, err
		}
		page = pid
	}
	free, err := s.pageLedger.FreeBytesOf(page)
	if err != nil {
		return RowID{}, err
	}
	offset := uint32(pageio.PageSize) - free
	if err := s.writeRowAt(page, offset, payload, aligned); err != nil {
		return RowID{}, err
	}
	if err := s.pageLedger.Debit(page, uint32(aligned)); err != nil {
		return RowID{}, err
	}
	return RowID{Page: page, Offset: offset}, nil
}

// Get decodes the record at id, or ErrRowDeleted if it has been
// tombstoned.
func (s *Store) Get(id RowID) (codec.Record, error) {
	buf, err := s.readPage(id.Page)
	if err != nil {
		return nil, err
	}
	off := int(id.Offset)
	if off+rowHeaderSize > len(buf) {
		return nil, fmt.Errorf("table %q: row id offset %d out of bounds", s.schema.Name, off)
	}
	length := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	if length == 0 {
		return nil, ErrRowDeleted
	}
	payload := buf[off+rowHeaderSize : off+rowHeaderSize+length]
	return codec.DecodeRecord(s.schema, payload)
}

// Update overwrites rec in place when its encoded size matches the
// existing slot, else tombstones the old slot, releases it to the
// FreeSegmentLedger, and reinserts as a fresh row (§4.6 update path). The
// returned RowID differs from id exactly when relocation occurred.
func (s *Store) Update(id RowID, rec codec.Record) (RowID, error) {
	if err := rec.Validate(s.schema); err != nil {
		return RowID{}, err
	}
	payload, err := codec.EncodeRecord(rec)
	if err != nil {
		return RowID{}, err
	}
	newAligned := codec.AlignUp(rowHeaderSize+len(payload), s.alignment)

	oldAligned, err := s.slotAlignedSize(id)
	if err != nil {
		return RowID{}, err
	}
	if newAligned == oldAligned {
		if err := s.writeRowAt(id.Page, id.Offset, payload, newAligned); err != nil {
			return RowID{}, err
		}
		return id, nil
	}
	if err := s.tombstone(id, oldAligned); err != nil {
		return RowID{}, err
	}
	if err := s.freeSegs.Release(id.Page, id.Offset, uint32(oldAligned)); err != nil {
		return RowID{}, err
	}
	return s.Insert(rec)
}

// Delete tombstones id's slot and releases it to the FreeSegmentLedger.
func (s *Store) Delete(id RowID) error {
	oldAligned, err := s.slotAlignedSize(id)
	if err != nil {
		return err
	}
	if err := s.tombstone(id, oldAligned); err != nil {
		return err
	}
	return s.freeSegs.Release(id.Page, id.Offset, uint32(oldAligned))
}

// Scan walks every data page in PageLedger order, from offset 0 up to
// that page's append cursor, skipping tombstones, and returns every live
// row in (page order, ascending offset) order (§4.6 ordering guarantee).
func (s *Store) Scan() ([]Row, error) {
	var rows []Row
	for _, e := range s.pageLedger.Pages() {
		buf, err := s.readPage(e.Page)
		if err != nil {
			return nil, err
		}
		stop := pageio.PageSize - int(e.FreeBytes)
		offset := 0
		for offset < stop {
			if offset+rowHeaderSize > len(buf) {
				return nil, fmt.Errorf("%w: truncated row header on page %d offset %d", codec.ErrDecode, e.Page, offset)
			}
			length := int(binary.LittleEndian.Uint16(buf[offset : offset+2]))
			if length == 0 {
				offset += s.alignment
				continue
			}
			payload := buf[offset+rowHeaderSize : offset+rowHeaderSize+length]
			rec, err := codec.DecodeRecord(s.schema, payload)
			if err != nil {
				return nil, err
			}
			rows = append(rows, Row{ID: RowID{Page: e.Page, Offset: uint32(offset)}, Record: rec})
			offset += codec.AlignUp(rowHeaderSize+length, s.alignment)
		}
	}
	return rows, nil
}

// Stats reports page and free-space counts for introspection.
func (s *Store) Stats() Stats {
	entries := s.pageLedger.Pages()
	var free uint64
	for _, e := range entries {
		free += uint64(e.FreeBytes)
	}
	return Stats{
		PageCount:    len(entries),
		FreeBytes:    free,
		FreeSegments: len(s.freeSegs.Segments()),
	}
}
