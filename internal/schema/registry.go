// Package schema implements the SchemaRegistry (C3): the page-0 mapping
// from a table's stable fingerprint to its two reserved ledger pages.
package schema

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/canisterstack/icdb/internal/codec"
	"github.com/canisterstack/icdb/internal/pageid"
)

// Magic and Version identify the on-disk SchemaRegistry page (§6).
const (
	Magic   uint32 = 0x49444253 // "IDBS"
	Version uint16 = 1
)

// ErrCorrupted wraps a magic/version mismatch on load.
var ErrCorrupted = fmt.Errorf("schema: corrupted store")

const (
	registryHeaderSize = 4 + 2 + 2 + 4 // magic, version, reserved, entry_count
	registryEntrySize  = 8 + 8 + 8     // fingerprint, ledger_page, free_segments_page
)

// Entry is one SchemaRegistry row.
type Entry struct {
	Fingerprint      uint64
	LedgerPage       pageid.PageID
	FreeSegmentsPage pageid.PageID
}

// Registry holds the fingerprint -> (ledger_page, free_segments_page)
// mapping for page 0. Unknown fingerprints encountered on load are
// retained and ignored, making the format forward-compatible (§4.3).
type Registry struct {
	entries []Entry
	byFP    map[uint64]int
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byFP: map[uint64]int{}}
}

// Fingerprint computes the stable 64-bit hash of a TableSchema's shape:
// name, then each column's name/type/nullable/PK/FK in order. Two
// schemas with the same shape (even across restarts) hash identically,
// which is how a table's ledger pages are found again after an upgrade
// (§4.3, GLOSSARY).
func Fingerprint(s codec.TableSchema) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		// blake2b.New never fails for a valid output size <= 64; this
		// would indicate a broken build, not a runtime condition.
		panic(fmt.Sprintf("schema: blake2b init: %v", err))
	}
	writeString(h, s.Name)
	for _, c := range s.Columns {
		writeString(h, c.Name)
		writeByte(h, byte(c.DataType))
		writeBool(h, c.Nullable)
		writeBool(h, c.IsPrimaryKey)
		if c.ForeignKey != nil {
			writeBool(h, true)
			writeString(h, c.ForeignKey.TargetTable)
			writeString(h, c.ForeignKey.TargetColumn)
		} else {
			writeBool(h, false)
		}
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

func writeString(h interface{ Write([]byte) (int, error) }, s string) {
	var lenb [4]byte
	binary.LittleEndian.PutUint32(lenb[:], uint32(len(s)))
	h.Write(lenb[:])
	h.Write([]byte(s))
}

func writeByte(h interface{ Write([]byte) (int, error) }, b byte) {
	h.Write([]byte{b})
}

func writeBool(h interface{ Write([]byte) (int, error) }, b bool) {
	if b {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

// Lookup returns the existing entry for fp, if present.
func (r *Registry) Lookup(fp uint64) (Entry, bool) {
	i, ok := r.byFP[fp]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Adopt registers fp -> (ledgerPage, freeSegPage), whether newly
// allocated or recovered from disk (§4.3: "if the fingerprint is already
// present, the existing pages are adopted").
func (r *Registry) Adopt(fp uint64, ledgerPage, freeSegPage pageid.PageID) {
	if i, ok := r.byFP[fp]; ok {
		r.entries[i].LedgerPage = ledgerPage
		r.entries[i].FreeSegmentsPage = freeSegPage
		return
	}
	r.byFP[fp] = len(r.entries)
	r.entries = append(r.entries, Entry{Fingerprint: fp, LedgerPage: ledgerPage, FreeSegmentsPage: freeSegPage})
}

// Entries returns all registered entries, including unknown ones kept
// from disk for forward compatibility.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Encode serializes the registry into a single page-0 buffer (§6).
func (r *Registry) Encode(pageSize int) ([]byte, error) {
	need := registryHeaderSize + len(r.entries)*registryEntrySize
	if need > pageSize {
		return nil, fmt.Errorf("schema: registry with %d entries exceeds page size %d", len(r.entries), pageSize)
	}
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(r.entries)))
	off := registryHeaderSize
	for _, e := range r.entries {
		binary.LittleEndian.PutUint64(buf[off:off+8], e.Fingerprint)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(e.LedgerPage))
		binary.LittleEndian.PutUint64(buf[off+16:off+24], uint64(e.FreeSegmentsPage))
		off += registryEntrySize
	}
	return buf, nil
}

// Decode parses a page-0 buffer into a Registry. Magic/version mismatch
// yields ErrCorrupted (§6).
func Decode(buf []byte) (*Registry, error) {
	if len(buf) < registryHeaderSize {
		return nil, fmt.Errorf("%w: truncated registry page", ErrCorrupted)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint16(buf[4:6])
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %08x", ErrCorrupted, magic)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupted, version)
	}
	count := binary.LittleEndian.Uint32(buf[8:12])
	r := New()
	off := registryHeaderSize
	for i := uint32(0); i < count; i++ {
		if off+registryEntrySize > len(buf) {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrCorrupted, i)
		}
		fp := binary.LittleEndian.Uint64(buf[off : off+8])
		lp := pageid.PageID(binary.LittleEndian.Uint64(buf[off+8 : off+16]))
		fsp := pageid.PageID(binary.LittleEndian.Uint64(buf[off+16 : off+24]))
		r.Adopt(fp, lp, fsp)
		off += registryEntrySize
	}
	return r, nil
}
