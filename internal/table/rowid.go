// Package table implements the TableStore (C6): the write/scan/update/
// delete path over a single table's data pages, backed by a PageLedger
// and FreeSegmentLedger (§4.6).
package table

import "github.com/canisterstack/icdb/internal/pageid"

// RowID addresses one PhysicalRow slot: a page and the byte offset of its
// u16 length header within that page. It is stable across updates that
// rewrite in place, and invalidated by updates that relocate (old size !=
// new size).
type RowID struct {
	Page   pageid.PageID
	Offset uint32
}
