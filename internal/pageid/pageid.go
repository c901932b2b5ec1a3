// Package pageid defines the page identifier shared by every layer above
// pageio, so ledgers, the schema registry, and the table store all speak
// the same page addressing without pageio depending upward on them.
package pageid

// PageID identifies one page of a pageio.Store. IDs are 1-based — id N
// addresses the store's physical page N-1 — so the zero value stays free
// to act as the Invalid sentinel.
type PageID uint64

// Invalid marks the absence of a page (e.g. end of a chain, or "no head
// page yet").
const Invalid PageID = 0
