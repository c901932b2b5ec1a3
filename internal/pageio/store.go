// Package pageio implements the raw, byte-addressable, page-granular
// persistent memory abstraction the rest of the engine is built on (C1).
package pageio

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// PageSize is the store's natural page size — 64 KiB in the target host
// (§3 Page).
const PageSize = 64 * 1024

// ErrInsufficientSpace is returned by Grow when the host rejects growth.
var ErrInsufficientSpace = errors.New("pageio: insufficient space")

// ErrOutOfBounds is returned by ReadAt/WriteAt for an access outside
// allocated space.
var ErrOutOfBounds = errors.New("pageio: out of bounds")

// Store is the contract every page store binding implements (§4.1).
type Store interface {
	// Size returns the total allocated size in bytes.
	Size() int64
	// PageCount returns the number of allocated pages.
	PageCount() uint64
	// Grow allocates additional pages, returning the page count prior to
	// growth, or ErrInsufficientSpace.
	Grow(pages uint64) (uint64, error)
	// ReadAt reads len(buf) bytes starting at offset. Reads inside
	// allocated space always succeed.
	ReadAt(offset int64, buf []byte) error
	// WriteAt writes buf starting at offset. Totally ordered with ReadAt.
	WriteAt(offset int64, buf []byte) error
}

// Stats is a diagnostic snapshot of a Store, humanized for logging.
type Stats struct {
	Pages      uint64
	Bytes      int64
	BytesHuman string
}

// StatsOf builds a Stats snapshot for s.
func StatsOf(s Store) Stats {
	sz := s.Size()
	return Stats{
		Pages:      s.PageCount(),
		Bytes:      sz,
		BytesHuman: humanize.IBytes(uint64(sz)),
	}
}

func boundsError(offset int64, n int, size int64) error {
	return fmt.Errorf("%w: offset %d len %d exceeds size %s", ErrOutOfBounds, offset, n, humanize.IBytes(uint64(size)))
}
