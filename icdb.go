// Package icdb is the Database facade (C11): the single entry point that
// wires the HookPipeline, IntegrityGuard, TableStore, PageLedger/
// FreeSegmentLedger, SchemaRegistry, ACL, and TransactionManager into the
// operation surface a host embeds (§4.10, §6).
//
// A Database owns one pageio.Store and every table declared to
// NewDatabase. Every operation is gated by the ACL first; a principal
// absent from the list gets ErrUnauthorized regardless of what it asked
// for.
package icdb

import (
	"fmt"
	"log"

	"github.com/canisterstack/icdb/internal/acl"
	"github.com/canisterstack/icdb/internal/codec"
	"github.com/canisterstack/icdb/internal/integrity"
	"github.com/canisterstack/icdb/internal/ledger"
	"github.com/canisterstack/icdb/internal/pageid"
	"github.com/canisterstack/icdb/internal/pageio"
	"github.com/canisterstack/icdb/internal/query"
	"github.com/canisterstack/icdb/internal/schema"
	"github.com/canisterstack/icdb/internal/table"
	"github.com/canisterstack/icdb/internal/txn"
)

// Re-exported component types so a host can name them without reaching
// into internal packages.
type (
	Value          = codec.Value
	Record         = codec.Record
	Kind           = codec.Kind
	TableSchema    = codec.TableSchema
	ColumnDef      = codec.ColumnDef
	ForeignKey     = codec.ForeignKey
	Principal      = codec.Principal
	Query          = query.Query
	FilterExpr     = query.FilterExpr
	SelectSpec     = query.SelectSpec
	OrderKey       = query.OrderKey
	Result         = query.Result
	DeleteBehavior = integrity.DeleteBehavior
	TxID           = txn.ID
)

// DeleteBehavior values, re-exported for callers that don't want to
// import internal/integrity directly.
const (
	Restrict = integrity.Restrict
	Cascade  = integrity.Cascade
	Break    = integrity.Break
)

// ErrUnauthorized is returned by every operation when caller is not a
// member of the ACL (§6 "an access-control list gates every operation").
var ErrUnauthorized = fmt.Errorf("icdb: unauthorized")

// ErrUnknownTable is returned when an operation names a table not passed
// to NewDatabase.
var ErrUnknownTable = fmt.Errorf("icdb: unknown table")

// tableHandle bundles a table's schema, fingerprint, and live
// Store/ledger objects — one per table declared to NewDatabase.
type tableHandle struct {
	schema codec.TableSchema
	fp     uint64
	store  *table.Store
	pl     *ledger.PageLedger
	fl     *ledger.FreeSegmentLedger
}

// Database is the facade threading every component together (C11).
type Database struct {
	pages    pageio.Store
	registry *schema.Registry
	aclList  *acl.List
	guard    *integrity.Guard
	txns     *txn.Manager
	tables   map[string]*tableHandle
	logger   *log.Logger
}

// NewDatabase bootstraps or reopens a Database over pages: a fresh store
// (PageCount() == 0) reserves page 0 for the SchemaRegistry and page 1
// for the ACL before anything else allocates, seeding the ACL with
// initialACL; an existing store decodes both from their fixed pages and
// ignores initialACL (§6 "Page 0" / "Page 1").
//
// Every table in schemas is registered (recovering its PageLedger/
// FreeSegmentLedger from the SchemaRegistry when its fingerprint is
// already known, or starting empty and adopting fresh pages on first
// write otherwise, §4.3).
func NewDatabase(pages pageio.Store, schemas []codec.TableSchema, initialACL []codec.Principal, logger *log.Logger) (*Database, error) {
	if logger == nil {
		logger = log.Default()
	}
	fresh := pages.PageCount() == 0
	if fresh {
		if _, err := pages.Grow(2); err != nil {
			return nil, fmt.Errorf("icdb: reserve registry/acl pages: %w", err)
		}
	}

	db := &Database{
		pages:  pages,
		txns:   txn.NewManager(),
		tables: map[string]*tableHandle{},
		logger: logger,
	}

	if fresh {
		db.registry = schema.New()
		db.aclList = acl.New()
		for _, p := range initialACL {
			if err := db.aclList.Add(p); err != nil {
				return nil, fmt.Errorf("icdb: seed ACL: %w", err)
			}
		}
	} else {
		regBuf := make([]byte, pageio.PageSize)
		if err := pages.ReadAt(0, regBuf); err != nil {
			return nil, fmt.Errorf("icdb: read schema registry: %w", err)
		}
		reg, err := schema.Decode(regBuf)
		if err != nil {
			return nil, err
		}
		db.registry = reg

		aclBuf := make([]byte, pageio.PageSize)
		if err := pages.ReadAt(pageio.PageSize, aclBuf); err != nil {
			return nil, fmt.Errorf("icdb: read acl: %w", err)
		}
		aclList, err := acl.Decode(aclBuf)
		if err != nil {
			return nil, fmt.Errorf("icdb: decode acl: %w", err)
		}
		db.aclList = aclList
	}

	schemaMap := make(map[string]codec.TableSchema, len(schemas))
	resolved := make([]codec.TableSchema, len(schemas))
	for i, s := range schemas {
		s.Fingerprint = schema.Fingerprint(s)
		schemaMap[s.Name] = s
		resolved[i] = s
	}
	db.guard = integrity.NewGuard(schemaMap)

	for _, s := range resolved {
		fp := s.Fingerprint
		var pl *ledger.PageLedger
		var fl *ledger.FreeSegmentLedger
		if entry, ok := db.registry.Lookup(fp); ok {
			var err error
			pl, err = ledger.Load(entry.LedgerPage, db.readPage)
			if err != nil {
				return nil, fmt.Errorf("icdb: load page ledger for table %q: %w", s.Name, err)
			}
			fl, err = ledger.LoadFreeSegments(entry.FreeSegmentsPage, db.readPage)
			if err != nil {
				return nil, fmt.Errorf("icdb: load free-segment ledger for table %q: %w", s.Name, err)
			}
		} else {
			pl = ledger.NewPageLedger()
			fl = ledger.NewFreeSegmentLedger()
			db.registry.Adopt(fp, pageid.Invalid, pageid.Invalid)
		}
		store, err := table.NewStore(s, pages, pl, fl)
		if err != nil {
			return nil, fmt.Errorf("icdb: open table %q: %w", s.Name, err)
		}
		db.tables[s.Name] = &tableHandle{schema: s, fp: fp, store: store, pl: pl, fl: fl}
	}

	if err := db.persistRegistry(); err != nil {
		return nil, err
	}
	if fresh {
		if err := db.persistACL(); err != nil {
			return nil, err
		}
		logger.Printf("icdb: initialized fresh store, %d tables declared", len(schemas))
	} else {
		logger.Printf("icdb: reopened store, %d registry entries, %d tables declared", len(db.registry.Entries()), len(schemas))
	}
	return db, nil
}

// Recover re-derives every table's in-memory PageLedger/FreeSegmentLedger
// from the SchemaRegistry, as a host would after restarting the process
// over the same pages, and discards every open transaction (a restart is
// an implicit rollback of anything not yet committed).
func (db *Database) Recover() error {
	db.txns = txn.NewManager()
	for name, th := range db.tables {
		entry, ok := db.registry.Lookup(th.fp)
		if !ok {
			continue
		}
		pl, err := ledger.Load(entry.LedgerPage, db.readPage)
		if err != nil {
			return fmt.Errorf("icdb: recover page ledger for table %q: %w", name, err)
		}
		fl, err := ledger.LoadFreeSegments(entry.FreeSegmentsPage, db.readPage)
		if err != nil {
			return fmt.Errorf("icdb: recover free-segment ledger for table %q: %w", name, err)
		}
		store, err := table.NewStore(th.schema, db.pages, pl, fl)
		if err != nil {
			return fmt.Errorf("icdb: recover table %q: %w", name, err)
		}
		db.tables[name] = &tableHandle{schema: th.schema, fp: th.fp, store: store, pl: pl, fl: fl}
	}
	db.logger.Printf("icdb: recovered %d tables, open transactions discarded", len(db.tables))
	return nil
}

// Stats reports page-usage diagnostics per table (§5, supplemented
// diagnostics).
func (db *Database) Stats() map[string]table.Stats {
	out := make(map[string]table.Stats, len(db.tables))
	for name, th := range db.tables {
		out[name] = th.store.Stats()
	}
	return out
}

// StoreStats reports the underlying page store's overall size.
func (db *Database) StoreStats() pageio.Stats {
	return pageio.StatsOf(db.pages)
}

func (db *Database) readPage(pid pageid.PageID) ([]byte, error) {
	buf := make([]byte, pageio.PageSize)
	if err := db.pages.ReadAt(int64(pid-1)*pageio.PageSize, buf); err != nil {
		return nil, fmt.Errorf("icdb: read page %d: %w", pid, err)
	}
	return buf, nil
}

func (db *Database) writePage(pid pageid.PageID, buf []byte) error {
	if err := db.pages.WriteAt(int64(pid-1)*pageio.PageSize, buf); err != nil {
		return fmt.Errorf("icdb: write page %d: %w", pid, err)
	}
	return nil
}

func (db *Database) persistRegistry() error {
	buf, err := db.registry.Encode(pageio.PageSize)
	if err != nil {
		return fmt.Errorf("icdb: encode schema registry: %w", err)
	}
	return db.pages.WriteAt(0, buf)
}

func (db *Database) persistACL() error {
	buf, err := db.aclList.Encode(pageio.PageSize)
	if err != nil {
		return fmt.Errorf("icdb: encode acl: %w", err)
	}
	return db.pages.WriteAt(pageio.PageSize, buf)
}

// allocAndFlush runs flush (pl.Flush or fl.Flush) with an allocPage
// callback that grows the real page store, then persists every buffer
// Flush produced — Flush itself only fills buffers in memory.
func (db *Database) allocAndFlush(flush func(pageSize int, alloc func() (pageid.PageID, error)) (pageid.PageID, []ledger.FlushPage, error)) (pageid.PageID, error) {
	alloc := func() (pageid.PageID, error) {
		prior, err := db.pages.Grow(1)
		if err != nil {
			return pageid.Invalid, err
		}
		return pageid.PageID(prior + 1), nil
	}
	head, pages, err := flush(pageio.PageSize, alloc)
	if err != nil {
		return pageid.Invalid, err
	}
	for _, p := range pages {
		if err := db.writePage(p.ID, p.Buf); err != nil {
			return pageid.Invalid, err
		}
	}
	return head, nil
}

// persistTable rewrites a table's PageLedger and FreeSegmentLedger onto
// their existing backing pages (growing the chain only when it fills —
// adopted ledger pages are never relocated) and records the heads in the
// SchemaRegistry, then rewrites page 0. Called after every mutation that
// touches the table's page-level bookkeeping.
func (db *Database) persistTable(tableName string) error {
	th, ok := db.tables[tableName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, tableName)
	}
	ledgerHead, err := db.allocAndFlush(th.pl.Flush)
	if err != nil {
		return fmt.Errorf("icdb: flush page ledger for table %q: %w", tableName, err)
	}
	freeSegHead, err := db.allocAndFlush(th.fl.Flush)
	if err != nil {
		return fmt.Errorf("icdb: flush free-segment ledger for table %q: %w", tableName, err)
	}
	db.registry.Adopt(th.fp, ledgerHead, freeSegHead)
	return db.persistRegistry()
}
