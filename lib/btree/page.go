package btree

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/rowan/lib/btree/internal"
	"github.com/ValentinKolb/rowan/lib/cache"
)

// --------------------------------------------------------------------------
// Rows
// --------------------------------------------------------------------------

// Row is one on-page slot: the key and value image the page carried when
// it was read into memory. The image itself is immutable; all mutation
// state lives in the version chain attached to the slot.
type Row struct {
	Key   []byte
	Value []byte
}

const ptrSize = 8

// updSlots maps each on-page slot to the head of its version chain.
type updSlots []atomic.Pointer[internal.Update]

// insSlots maps each on-page slot to the insert skip list holding new
// keys that sort after it. The extra final slot is the sentinel position
// for keys sorting before every on-page key.
type insSlots []atomic.Pointer[internal.InsertHead]

// --------------------------------------------------------------------------
// Page
// --------------------------------------------------------------------------

// Page is the in-memory mutation state of one row-store leaf page. The
// two per-slot arrays are allocated lazily by the first mutator that
// needs them; concurrent first-mutators race to install them with a
// compare-and-swap and the losers discard their redundant allocation.
//
// Thread-safety: all Page methods are safe for concurrent use unless
// noted otherwise. None of them block on the mutation path; the admin
// lock is only taken by coarse administrative operations.
type Page struct {
	id   uint64
	rows []Row

	upd atomic.Pointer[updSlots]
	ins atomic.Pointer[insSlots]

	// writeGen counts structural changes. Mutators capture it before
	// positioning themselves; the serial paths only ever test it for
	// wrap, position races are caught by stack re-validation instead.
	writeGen atomic.Uint32

	// adminMu excludes rare administrative actions (eviction
	// preparation, checkpoint-style freezes) from background sweeps.
	// The insert/update hot path never takes it.
	adminMu sync.RWMutex

	acct cache.Accountant
}

// NewPage creates the mutation state for a leaf page whose on-page image
// holds the given rows, which must be sorted by key.
func NewPage(id uint64, rows []Row, acct cache.Accountant) *Page {
	return &Page{id: id, rows: rows, acct: acct}
}

// ID returns the page id used for cache accounting.
func (p *Page) ID() uint64 {
	return p.id
}

// Rows returns the number of on-page slots.
func (p *Page) Rows() int {
	return len(p.rows)
}

// Row returns the on-page image of one slot.
func (p *Page) Row(slot int) Row {
	return p.rows[slot]
}

// WriteGen returns the current write generation.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Page) WriteGen() uint32 {
	return p.writeGen.Load()
}

// markModified records a structural change by bumping the write
// generation.
func (p *Page) markModified() {
	p.writeGen.Add(1)
}

// checkWriteGen tests a captured write generation for wrap. A wrapped
// generation forces an unconditional retry: the caller re-searches with a
// fresh capture. Generations are never compared for equality; position
// races are detected by re-validation instead.
//
// The generation only advances on successful mutations, so a page whose
// generation has reached the maximum can never accept another one. The
// key-level API reports that as a fatal error; recovery is evicting the
// page and reading it back with a fresh generation.
func checkWriteGen(gen uint32) error {
	if gen == math.MaxUint32 {
		return ErrRestart
	}
	return nil
}

// AdminLock takes the page's coarse administrative lock, excluding
// background sweeps until AdminUnlock. It is not part of the mutation
// path.
func (p *Page) AdminLock() {
	p.adminMu.Lock()
}

// AdminUnlock releases the administrative lock.
func (p *Page) AdminUnlock() {
	p.adminMu.Unlock()
}

// --------------------------------------------------------------------------
// Lazy per-slot arrays
// --------------------------------------------------------------------------

// updEntry returns the version chain head cell for an on-page slot,
// installing the per-page array on first use. The install is a CAS race:
// exactly one allocation survives and is accounted, losers drop theirs
// unreachable.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Page) updEntry(slot int) *atomic.Pointer[internal.Update] {
	arr := p.upd.Load()
	if arr == nil {
		fresh := make(updSlots, len(p.rows))
		if p.upd.CompareAndSwap(nil, &fresh) {
			p.acct.Account(p.id, int64(len(p.rows))*ptrSize)
		}
		arr = p.upd.Load()
	}
	return &(*arr)[slot]
}

// updHead returns the version chain head for an on-page slot, or nil if
// the slot was never modified.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Page) updHead(slot int) *internal.Update {
	arr := p.upd.Load()
	if arr == nil {
		return nil
	}
	return (*arr)[slot].Load()
}

// insSlot maps a search position to its index in the insert array: slot
// positions map through directly, the smallest-key sentinel takes the
// extra final index.
func (p *Page) insSlot(slot int, smallest bool) int {
	if smallest {
		return len(p.rows)
	}
	return slot
}

// insertHead returns the insert list head at an insert array index,
// without installing anything.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Page) insertHead(idx int) *internal.InsertHead {
	arr := p.ins.Load()
	if arr == nil {
		return nil
	}
	return (*arr)[idx].Load()
}

// ensureInsertHead returns the insert list head at an insert array
// index, installing the per-page array and the head itself as needed.
// Both installs are CAS races with losers discarding their allocation.
// installed reports whether this caller won the head install, in which
// case the caller's search position predates the head and must be reset
// onto it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Page) ensureInsertHead(idx int) (head *internal.InsertHead, installed bool) {
	arr := p.ins.Load()
	if arr == nil {
		fresh := make(insSlots, len(p.rows)+1)
		if p.ins.CompareAndSwap(nil, &fresh) {
			p.acct.Account(p.id, int64(len(p.rows)+1)*ptrSize)
		}
		arr = p.ins.Load()
	}
	entry := &(*arr)[idx]
	head = entry.Load()
	if head == nil {
		fresh := internal.NewInsertHead()
		if entry.CompareAndSwap(nil, fresh) {
			p.acct.Account(p.id, internal.InsertHeadSize)
			return fresh, true
		}
		// Lost the race: another thread's head is the real one. Our
		// stale search position will fail validation and restart.
		head = entry.Load()
	}
	return head, false
}
