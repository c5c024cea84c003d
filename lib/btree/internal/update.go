package internal

import (
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// updateOverhead approximates the fixed in-memory cost of one Update
	// (struct header, transaction id, link, flags) for cache accounting.
	updateOverhead = 48
)

// --------------------------------------------------------------------------
// Update (one version of one key)
// --------------------------------------------------------------------------

// Update is a single version in a newest-first version chain. Every write
// to a key prepends one Update to the chain for that key; a delete is an
// Update carrying a tombstone instead of a value.
//
// The chain is ordered by logical creation order, newest first. It is not
// necessarily ordered by transaction id: concurrent transactions race to
// prepend, and the winner of the compare-and-swap goes first.
type Update struct {
	txn     atomic.Uint64 // owning transaction id
	data    []byte        // owned copy of the value, nil for tombstones
	deleted bool
	next    atomic.Pointer[Update] // next-older version
}

// NewUpdate allocates an Update owning a copy of value. A nil value
// creates a tombstone. The transaction id is assigned separately when the
// modification is registered with the transaction oracle.
func NewUpdate(value []byte) *Update {
	if value == nil {
		return &Update{deleted: true}
	}
	data := make([]byte, len(value))
	copy(data, value)
	return &Update{data: data}
}

// Txn returns the owning transaction id.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (upd *Update) Txn() uint64 {
	return upd.txn.Load()
}

// SetTxn stores the owning transaction id. It is called once before the
// Update is published, and again only to mark the Update aborted when the
// owning transaction rolls back.
func (upd *Update) SetTxn(id uint64) {
	upd.txn.Store(id)
}

// Deleted reports whether this Update is a tombstone.
func (upd *Update) Deleted() bool {
	return upd.deleted
}

// Value returns the version payload. The returned slice is owned by the
// Update and must not be modified.
func (upd *Update) Value() []byte {
	return upd.data
}

// Next returns the next-older version, or nil at the end of the chain.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (upd *Update) Next() *Update {
	return upd.next.Load()
}

// SetNext initializes the next-older link. It must only be called before
// the Update is published; afterwards the link is owned by the chain and
// is only modified through CASNext.
func (upd *Update) SetNext(next *Update) {
	upd.next.Store(next)
}

// CASNext atomically replaces the next-older link if it still equals old.
func (upd *Update) CASNext(old, next *Update) bool {
	return upd.next.CompareAndSwap(old, next)
}

// Size returns the accounted in-memory footprint of this Update. A
// tombstone carries no payload, so only the fixed overhead is counted.
func (upd *Update) Size() int {
	return updateOverhead + len(upd.data)
}

// --------------------------------------------------------------------------
// Obsolete version truncation
// --------------------------------------------------------------------------

// ObsoleteCheck walks a version chain looking for updates no transaction
// can still observe. The first update visibleAll reports as visible to
// every active transaction must be retained, because concurrent readers
// terminate their walk in it; everything after it is unreachable going
// forward and is truncated off.
//
// Truncation detaches the suffix with a single compare-and-swap of the
// retained update's next link. If the CAS fails another thread raced us,
// either truncating the same suffix or extending past it, and that thread
// now owns the problem: this pass gives up and returns nil.
//
// The returned suffix is detached and exclusively owned by the caller,
// which is responsible for reporting the freed bytes to cache accounting.
//
// Thread-safety: This function is thread-safe. It only ever removes
// versions from the tail side of a point every reader has already passed,
// so it runs concurrently with prepends to the front of the chain.
func ObsoleteCheck(head *Update, visibleAll func(txn uint64) bool) *Update {
	for upd := head; upd != nil; upd = upd.Next() {
		if !visibleAll(upd.Txn()) {
			continue
		}
		next := upd.Next()
		if next == nil {
			return nil
		}
		if !upd.CASNext(next, nil) {
			return nil
		}
		return next
	}
	return nil
}

// ObsoleteSize sums the accounted footprint of a detached update list.
func ObsoleteSize(head *Update) int {
	size := 0
	for upd := head; upd != nil; upd = upd.Next() {
		size += upd.Size()
	}
	return size
}
