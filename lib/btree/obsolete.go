package btree

import (
	"github.com/ValentinKolb/rowan/lib/btree/internal"
)

// --------------------------------------------------------------------------
// Obsolete version reclamation
// --------------------------------------------------------------------------

// freeObsolete releases a detached update list: the summed footprint is
// reported to the cache accountant as a decrement and the engine-wide
// reclaim counter is bumped. The list itself is unreachable and left to
// the runtime.
func (t *Tree) freeObsolete(p *Page, list *internal.Update) {
	size := internal.ObsoleteSize(list)
	if size > 0 {
		p.acct.Account(p.id, -int64(size))
		t.reclaimed.Add(size)
	}
}

// reclaimChain runs the obsolete check on one version chain and frees
// whatever it truncates. It returns the number of bytes freed; zero
// means there was nothing to truncate (or a racing thread owns the
// truncation).
func (t *Tree) reclaimChain(p *Page, head *internal.Update) int {
	obsolete := internal.ObsoleteCheck(head, t.oracle.VisibleAll)
	if obsolete == nil {
		return 0
	}
	size := internal.ObsoleteSize(obsolete)
	if size > 0 {
		p.acct.Account(p.id, -int64(size))
		t.reclaimed.Add(size)
	}
	return size
}

// SweepPage walks every version chain attached to the page and
// truncates the versions no active transaction can still observe. That
// covers the smallest-key insert list, each on-page slot's chain and
// each slot's insert list. It returns the total bytes freed.
//
// The sweep is invoked opportunistically by the background sweeper after
// mutations and directly by eviction preparation.
//
// Thread-safety: This method is thread-safe and runs concurrently with
// mutations; it shares the admin lock read-side so coarse administrative
// actions can exclude it.
func (t *Tree) SweepPage(p *Page) int {
	p.adminMu.RLock()
	defer p.adminMu.RUnlock()

	freed := 0

	// Keys inserted before the first on-page row.
	freed += t.sweepInsertList(p, p.insertHead(p.insSlot(0, true)))

	for slot := 0; slot < len(p.rows); slot++ {
		if head := p.updHead(slot); head != nil {
			freed += t.reclaimChain(p, head)
		}
		freed += t.sweepInsertList(p, p.insertHead(p.insSlot(slot, false)))
	}
	return freed
}

// sweepInsertList reclaims the version chain of every node in one insert
// skip list.
func (t *Tree) sweepInsertList(p *Page, head *internal.InsertHead) int {
	if head == nil {
		return 0
	}
	freed := 0
	for ins := head.First(); ins != nil; ins = ins.Next(0) {
		freed += t.reclaimChain(p, ins.Upd())
	}
	return freed
}
