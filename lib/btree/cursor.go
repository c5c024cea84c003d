package btree

import (
	"github.com/ValentinKolb/rowan/lib/btree/internal"
	"github.com/ValentinKolb/rowan/lib/txn"
)

// --------------------------------------------------------------------------
// Read path
// --------------------------------------------------------------------------

// visibleUpdate walks a version chain with plain lock-free loads and
// returns the newest version visible to the session, or nil. Aborted
// versions are invisible to everyone and skipped implicitly.
func (t *Tree) visibleUpdate(s *txn.Session, head *internal.Update) *internal.Update {
	for upd := head; upd != nil; upd = upd.Next() {
		if t.oracle.Visible(s, upd.Txn()) {
			return upd
		}
	}
	return nil
}

// Get returns the value visible to the session under key in the root
// leaf. The second return is false if the key does not exist, is not
// visible to the session, or is deleted in the visible version.
//
// Thread-safety: This method is thread-safe and runs concurrently with
// mutations; it never blocks a writer.
func (t *Tree) Get(s *txn.Session, key []byte) ([]byte, bool) {
	p := t.root.Load()
	pos := p.Search(key)
	if !pos.Match {
		return nil, false
	}

	if pos.Ins != nil {
		// Key lives in an insert list: the version chain is all there is.
		if upd := t.visibleUpdate(s, pos.Ins.Upd()); upd != nil && !upd.Deleted() {
			return upd.Value(), true
		}
		return nil, false
	}

	// On-page row: a visible version shadows the disk image, otherwise
	// the image itself is visible to everyone.
	if upd := t.visibleUpdate(s, p.updHead(pos.Slot)); upd != nil {
		if upd.Deleted() {
			return nil, false
		}
		return upd.Value(), true
	}
	return p.Row(pos.Slot).Value, true
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// Iterator walks one page in key order under a session's snapshot: the
// smallest-key insert list first, then each on-page row followed by the
// insert list covering the gap after it. Deleted and invisible keys are
// skipped.
//
// The walk is lock-free; mutations published after a step may or may not
// be observed by later steps, exactly like any other reader.
//
// Thread-safety: An Iterator is owned by a single goroutine.
type Iterator struct {
	t    *Tree
	s    *txn.Session
	page *Page

	slot int              // next on-page slot to visit; -1 before the first
	ins  *internal.Insert // current insert-list node, nil between lists

	key   []byte
	value []byte
}

// NewIterator returns an iterator over the given page. A nil page means
// the root leaf.
func (t *Tree) NewIterator(s *txn.Session, p *Page) *Iterator {
	if p == nil {
		p = t.root.Load()
	}
	it := &Iterator{t: t, s: s, page: p, slot: -1}
	it.ins = it.listFirst(p.insSlot(0, true))
	return it
}

// listFirst returns the first node of the insert list at an insert array
// index, or nil.
func (it *Iterator) listFirst(idx int) *internal.Insert {
	if head := it.page.insertHead(idx); head != nil {
		return head.First()
	}
	return nil
}

// Next advances to the next visible key. It returns false once the page
// is exhausted.
func (it *Iterator) Next() bool {
	for {
		// Drain the current insert list first.
		for it.ins != nil {
			ins := it.ins
			it.ins = ins.Next(0)
			if upd := it.t.visibleUpdate(it.s, ins.Upd()); upd != nil && !upd.Deleted() {
				it.key, it.value = ins.Key(), upd.Value()
				return true
			}
		}

		it.slot++
		if it.slot >= it.page.Rows() {
			return false
		}

		// The insert list after this row comes next, whatever the row
		// itself yields.
		it.ins = it.listFirst(it.page.insSlot(it.slot, false))

		row := it.page.Row(it.slot)
		if upd := it.t.visibleUpdate(it.s, it.page.updHead(it.slot)); upd != nil {
			if upd.Deleted() {
				continue
			}
			it.key, it.value = row.Key, upd.Value()
			return true
		}
		it.key, it.value = row.Key, row.Value
		return true
	}
}

// Key returns the key at the current position. Valid after Next reported
// true.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the value at the current position. Valid after Next
// reported true.
func (it *Iterator) Value() []byte {
	return it.value
}
