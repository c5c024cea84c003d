package btree

import (
	"bytes"
	"sort"

	"github.com/ValentinKolb/rowan/lib/btree/internal"
)

// --------------------------------------------------------------------------
// Position
// --------------------------------------------------------------------------

// Position is the result of locating a key on a page: either an exact
// match (on a row slot or on a pending insert node), or the gap the key
// would be inserted into, described by a per-level skip list stack. The
// capture is optimistic; the publish paths re-validate it and report a
// restart if the page changed underneath.
type Position struct {
	Page *Page
	Key  []byte

	// Match is true if the key exists, either as an on-page row or as a
	// previously inserted skip list node (then Ins is set).
	Match bool
	Slot  int
	Ins   *internal.Insert

	// Smallest is true if the key sorts before every on-page row and
	// therefore belongs to the dedicated smallest-key insert position.
	Smallest bool

	InsHead *internal.InsertHead
	Stack   internal.SkipStack

	gen uint32 // write generation captured before positioning
}

// --------------------------------------------------------------------------
// Page search
// --------------------------------------------------------------------------

// Search locates key on the page without taking any lock: a binary
// search over the on-page rows picks the slot, then the insert skip list
// covering the surrounding gap is descended to capture the per-level
// splice position.
//
// Thread-safety: This method is thread-safe and runs concurrently with
// mutations of the same page.
func (p *Page) Search(key []byte) *Position {
	pos := &Position{
		Page: p,
		Key:  key,
		gen:  p.writeGen.Load(),
	}

	// First on-page row with a key >= the search key.
	idx := sort.Search(len(p.rows), func(i int) bool {
		return bytes.Compare(p.rows[i].Key, key) >= 0
	})

	if idx < len(p.rows) && bytes.Equal(p.rows[idx].Key, key) {
		pos.Match = true
		pos.Slot = idx
		return pos
	}

	// The key falls into the gap after row idx-1. Keys before every row
	// use the dedicated smallest-key position.
	if idx == 0 {
		pos.Smallest = true
		pos.Slot = 0
	} else {
		pos.Slot = idx - 1
	}

	head := p.insertHead(p.insSlot(pos.Slot, pos.Smallest))
	if head == nil {
		return pos
	}
	pos.InsHead = head
	if match := internal.SearchInsertList(head, key, &pos.Stack); match != nil {
		pos.Match = true
		pos.Ins = match
	}
	return pos
}
