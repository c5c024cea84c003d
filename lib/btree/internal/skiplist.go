package internal

import (
	"bytes"
	"math/rand"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// SkipMaxDepth bounds the number of levels in an insert skip list.
	SkipMaxDepth = 10

	// skipProbability is the chance a node is promoted one level higher,
	// expressed as a 32-bit threshold. Each level is present with an
	// independent 1-in-4 chance, which gives the list its expected
	// O(log n) search cost.
	skipProbability = uint32(1) << 30

	// insertOverhead approximates the fixed in-memory cost of one Insert
	// node excluding key bytes and per-level links.
	insertOverhead = 48

	// linkSize is the accounted cost of one per-level link.
	linkSize = 8

	// InsertHeadSize is the accounted cost of one InsertHead.
	InsertHeadSize = 2 * SkipMaxDepth * linkSize
)

// ChooseDepth selects the level count for a new Insert node using a fixed
// geometric distribution: minimum 1, each further level present with an
// independent 1-in-4 chance, capped at SkipMaxDepth.
//
// The random source is injected by the caller so the structure stays
// deterministic under a fixed seed.
func ChooseDepth(rng *rand.Rand) int {
	depth := 1
	for depth < SkipMaxDepth && rng.Uint32() < skipProbability {
		depth++
	}
	return depth
}

// --------------------------------------------------------------------------
// Insert (skip list node for a newly inserted key)
// --------------------------------------------------------------------------

// Insert is one entry in a per-page insert skip list. It owns a copy of
// its key and the version chain holding every value ever written to that
// key while the page is in memory. Once published the key is immutable;
// only the owned version chain mutates.
type Insert struct {
	key  []byte
	upd  atomic.Pointer[Update]
	next []atomic.Pointer[Insert] // one forward link per level
}

// NewInsert allocates an Insert node of the given depth owning a copy of
// key. The node is not reachable until it is spliced into a list.
func NewInsert(key []byte, depth int) *Insert {
	k := make([]byte, len(key))
	copy(k, key)
	return &Insert{
		key:  k,
		next: make([]atomic.Pointer[Insert], depth),
	}
}

// Key returns the node's key. The returned slice is owned by the node and
// must not be modified.
func (ins *Insert) Key() []byte {
	return ins.key
}

// Depth returns the number of levels this node participates in.
func (ins *Insert) Depth() int {
	return len(ins.next)
}

// Next returns the forward link at the given level.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (ins *Insert) Next(level int) *Insert {
	return ins.next[level].Load()
}

// NextEntry returns the address of the forward link cell at the given
// level, for use as a splice point by the publish path.
func (ins *Insert) NextEntry(level int) *atomic.Pointer[Insert] {
	return &ins.next[level]
}

// Upd returns the head of the owned version chain.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (ins *Insert) Upd() *Update {
	return ins.upd.Load()
}

// SetUpd initializes the owned version chain before the node is
// published. Later versions are prepended through UpdEntry.
func (ins *Insert) SetUpd(upd *Update) {
	ins.upd.Store(upd)
}

// UpdEntry returns the address of the version chain head cell so the
// update path can prepend to it like to any per-slot chain.
func (ins *Insert) UpdEntry() *atomic.Pointer[Update] {
	return &ins.upd
}

// Size returns the accounted in-memory footprint of the node itself,
// excluding its version chain.
func (ins *Insert) Size() int {
	return insertOverhead + len(ins.key) + len(ins.next)*linkSize
}

// --------------------------------------------------------------------------
// InsertHead (per-position skip list entry point)
// --------------------------------------------------------------------------

// InsertHead is the entry point of one insert skip list: level-indexed
// head links reachable by all readers, and level-indexed tail links that
// give appending writers O(1) awareness of the list end.
type InsertHead struct {
	head [SkipMaxDepth]atomic.Pointer[Insert]
	tail [SkipMaxDepth]atomic.Pointer[Insert]
}

// NewInsertHead allocates an empty InsertHead.
func NewInsertHead() *InsertHead {
	return &InsertHead{}
}

// First returns the first node at level 0, or nil for an empty list.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *InsertHead) First() *Insert {
	return h.head[0].Load()
}

// HeadEntry returns the address of the head link cell at the given level.
func (h *InsertHead) HeadEntry(level int) *atomic.Pointer[Insert] {
	return &h.head[level]
}

// Tail returns the last node at the given level, or nil.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *InsertHead) Tail(level int) *Insert {
	return h.tail[level].Load()
}

// CASTail atomically advances the tail link at the given level.
func (h *InsertHead) CASTail(level int, old, ins *Insert) bool {
	return h.tail[level].CompareAndSwap(old, ins)
}

// --------------------------------------------------------------------------
// Positioning
// --------------------------------------------------------------------------

// SkipStack is the per-level position captured by a lock-free search: for
// every level the link cell a new node would be spliced into, and the
// successor that cell referenced at the time of the search. The publish
// path re-validates both before making anything reachable.
type SkipStack struct {
	Entries [SkipMaxDepth]*atomic.Pointer[Insert]
	Next    [SkipMaxDepth]*Insert
}

// SetHead points every level of the stack at a fresh, empty InsertHead.
// Used when the searching thread is the one that just installed the head
// and the search therefore could not have captured a position.
func (st *SkipStack) SetHead(h *InsertHead) {
	for i := 0; i < SkipMaxDepth; i++ {
		st.Entries[i] = h.HeadEntry(i)
		st.Next[i] = nil
	}
}

// SearchInsertList positions a key in an insert skip list without taking
// any lock. It returns the matching node if the key is already present,
// and fills st with the per-level splice position either way.
//
// The capture is optimistic: by the time the caller acts on the stack the
// list may have changed, which the publish path detects and reports as a
// restart.
//
// Thread-safety: This function is thread-safe and can be called
// concurrently with publishes to the same list.
func SearchInsertList(h *InsertHead, key []byte, st *SkipStack) (match *Insert) {
	var prev *Insert
	for level := SkipMaxDepth - 1; level >= 0; level-- {
		entry := h.HeadEntry(level)
		if prev != nil {
			entry = prev.NextEntry(level)
		}
		for {
			next := entry.Load()
			if next == nil || bytes.Compare(next.key, key) >= 0 {
				st.Entries[level] = entry
				st.Next[level] = next
				if next != nil && bytes.Equal(next.key, key) {
					match = next
				}
				break
			}
			prev = next
			entry = next.NextEntry(level)
		}
	}
	return match
}
