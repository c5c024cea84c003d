package btree

import (
	"sync/atomic"

	"github.com/ValentinKolb/rowan/lib/btree/internal"
	"github.com/ValentinKolb/rowan/lib/txn"
)

// The two functions in this file are the only code that makes mutation
// state reachable. Both follow the same publish discipline: initialize
// every outgoing link of the new node, then expose it through one atomic
// store of the single incoming link. Go's atomics order the plain
// initializing writes before the exposing store, so a reader that
// observes the node always observes it fully constructed.

// --------------------------------------------------------------------------
// Version chain publish
// --------------------------------------------------------------------------

// updateSerial prepends upd to the version chain at entry. old is the
// head the caller ran its conflict check against; if the head moved in
// the meantime the check is re-run against the new head before anything
// is published. The head is only ever replaced by compare-and-swap,
// never by a blind store.
//
// On success the superseded chain is handed to the obsolete check and
// any truncated suffix is returned for the caller to free.
//
// Thread-safety: This function is thread-safe; concurrent callers on the
// same entry serialize through the CAS.
func updateSerial(s *txn.Session, oracle txn.Oracle, gen uint32,
	entry *atomic.Pointer[internal.Update], old, upd *internal.Update) (*internal.Update, error) {

	if err := checkWriteGen(gen); err != nil {
		return nil, err
	}

	for {
		head := entry.Load()
		if head != old {
			// The chain grew since the caller's conflict check. The
			// check must hold against the actual head, not the one the
			// caller happened to observe.
			if err := updateCheck(s, oracle, head); err != nil {
				return nil, err
			}
			old = head
		}
		upd.SetNext(head)
		if entry.CompareAndSwap(head, upd) {
			break
		}
	}

	// Opportunistically truncate versions nothing can see anymore from
	// the chain the new head supersedes.
	return internal.ObsoleteCheck(upd.Next(), oracle.VisibleAll), nil
}

// updateCheck enforces the write-write conflict rule: the newest
// not-aborted version of the key must be visible to the writing session,
// otherwise a concurrent transaction got there first and the session has
// to roll back.
func updateCheck(s *txn.Session, oracle txn.Oracle, head *internal.Update) error {
	for upd := head; upd != nil; upd = upd.Next() {
		if upd.Txn() == txn.Aborted {
			continue
		}
		if !oracle.Visible(s, upd.Txn()) {
			return ErrConflict
		}
		break
	}
	return nil
}

// --------------------------------------------------------------------------
// Skip list publish
// --------------------------------------------------------------------------

// insertSerial splices ins into the insert list at the position captured
// in st. The position is first re-validated level by level: every
// recorded link cell must still reference the successor observed during
// the search, and a position at the end of a level must still agree with
// the tail pointer. Any mismatch aborts with a restart before anything
// becomes reachable.
//
// Publishing runs bottom-up. Level 0 is the exposing link: its CAS makes
// the node reachable, and if it fails the node is still private and the
// caller restarts. A lost CAS on a higher level means a racing insert
// landed next to us after validation; the node then simply stays at a
// lower effective depth, which readers tolerate, instead of corrupting
// the level.
//
// Thread-safety: This function is thread-safe and can be called
// concurrently for the same list.
func insertSerial(gen uint32, head *internal.InsertHead,
	st *internal.SkipStack, ins *internal.Insert, depth int) error {

	if err := checkWriteGen(gen); err != nil {
		return err
	}

	// Validate the captured position, with extra care at the end of each
	// level: retry if we race there.
	tails := [internal.SkipMaxDepth]*internal.Insert{}
	for i := 0; i < depth; i++ {
		if st.Entries[i] == nil || st.Entries[i].Load() != st.Next[i] {
			return ErrRestart
		}
		if st.Next[i] == nil {
			tails[i] = head.Tail(i)
			if tails[i] != nil && st.Entries[i] != tails[i].NextEntry(i) {
				return ErrRestart
			}
		}
	}

	// Point the new node's forward links at the observed successors
	// before any link to the node exists.
	for i := 0; i < depth; i++ {
		ins.NextEntry(i).Store(st.Next[i])
	}

	for i := 0; i < depth; i++ {
		if !st.Entries[i].CompareAndSwap(st.Next[i], ins) {
			if i == 0 {
				return ErrRestart
			}
			// Already reachable at the levels below; stop raising.
			return nil
		}
		if st.Next[i] == nil {
			head.CASTail(i, tails[i], ins)
		}
	}
	return nil
}
