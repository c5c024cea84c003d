package btree

import (
	"sync/atomic"

	"github.com/ValentinKolb/rowan/lib/btree/internal"
	"github.com/ValentinKolb/rowan/lib/txn"
)

// Modify applies one logical insert, update or delete at a previously
// searched position. A nil value (or remove=true) writes a tombstone.
//
// Existing keys (on-page rows and keys pending in an insert list) get a
// new version prepended to their chain after the write-write conflict
// check. New keys get a fresh skip list node owning a one-element chain,
// spliced in at the captured position.
//
// ErrConflict means the transaction must roll back. ErrRestart means the
// position went stale: the caller re-searches and calls again. On any
// error the transaction-side registration is revoked and nothing
// partially constructed remains reachable.
//
// Thread-safety: This method is thread-safe; many sessions modify the
// same page concurrently without blocking each other.
func (t *Tree) Modify(s *txn.Session, pos *Position, value []byte, remove bool) error {
	if remove {
		value = nil
	}
	p := pos.Page

	var err error
	if pos.Match {
		err = t.modifyExisting(s, pos, value)
	} else {
		err = t.insertNew(s, pos, value)
	}
	if err != nil {
		return err
	}

	p.markModified()
	t.scheduleSweep(p)
	return nil
}

// modifyExisting prepends a version to the chain of a key that already
// exists, either on a row slot or on a pending insert node.
func (t *Tree) modifyExisting(s *txn.Session, pos *Position, value []byte) error {
	p := pos.Page

	// The chain head cell lives in the per-slot array for rows, and in
	// the insert node itself for keys added in this in-memory lifetime.
	var entry *atomic.Pointer[internal.Update]
	if pos.Ins == nil {
		entry = p.updEntry(pos.Slot)
	} else {
		entry = pos.Ins.UpdEntry()
	}

	// Make sure the update can proceed before allocating anything.
	old := entry.Load()
	if err := updateCheck(s, t.oracle, old); err != nil {
		t.conflicts.Inc()
		return err
	}

	upd := internal.NewUpdate(value)
	if err := t.oracle.Register(s, upd); err != nil {
		return err
	}

	obsolete, err := updateSerial(s, t.oracle, pos.gen, entry, old, upd)
	if err != nil {
		// Never published: revoke the registration and let the
		// allocation go unreferenced.
		t.oracle.Revoke(s)
		if err == ErrConflict {
			t.conflicts.Inc()
		}
		return err
	}
	p.acct.Account(p.id, int64(upd.Size()))

	if obsolete != nil {
		t.freeObsolete(p, obsolete)
	}
	return nil
}

// insertNew splices a fresh skip list node carrying the first version of
// a brand-new key into the insert list at the captured position.
func (t *Tree) insertNew(s *txn.Session, pos *Position, value []byte) error {
	p := pos.Page

	head, installed := p.ensureInsertHead(p.insSlot(pos.Slot, pos.Smallest))
	if installed {
		// We won the install: the search predates the (empty) list, so
		// the position is every level of the fresh head.
		pos.Stack.SetHead(head)
	}
	pos.InsHead = head

	depth := internal.ChooseDepth(s.RNG())
	ins := internal.NewInsert(pos.Key, depth)
	upd := internal.NewUpdate(value)
	if err := t.oracle.Register(s, upd); err != nil {
		return err
	}
	ins.SetUpd(upd)

	if err := insertSerial(pos.gen, head, &pos.Stack, ins, depth); err != nil {
		t.oracle.Revoke(s)
		return err
	}
	p.acct.Account(p.id, int64(ins.Size()+upd.Size()))
	return nil
}
