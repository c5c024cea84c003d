package txn

import (
	"sync"
	"testing"
)

// stampable is a minimal Modification for manager tests.
type stampable struct {
	id uint64
}

func (s *stampable) Txn() uint64      { return s.id }
func (s *stampable) SetTxn(id uint64) { s.id = id }

func TestVisibilityOwnWrites(t *testing.T) {
	m := NewManager(1)
	s := m.Begin()

	mod := &stampable{}
	if err := m.Register(s, mod); err != nil {
		t.Fatal(err)
	}
	if mod.Txn() != s.ID() {
		t.Fatalf("registered modification stamped %d, want %d", mod.Txn(), s.ID())
	}
	if !m.Visible(s, mod.Txn()) {
		t.Error("session cannot see its own write")
	}
}

func TestVisibilitySentinels(t *testing.T) {
	m := NewManager(1)
	s := m.Begin()

	if !m.Visible(s, None) {
		t.Error("unstamped data must be visible to everyone")
	}
	if m.Visible(s, Aborted) {
		t.Error("aborted data must be invisible to everyone")
	}
	if !m.VisibleAll(None) {
		t.Error("unstamped data must be visible-all")
	}
	if m.VisibleAll(Aborted) {
		t.Error("aborted data must never be visible-all")
	}
}

func TestVisibilitySnapshot(t *testing.T) {
	m := NewManager(1)

	writer := m.Begin()
	concurrent := m.Begin() // began while writer active
	if err := m.Commit(writer); err != nil {
		t.Fatal(err)
	}
	later := m.Begin() // began after writer committed

	if m.Visible(concurrent, writer.ID()) {
		t.Error("write visible to a session that began while the writer was active")
	}
	if !m.Visible(later, writer.ID()) {
		t.Error("committed write invisible to a session that began afterwards")
	}
	if m.Visible(concurrent, later.ID()) {
		t.Error("write by a younger session visible to an older one")
	}
}

func TestVisibleAllTracksOldestSnapshot(t *testing.T) {
	m := NewManager(1)

	writer := m.Begin()
	reader := m.Begin()
	if err := m.Commit(writer); err != nil {
		t.Fatal(err)
	}

	// reader began while writer was active, so writer's id stays pinned.
	if m.VisibleAll(writer.ID()) {
		t.Error("write visible-all while a session that cannot see it is active")
	}
	if err := m.Commit(reader); err != nil {
		t.Fatal(err)
	}
	if !m.VisibleAll(writer.ID()) {
		t.Error("write not visible-all after the last pinning session finished")
	}
}

func TestVisibleAllNoActiveSessions(t *testing.T) {
	m := NewManager(1)
	s := m.Begin()
	id := s.ID()
	if err := m.Commit(s); err != nil {
		t.Fatal(err)
	}
	if !m.VisibleAll(id) {
		t.Error("committed write not visible-all with no sessions active")
	}
}

func TestRollbackAbortsInReverse(t *testing.T) {
	m := NewManager(1)
	s := m.Begin()

	mods := []*stampable{{}, {}, {}}
	for _, mod := range mods {
		if err := m.Register(s, mod); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Rollback(s); err != nil {
		t.Fatal(err)
	}
	for i, mod := range mods {
		if mod.Txn() != Aborted {
			t.Errorf("modification %d not aborted: txn=%d", i, mod.Txn())
		}
	}
	if m.ActiveCount() != 0 {
		t.Errorf("session still active after rollback")
	}
}

func TestRevokeDropsUnpublished(t *testing.T) {
	m := NewManager(1)
	s := m.Begin()

	kept := &stampable{}
	dropped := &stampable{}
	if err := m.Register(s, kept); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(s, dropped); err != nil {
		t.Fatal(err)
	}
	m.Revoke(s)

	if err := m.Rollback(s); err != nil {
		t.Fatal(err)
	}
	if kept.Txn() != Aborted {
		t.Error("registered modification not aborted on rollback")
	}
	if dropped.Txn() == Aborted {
		t.Error("revoked modification was aborted on rollback")
	}
}

func TestFinishedSessionRejected(t *testing.T) {
	m := NewManager(1)
	s := m.Begin()
	if err := m.Commit(s); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(s); err == nil {
		t.Error("double commit accepted")
	}
	if err := m.Rollback(s); err == nil {
		t.Error("rollback after commit accepted")
	}
	if err := m.Register(s, &stampable{}); err == nil {
		t.Error("register on finished session accepted")
	}
}

func TestDeterministicRNG(t *testing.T) {
	a := NewManager(99).Begin()
	b := NewManager(99).Begin()
	for i := 0; i < 100; i++ {
		if av, bv := a.RNG().Uint32(), b.RNG().Uint32(); av != bv {
			t.Fatalf("same seed diverged at draw %d", i)
		}
	}
}

func TestConcurrentBeginsIsolateEachOther(t *testing.T) {
	m := NewManager(1)

	// All sessions begin concurrently and stay active, so every pair is
	// mutually concurrent: a newer session must never see an older one,
	// no matter how the begins interleaved, and no active id may become
	// visible-all.
	const (
		rounds   = 200
		sessions = 16
	)
	for round := 0; round < rounds; round++ {
		var (
			wg    sync.WaitGroup
			batch [sessions]*Session
		)
		for i := 0; i < sessions; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				batch[i] = m.Begin()
			}(i)
		}
		wg.Wait()

		for _, newer := range batch {
			for _, older := range batch {
				if older.ID() >= newer.ID() {
					continue
				}
				if m.Visible(newer, older.ID()) {
					t.Fatalf("round %d: session %d sees active session %d",
						round, newer.ID(), older.ID())
				}
			}
			if m.VisibleAll(newer.ID()) {
				t.Fatalf("round %d: active session %d is visible-all", round, newer.ID())
			}
		}
		for _, s := range batch {
			if err := m.Commit(s); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestConcurrentBegins(t *testing.T) {
	m := NewManager(1)

	const sessions = 64
	var wg sync.WaitGroup
	ids := make([]uint64, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := m.Begin()
			ids[i] = s.ID()
			if err := m.Commit(s); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, sessions)
	for _, id := range ids {
		if id == 0 || seen[id] {
			t.Fatalf("duplicate or zero transaction id %d", id)
		}
		seen[id] = true
	}
	if m.ActiveCount() != 0 {
		t.Errorf("%d sessions still active", m.ActiveCount())
	}
}
