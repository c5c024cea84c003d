package txn

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session is one transaction's handle on the Manager. It carries the
// transaction id, the snapshot taken at Begin, the modifications
// registered so far, and a private random source derived from the
// manager seed so skip list depth choices stay deterministic under a
// fixed seed.
//
// A Session is owned by a single goroutine; its methods are not safe for
// concurrent use. Different sessions are fully independent.
type Session struct {
	id       uint64
	snapMin  uint64              // oldest id this session considers concurrent
	snapshot map[uint64]struct{} // ids active at Begin
	mods     []Modification
	rng      *rand.Rand
	mgr      *Manager
	finished bool
}

// ID returns the session's transaction id.
func (s *Session) ID() uint64 {
	return s.id
}

// RNG returns the session-private random source.
func (s *Session) RNG() *rand.Rand {
	return s.rng
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager is a local transaction oracle: it assigns ids from a global
// clock, tracks active sessions in a concurrent map, and computes
// snapshot visibility from that state.
//
// Thread-safety: all Manager methods are thread-safe; see Session for the
// per-session ownership rule.
type Manager struct {
	clock  atomic.Uint64
	active *xsync.MapOf[uint64, *Session]
	seed   uint64

	// beginMu makes id assignment and registration in active one step.
	// Without it a session could draw its id and get preempted before
	// registering, and a later Begin would snapshot without it. Begin is
	// not on the mutation hot path.
	beginMu sync.Mutex
}

// NewManager creates a transaction manager. A zero seed selects a random
// one; a fixed seed makes every session's random source deterministic.
func NewManager(seed uint64) *Manager {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Manager{
		active: xsync.NewMapOf[uint64, *Session](),
		seed:   seed,
	}
}

// Begin starts a transaction: assigns the next id and snapshots the ids
// of every session active at this instant.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Manager) Begin() *Session {
	s := &Session{
		mgr:      m,
		snapshot: make(map[uint64]struct{}),
	}
	// Draw the id and register in one step: every session with a smaller
	// id is in the active map before we scan it, so the snapshot cannot
	// miss a concurrent older session. The scan itself runs unlocked; a
	// session that commits between registration and the scan may still
	// land in the snapshot, which is correct: it was not committed when
	// we began.
	m.beginMu.Lock()
	s.id = m.clock.Add(1)
	m.active.Store(s.id, s)
	m.beginMu.Unlock()

	s.snapMin = s.id
	m.active.Range(func(id uint64, _ *Session) bool {
		if id != s.id && id < s.id {
			s.snapshot[id] = struct{}{}
			if id < s.snapMin {
				s.snapMin = id
			}
		}
		return true
	})
	s.rng = rand.New(rand.NewSource(int64(m.seed ^ s.id)))
	return s
}

// Commit finishes the transaction, making its writes visible to every
// session that begins afterwards.
func (m *Manager) Commit(s *Session) error {
	if s.finished {
		return fmt.Errorf("transaction %d already finished", s.id)
	}
	s.finished = true
	s.mods = nil
	m.active.Delete(s.id)
	return nil
}

// Rollback finishes the transaction and marks every registered
// modification Aborted, in reverse registration order. Published versions
// stay linked but become invisible to all sessions; the obsolete
// reclaimer removes them once superseded.
func (m *Manager) Rollback(s *Session) error {
	if s.finished {
		return fmt.Errorf("transaction %d already finished", s.id)
	}
	s.finished = true
	for i := len(s.mods) - 1; i >= 0; i-- {
		s.mods[i].SetTxn(Aborted)
	}
	s.mods = nil
	m.active.Delete(s.id)
	return nil
}

// --------------------------------------------------------------------------
// Oracle implementation
// --------------------------------------------------------------------------

// Visible reports whether a write stamped with id is visible to s under
// snapshot isolation: a session sees its own writes and everything
// committed before it began, nothing else.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Manager) Visible(s *Session, id uint64) bool {
	switch id {
	case None:
		return true
	case Aborted:
		return false
	case s.id:
		return true
	}
	if id > s.id {
		return false // assigned after we began
	}
	_, concurrent := s.snapshot[id]
	return !concurrent
}

// VisibleAll reports whether a write stamped with id is visible to every
// active session. That holds once id precedes the oldest id any active
// session still considers concurrent.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Manager) VisibleAll(id uint64) bool {
	if id == None {
		return true
	}
	return id < m.oldest()
}

// oldest computes the oldest id any active session could still consider
// concurrent. With no active sessions every assigned id qualifies.
func (m *Manager) oldest() uint64 {
	oldest := m.clock.Load() + 1
	m.active.Range(func(_ uint64, s *Session) bool {
		if s.snapMin < oldest {
			oldest = s.snapMin
		}
		return true
	})
	return oldest
}

// Register stamps mod with s's id and records it for rollback.
func (m *Manager) Register(s *Session, mod Modification) error {
	if s.finished {
		return fmt.Errorf("transaction %d already finished", s.id)
	}
	mod.SetTxn(s.id)
	s.mods = append(s.mods, mod)
	return nil
}

// Revoke drops the most recent registration for s. The modification was
// never published, so there is nothing to abort.
func (m *Manager) Revoke(s *Session) {
	if n := len(s.mods); n > 0 {
		s.mods = s.mods[:n-1]
	}
}

// ActiveCount returns the number of currently active sessions.
func (m *Manager) ActiveCount() int {
	return m.active.Size()
}
