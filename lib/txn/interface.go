package txn

import "math"

// --------------------------------------------------------------------------
// Transaction id constants
// --------------------------------------------------------------------------

const (
	// None marks data that predates transaction tracking, such as the
	// on-page image of a row. It is visible to every session.
	None uint64 = 0

	// Aborted marks a modification whose owning transaction rolled
	// back. It is visible to no session and can never become
	// visible-all.
	Aborted uint64 = math.MaxUint64
)

// --------------------------------------------------------------------------
// Oracle interface
// --------------------------------------------------------------------------

// Modification is one engine-side write registered with its owning
// transaction. The oracle stamps it with the transaction id on
// registration and re-stamps it Aborted on rollback.
type Modification interface {
	Txn() uint64
	SetTxn(id uint64)
}

// Oracle answers the visibility questions the mutation engine asks and
// tracks which modifications belong to which transaction.
//
// Implementations must be safe for concurrent use by many sessions.
type Oracle interface {
	// Visible reports whether a write stamped with id is visible to s.
	Visible(s *Session, id uint64) bool

	// VisibleAll reports whether a write stamped with id is visible to
	// every currently active session, meaning it is safely in the past
	// and versions it shadows are eligible for reclamation.
	VisibleAll(id uint64) bool

	// Register stamps mod with s's transaction id and records it so
	// rollback can abort it. The registration is revoked with Revoke if
	// the write is never published.
	Register(s *Session, mod Modification) error

	// Revoke undoes the most recent registration for s. It is called on
	// the error unwind path of a mutation whose modification was never
	// made reachable.
	Revoke(s *Session)
}
