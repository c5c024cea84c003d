// Package txn provides the transaction oracle consulted by the page
// mutation engine: snapshot-based visibility of one transaction's writes
// to another, the visible-to-all-active predicate that gates obsolete
// version reclamation, and the registration of modifications with their
// owning transaction so rollback can undo them logically.
//
// The engine itself only depends on the Oracle interface. The Manager in
// this package is a complete local implementation suitable for embedding
// and for tests; callers integrating the engine into a larger system can
// substitute their own id assignment and visibility computation.
//
// Visibility model:
//
//   - Every session is assigned a monotonically increasing id at Begin
//     together with a snapshot of the ids active at that instant.
//   - A write by id X is visible to session S iff X is S itself, or X
//     was already committed when S began (neither in S's snapshot nor
//     assigned after S's id).
//   - A write is visible-all once its id precedes the oldest id any
//     active session could still consider concurrent. Only such writes
//     may shadow versions eligible for reclamation.
//   - Rollback marks every registered modification with the Aborted id,
//     making it invisible to all sessions. Published versions are never
//     unlinked by rollback; they are superseded logically and reclaimed
//     later like any other obsolete version.
package txn
