// Package btree implements the in-memory mutation engine of a
// row-oriented B-tree storage layer: the code path that applies inserts,
// updates and deletes to a leaf page held in memory, makes those
// mutations visible to concurrent readers without blocking them, and
// reclaims old versions once no active transaction can observe them.
//
// The package focuses on:
//   - Lock-free concurrent access: many sessions mutate one page at the
//     same time with no page-level mutex; writers race through
//     compare-and-swap and resolve collisions by restarting, readers
//     walk the structures with plain atomic loads
//   - Multi-version concurrency control: every write prepends a version
//     to a per-key chain, so readers see a consistent snapshot chosen by
//     transaction visibility instead of locking writers out
//   - Visibility-gated reclamation: versions are freed only once the
//     transaction oracle proves no active transaction can reach them
//   - Accurate cache accounting of every byte the mutation state
//     allocates and reclaims
//
// Key components:
//
//   - Page: the mutation state of one leaf page. Two per-slot arrays are
//     installed lazily by the first mutator that needs them, through a
//     CAS race in which exactly one allocation survives. One array maps
//     each on-page row to its version chain; the other maps each gap
//     between rows (plus a sentinel position for keys sorting before
//     every row) to an insert skip list of brand-new keys.
//
//   - Version chains (internal.Update): newest-first singly linked lists,
//     one per key. A write links its version behind the current head and
//     publishes it with a CAS; if the head moved since the writer's
//     conflict check, the check is re-run against the new head before
//     anything becomes reachable. A write by a transaction that cannot
//     see the newest version fails with ErrConflict and rolls back.
//
//   - Insert skip lists (internal.Insert): probabilistic multi-level
//     lists holding keys that do not exist as on-page slots, giving
//     expected O(log n) positioning. Splice positions are captured
//     optimistically during the search and re-validated level by level
//     at publish time; any mismatch restarts the operation internally.
//
//   - Obsolete reclaimer: walks a chain for the first version every
//     active transaction can see, truncates everything after it with a
//     single CAS, and reports the freed bytes to the cache accountant.
//     It runs opportunistically after updates, from the background
//     sweeper, and on demand for eviction preparation.
//
//   - Tree: the container wiring pages to the transaction oracle, the
//     cache accountant, the background sweeper and the engine metrics,
//     with a key-level Put/Get/Remove convenience API that hides the
//     internal restart loop.
//
// Publish discipline: every structure in this package is made reachable
// the same way. The new node's outgoing links are fully initialized
// first, then a single atomic store of the one incoming link exposes it.
// A reader that can reach a node therefore always finds it fully
// constructed. Once that exposing store has executed the mutation is
// permanent in memory: it can only be superseded by a newer version,
// never unlinked.
//
// Error model: ErrConflict is the only error a caller is expected to
// handle, by rolling back the transaction. ErrRestart never escapes the
// key-level API; callers of the lower-level Search/Modify pair re-search
// and retry when they see it. Everything else is fatal to the calling
// operation and leaves no partially constructed state reachable.
package btree
