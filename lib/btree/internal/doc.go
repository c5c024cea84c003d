// Package internal provides the lock-free node structures that back the
// in-memory mutation state of a row-store leaf page: the newest-first
// update chain holding one version per write, and the multi-level insert
// skip list holding keys that do not exist as on-page slots.
//
// All structures in this package are published with the same discipline:
// a new node's outgoing links are fully initialized first, then the node
// is made reachable through a single atomic store of the one incoming
// link that exposes it. Readers therefore never observe a partially
// constructed node, and they never take a lock. Races between writers
// are resolved through compare-and-swap: exactly one writer wins, the
// losers either retry against the new state or discard their work.
//
// Memory ownership follows the publish step. A node belongs to the
// allocating goroutine until it is published; from that instant it
// belongs to the structure and is only ever detached again by the
// obsolete-update truncation in ObsoleteCheck. Unpublished nodes are
// simply dropped and collected by the Go runtime.
package internal
