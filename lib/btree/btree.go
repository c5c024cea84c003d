package btree

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/rowan/lib/cache"
	"github.com/ValentinKolb/rowan/lib/txn"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Tree.
type Options struct {
	// Accountant receives all footprint deltas. nil selects a fresh
	// cache.NewAccountant.
	Accountant cache.Accountant

	// Sweeper enables the background obsolete sweeper.
	Sweeper bool
}

// DefaultOptions returns the default Tree options.
func DefaultOptions() *Options {
	return &Options{
		Sweeper: true,
	}
}

// --------------------------------------------------------------------------
// Tree
// --------------------------------------------------------------------------

// Tree owns the in-memory mutation state of a set of row-store leaf
// pages and coordinates every insert, update and delete against them.
// Reads and writes from any number of sessions proceed concurrently
// without a page-level lock; conflicts surface as ErrConflict and
// positioning races retry internally.
//
// Thread-safety: all Tree methods are thread-safe unless noted
// otherwise.
type Tree struct {
	oracle txn.Oracle
	acct   cache.Accountant

	pages  *xsync.MapOf[uint64, *Page]
	nextID atomic.Uint64
	root   atomic.Pointer[Page]

	sweeps         *sweepQueue
	sweeperRunning atomic.Bool
	sweeperDone    sync.WaitGroup

	set       *metrics.Set
	conflicts *metrics.Counter
	restarts  *metrics.Counter
	reclaimed *metrics.Counter
}

// New creates a Tree backed by the given transaction oracle.
func New(oracle txn.Oracle, opts *Options) *Tree {
	if opts == nil {
		opts = DefaultOptions()
	}
	acct := opts.Accountant
	if acct == nil {
		acct = cache.NewAccountant()
	}

	t := &Tree{
		oracle: oracle,
		acct:   acct,
		pages:  xsync.NewMapOf[uint64, *Page](),
		sweeps: newSweepQueue(),
		set:    metrics.NewSet(),
	}
	t.conflicts = t.set.NewCounter(`rowan_btree_conflicts_total`)
	t.restarts = t.set.NewCounter(`rowan_btree_restarts_total`)
	t.reclaimed = t.set.NewCounter(`rowan_btree_reclaimed_bytes_total`)

	if opts.Sweeper {
		t.startSweeper()
	}
	return t
}

// Close stops the background sweeper. The tree stays readable.
func (t *Tree) Close() error {
	t.stopSweeper()
	return nil
}

// Accountant returns the cache accountant this tree reports to.
func (t *Tree) Accountant() cache.Accountant {
	return t.acct
}

// --------------------------------------------------------------------------
// Page management
// --------------------------------------------------------------------------

// NewLeafPage registers the mutation state for a leaf page holding the
// given sorted row image. The first page created becomes the root leaf
// the key-level convenience API operates on.
func (t *Tree) NewLeafPage(rows []Row) *Page {
	p := NewPage(t.nextID.Add(1), rows, t.acct)
	t.pages.Store(p.id, p)
	t.root.CompareAndSwap(nil, p)
	return p
}

// Root returns the root leaf page.
func (t *Tree) Root() *Page {
	return t.root.Load()
}

// DropPage removes a page being evicted from the tree and from cache
// accounting. The caller is responsible for excluding concurrent use of
// the page, typically via its admin lock.
func (t *Tree) DropPage(id uint64) {
	if _, ok := t.pages.LoadAndDelete(id); ok {
		t.acct.Forget(id)
	}
}

// --------------------------------------------------------------------------
// Key-level convenience API
// --------------------------------------------------------------------------

// Put writes value under key in the root leaf, inserting or updating as
// needed. Positioning races retry internally; ErrConflict is returned
// for the caller to roll back on.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Put(s *txn.Session, key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("empty key")
	}
	return t.modifyRetry(s, key, value, false)
}

// Remove writes a tombstone under key. Returns ErrNotFound if the key
// exists neither on the page nor in an insert list.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Remove(s *txn.Session, key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("empty key")
	}
	return t.modifyRetry(s, key, nil, true)
}

// modifyRetry runs the search + modify loop until the position holds
// still. Restarts are the engine's internal livelock-avoidance signal
// and never escape this loop. The one restart no retry can clear is a
// wrapped write generation, which is reported as a fatal error instead
// of spinning on it.
func (t *Tree) modifyRetry(s *txn.Session, key, value []byte, remove bool) error {
	p := t.root.Load()
	for {
		pos := p.Search(key)
		if remove && !pos.Match {
			return ErrNotFound
		}
		err := t.Modify(s, pos, value, remove)
		if !errors.Is(err, ErrRestart) {
			return err
		}
		if p.WriteGen() == math.MaxUint32 {
			return fmt.Errorf("page %d: write generation exhausted, page must be evicted and rebuilt", p.ID())
		}
		t.restarts.Inc()
	}
}

// WriteMetrics dumps the engine's metrics in Prometheus text format,
// followed by the accountant's if it exposes any.
func (t *Tree) WriteMetrics(w io.Writer) {
	t.set.WritePrometheus(w)
	if mw, ok := t.acct.(cache.MetricsWriter); ok {
		mw.WritePrometheus(w)
	}
}
