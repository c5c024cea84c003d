package btree

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// sweepNode is a single element in the sweep queue.
type sweepNode struct {
	page *Page
	next atomic.Pointer[sweepNode]
}

// sweepQueue is a lock-free multi-producer single-consumer queue of
// pages awaiting an obsolete sweep. Mutating goroutines push after every
// successful modify; the background sweeper is the single consumer.
//
// Pushes coalesce: a page already waiting is not enqueued twice, so a
// burst of mutations to one page costs one sweep. Ordering between
// concurrent producers is whatever the CAS race yields, which is fine
// for sweeping.
type sweepQueue struct {
	head   atomic.Pointer[sweepNode]
	tail   atomic.Pointer[sweepNode]
	queued *xsync.MapOf[uint64, struct{}]
	closed atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

func newSweepQueue() *sweepQueue {
	sentinel := &sweepNode{}
	q := &sweepQueue{
		queued: xsync.NewMapOf[uint64, struct{}](),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// push enqueues a page for sweeping. Returns false if the queue is
// closed or the page is already waiting.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *sweepQueue) push(p *Page) bool {
	if q.closed.Load() {
		return false
	}
	if _, loaded := q.queued.LoadOrStore(p.id, struct{}{}); loaded {
		return false // already waiting, coalesce
	}

	n := &sweepNode{page: p}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// Tail may lag behind; another producer helps it along.
				q.tail.CompareAndSwap(tail, n)
				// Signaled under the mutex so the wakeup cannot slip
				// between the consumer's check and its wait.
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// pop dequeues the next page, blocking until one is available or the
// queue is closed. Returns nil once closed and drained.
//
// Thread-safety: pop must only be called by the single consumer.
func (q *sweepQueue) pop() *Page {
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next != nil {
			q.head.Store(next)
			p := next.page
			next.page = nil // help the go gc
			q.queued.Delete(p.id)
			return p
		}
		if q.closed.Load() {
			return nil
		}
		q.mu.Lock()
		head = q.head.Load()
		if head.next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// close stops the queue; pending pages are still delivered to the
// consumer before pop starts returning nil.
func (q *sweepQueue) close() {
	// Taken so the store cannot slip between the consumer's check and
	// its wait, which would lose the wakeup.
	q.mu.Lock()
	q.closed.Store(true)
	q.cond.Signal()
	q.mu.Unlock()
}
