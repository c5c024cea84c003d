package btree

import (
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("btree")

// --------------------------------------------------------------------------
// Background obsolete sweeper
// --------------------------------------------------------------------------

// scheduleSweep queues a page for a background obsolete sweep after a
// successful mutation. Reclamation already happens opportunistically on
// the update path itself; the sweeper additionally covers chains the hot
// path never revisits, such as those of rolled-back or superseded
// insert-list keys.
func (t *Tree) scheduleSweep(p *Page) {
	if t.sweeperRunning.Load() {
		t.sweeps.push(p)
	}
}

// startSweeper launches the background sweeper. Does nothing if it is
// already running.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) startSweeper() {
	if t.sweeperRunning.CompareAndSwap(false, true) {
		t.sweeperDone.Add(1)
		go t.sweeper()
	}
}

// stopSweeper stops the background sweeper and waits for it to drain.
// The sweeper cannot be started again afterwards; direct SweepPage calls
// keep working.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) stopSweeper() {
	if t.sweeperRunning.CompareAndSwap(true, false) {
		t.sweeps.close()
		t.sweeperDone.Wait()
	}
}

// sweeper is the single consumer of the sweep queue.
func (t *Tree) sweeper() {
	defer t.sweeperDone.Done()
	for {
		p := t.sweeps.pop()
		if p == nil {
			return
		}
		if freed := t.SweepPage(p); freed > 0 {
			log.Debugf("swept page %d: reclaimed %d bytes", p.id, freed)
		}
	}
}
