package cache

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Accountant interface
// --------------------------------------------------------------------------

// Accountant tracks the in-memory footprint of page mutation state. The
// engine reports a positive delta whenever a structure is published and a
// negative delta whenever the obsolete reclaimer frees versions.
//
// Implementations must be safe for concurrent use from many mutating
// goroutines.
type Accountant interface {
	// Account applies a signed byte delta to the given page's footprint.
	Account(pageID uint64, delta int64)

	// PageBytes returns the current footprint of one page.
	PageBytes(pageID uint64) int64

	// Bytes returns the total footprint across all pages.
	Bytes() int64

	// Forget drops the per-page counter of a page being destroyed. The
	// page's remaining footprint is removed from the total.
	Forget(pageID uint64)
}

// --------------------------------------------------------------------------
// Implementation
// --------------------------------------------------------------------------

// accountant implements Accountant with striped counters per page plus a
// striped grand total, and exposes both through a private metrics set.
type accountant struct {
	total *xsync.Counter
	freed *xsync.Counter                      // monotonically increasing reclaimed bytes
	pages *xsync.MapOf[uint64, *xsync.Counter]
	set   *metrics.Set
}

// NewAccountant creates an accountant with its own metrics set, so
// multiple instances (one per tree, or per test) never collide on metric
// registration.
func NewAccountant() Accountant {
	a := &accountant{
		total: xsync.NewCounter(),
		freed: xsync.NewCounter(),
		pages: xsync.NewMapOf[uint64, *xsync.Counter](),
		set:   metrics.NewSet(),
	}
	a.set.NewGauge(`rowan_cache_bytes`, func() float64 {
		return float64(a.total.Value())
	})
	a.set.NewGauge(`rowan_cache_reclaimed_bytes_total`, func() float64 {
		return float64(a.freed.Value())
	})
	a.set.NewGauge(`rowan_cache_pages`, func() float64 {
		return float64(a.pages.Size())
	})
	return a
}

// Account applies a signed byte delta to one page and to the total.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (a *accountant) Account(pageID uint64, delta int64) {
	if delta == 0 {
		return
	}
	counter, ok := a.pages.Load(pageID)
	if !ok {
		counter, _ = a.pages.LoadOrStore(pageID, xsync.NewCounter())
	}
	counter.Add(delta)
	a.total.Add(delta)
	if delta < 0 {
		a.freed.Add(-delta)
	}
}

// PageBytes returns the current footprint of one page.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (a *accountant) PageBytes(pageID uint64) int64 {
	if counter, ok := a.pages.Load(pageID); ok {
		return counter.Value()
	}
	return 0
}

// Bytes returns the total footprint across all pages.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (a *accountant) Bytes() int64 {
	return a.total.Value()
}

// Forget removes a destroyed page from the accounting.
func (a *accountant) Forget(pageID uint64) {
	if counter, ok := a.pages.LoadAndDelete(pageID); ok {
		a.total.Add(-counter.Value())
	}
}

// WritePrometheus dumps the accountant's metrics in Prometheus text
// format. The accountant returned by NewAccountant implements this
// beyond the Accountant interface.
func (a *accountant) WritePrometheus(w io.Writer) {
	a.set.WritePrometheus(w)
}

// MetricsWriter is implemented by accountants that can expose their
// state as Prometheus metrics.
type MetricsWriter interface {
	WritePrometheus(w io.Writer)
}
