package btree

import (
	"math"

	"github.com/ValentinKolb/rowan/lib/btree/internal"
)

// --------------------------------------------------------------------------
// Statistics helpers
// --------------------------------------------------------------------------

// Stats summarizes a sample of float64 values.
type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
}

// NewStats computes standard deviation, minimum, maximum and mean from a
// sample.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	min, max := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	return Stats{
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
		Min:          min,
		Max:          max,
		Mean:         mean,
	}
}

// --------------------------------------------------------------------------
// Engine statistics
// --------------------------------------------------------------------------

// PageStats describes the mutation state of one page.
type PageStats struct {
	PageID       uint64 `json:"page_id"`
	Slots        int    `json:"slots"`
	InsertedKeys int    `json:"inserted_keys"`
	Versions     int    `json:"versions"`
	Tombstones   int    `json:"tombstones"`
	LongestChain int    `json:"longest_chain"`
	Bytes        int64  `json:"bytes"`
}

// TreeStats aggregates the mutation state across all pages, with a
// distribution summary of version chain lengths for spotting hot keys
// the reclaimer is not keeping up with.
type TreeStats struct {
	Pages        int   `json:"pages"`
	Slots        int   `json:"slots"`
	InsertedKeys int   `json:"inserted_keys"`
	Versions     int   `json:"versions"`
	Tombstones   int   `json:"tombstones"`
	Bytes        int64 `json:"bytes"`
	ChainLengths Stats `json:"chain_lengths"`
}

// PageStats collects statistics for one page. The walk is lock-free, so
// numbers are a consistent-enough snapshot, not an exact point in time.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) PageStats(p *Page) (PageStats, []float64) {
	st := PageStats{
		PageID: p.id,
		Slots:  len(p.rows),
		Bytes:  t.acct.PageBytes(p.id),
	}
	var chains []float64

	countChain := func(head *internal.Update) {
		n := 0
		for upd := head; upd != nil; upd = upd.Next() {
			n++
			st.Versions++
			if upd.Deleted() {
				st.Tombstones++
			}
		}
		if n > 0 {
			chains = append(chains, float64(n))
			if n > st.LongestChain {
				st.LongestChain = n
			}
		}
	}

	countList := func(idx int) {
		head := p.insertHead(idx)
		if head == nil {
			return
		}
		for ins := head.First(); ins != nil; ins = ins.Next(0) {
			st.InsertedKeys++
			countChain(ins.Upd())
		}
	}

	countList(p.insSlot(0, true))
	for slot := 0; slot < len(p.rows); slot++ {
		countChain(p.updHead(slot))
		countList(p.insSlot(slot, false))
	}
	return st, chains
}

// Stats aggregates statistics across every page of the tree.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Tree) Stats() TreeStats {
	var (
		agg    TreeStats
		chains []float64
	)
	t.pages.Range(func(_ uint64, p *Page) bool {
		st, pageChains := t.PageStats(p)
		agg.Pages++
		agg.Slots += st.Slots
		agg.InsertedKeys += st.InsertedKeys
		agg.Versions += st.Versions
		agg.Tombstones += st.Tombstones
		chains = append(chains, pageChains...)
		return true
	})
	agg.Bytes = t.acct.Bytes()
	agg.ChainLengths = NewStats(chains)
	return agg
}
