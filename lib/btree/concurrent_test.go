package btree

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/rowan/lib/btree/internal"
	"github.com/ValentinKolb/rowan/lib/txn"
)

func TestConcurrentDistinctInserts(t *testing.T) {
	tree, m := newTestTree(t)
	p := tree.NewLeafPage(nil)

	const (
		workers       = 8
		keysPerWorker = 50
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			s := m.Begin()
			for i := 0; i < keysPerWorker; i++ {
				key := fmt.Sprintf("key-%02d-%03d", w, i)
				if err := tree.Put(s, []byte(key), []byte("v")); err != nil {
					t.Errorf("put %q: %v", key, err)
					return
				}
			}
			if err := m.Commit(s); err != nil {
				t.Error(err)
			}
		}(w)
	}
	wg.Wait()
	if t.Failed() {
		return
	}

	s := m.Begin()
	keys, _ := collect(tree.NewIterator(s, nil))
	if err := m.Commit(s); err != nil {
		t.Fatal(err)
	}

	if len(keys) != workers*keysPerWorker {
		t.Fatalf("iterator yields %d keys, want %d", len(keys), workers*keysPerWorker)
	}
	if !sort.StringsAreSorted(keys) {
		t.Error("iterator keys out of order")
	}

	// Every node must be reachable at level 0 of the single insert list.
	head := p.insertHead(p.insSlot(0, true))
	if head == nil {
		t.Fatal("insert list head missing")
	}
	n := 0
	for ins := head.First(); ins != nil; ins = ins.Next(0) {
		n++
	}
	if n != workers*keysPerWorker {
		t.Errorf("level 0 reaches %d nodes, want %d", n, workers*keysPerWorker)
	}
}

func TestConcurrentSameKeyInsert(t *testing.T) {
	tree, m := newTestTree(t)
	tree.NewLeafPage(nil)

	// All sessions begin before any write, so every pair is mutually
	// concurrent and at most one write can go through.
	const contenders = 8
	sessions := make([]*txn.Session, contenders)
	for i := range sessions {
		sessions[i] = m.Begin()
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		winner    atomic.Int32
	)
	winner.Store(-1)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := tree.Put(sessions[i], []byte("contested"), []byte(fmt.Sprintf("v%d", i)))
			switch {
			case err == nil:
				successes.Add(1)
				winner.Store(int32(i))
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("contender %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != 1 || conflicts.Load() != contenders-1 {
		t.Fatalf("%d successes and %d conflicts, want 1 and %d",
			successes.Load(), conflicts.Load(), contenders-1)
	}

	for i, s := range sessions {
		var err error
		if int32(i) == winner.Load() {
			err = m.Commit(s)
		} else {
			err = m.Rollback(s)
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	want := fmt.Sprintf("v%d", winner.Load())
	if value, ok := readKey(t, tree, m, "contested"); !ok || value != want {
		t.Errorf("contested key reads %q/%v, want %q", value, ok, want)
	}
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	tree, m := newTestTree(t)
	tree.NewLeafPage(imageRows("stable=base"))

	var (
		wg   sync.WaitGroup
		stop atomic.Bool
	)

	// Readers hammer the page while a writer churns versions. Every read
	// must yield a committed value, never a torn or uncommitted one.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				s := m.Begin()
				if value, ok := tree.Get(s, []byte("stable")); !ok || len(value) == 0 {
					t.Errorf("read %q/%v", value, ok)
				}
				if err := m.Commit(s); err != nil {
					t.Error(err)
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		s := m.Begin()
		err := tree.Put(s, []byte("stable"), []byte(fmt.Sprintf("gen-%d", i)))
		if err != nil {
			if !errors.Is(err, ErrConflict) {
				t.Errorf("writer: %v", err)
			}
			if err := m.Rollback(s); err != nil {
				t.Error(err)
			}
			continue
		}
		if err := m.Commit(s); err != nil {
			t.Error(err)
		}
	}
	stop.Store(true)
	wg.Wait()
}

func TestLazySlotArrayInstallRace(t *testing.T) {
	tree, _ := newTestTree(t)
	p := tree.NewLeafPage(imageRows("a=1", "b=2"))

	const goroutines = 16
	var (
		wg      sync.WaitGroup
		entries [goroutines]*atomic.Pointer[internal.Update]
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			entries[g] = p.updEntry(1)
		}(g)
	}
	wg.Wait()

	for g := 1; g < goroutines; g++ {
		if entries[g] != entries[0] {
			t.Fatal("racing installers got different slot arrays")
		}
	}

	// Exactly one install may be accounted, no matter how many raced.
	if want := int64(p.Rows()) * ptrSize; tree.Accountant().PageBytes(p.ID()) != want {
		t.Errorf("array accounted %d bytes, want %d",
			tree.Accountant().PageBytes(p.ID()), want)
	}
}

func TestLazyInsertHeadInstallRace(t *testing.T) {
	tree, _ := newTestTree(t)
	p := tree.NewLeafPage(imageRows("a=1"))

	const goroutines = 16
	var (
		wg        sync.WaitGroup
		heads     [goroutines]*internal.InsertHead
		installed atomic.Int32
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			head, won := p.ensureInsertHead(p.insSlot(0, false))
			heads[g] = head
			if won {
				installed.Add(1)
			}
		}(g)
	}
	wg.Wait()

	if installed.Load() != 1 {
		t.Errorf("%d goroutines claim the install, want 1", installed.Load())
	}
	for g := 1; g < goroutines; g++ {
		if heads[g] != heads[0] {
			t.Fatal("racing installers got different list heads")
		}
	}
}
