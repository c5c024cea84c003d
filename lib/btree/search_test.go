package btree

import (
	"testing"
)

func TestSearchOnPageRows(t *testing.T) {
	tree, _ := newTestTree(t)
	p := tree.NewLeafPage(imageRows("b=1", "d=2"))

	for _, tc := range []struct {
		key      string
		match    bool
		slot     int
		smallest bool
	}{
		{"b", true, 0, false},
		{"d", true, 1, false},
		{"a", false, 0, true},  // before every row
		{"c", false, 0, false}, // gap after "b"
		{"e", false, 1, false}, // gap after "d"
	} {
		pos := p.Search([]byte(tc.key))
		if pos.Match != tc.match || pos.Slot != tc.slot || pos.Smallest != tc.smallest {
			t.Errorf("search %q: match=%v slot=%d smallest=%v, want match=%v slot=%d smallest=%v",
				tc.key, pos.Match, pos.Slot, pos.Smallest, tc.match, tc.slot, tc.smallest)
		}
		if pos.Match && pos.Ins != nil {
			t.Errorf("search %q: row match reported an insert node", tc.key)
		}
	}
}

func TestSearchFindsInsertedKey(t *testing.T) {
	tree, m := newTestTree(t)
	p := tree.NewLeafPage(imageRows("b=1", "d=2"))

	singlePut(t, tree, m, "c", "new")

	pos := p.Search([]byte("c"))
	if !pos.Match || pos.Ins == nil {
		t.Fatalf("inserted key not found: match=%v ins=%v", pos.Match, pos.Ins)
	}
	if string(pos.Ins.Key()) != "c" {
		t.Errorf("matched node holds key %q", pos.Ins.Key())
	}
	if pos.Slot != 0 || pos.Smallest {
		t.Errorf("inserted key positioned at slot=%d smallest=%v", pos.Slot, pos.Smallest)
	}
}

func TestSearchCapturesGeneration(t *testing.T) {
	tree, m := newTestTree(t)
	p := tree.NewLeafPage(imageRows("b=1"))

	before := p.WriteGen()
	pos := p.Search([]byte("b"))
	if pos.gen != before {
		t.Errorf("position captured generation %d, page was at %d", pos.gen, before)
	}

	singlePut(t, tree, m, "b", "updated")
	if p.WriteGen() != before+1 {
		t.Errorf("write generation did not advance: %d", p.WriteGen())
	}
}

func TestSearchEmptyPage(t *testing.T) {
	tree, _ := newTestTree(t)
	p := tree.NewLeafPage(nil)

	pos := p.Search([]byte("anything"))
	if pos.Match {
		t.Error("match on an empty page")
	}
	if !pos.Smallest {
		t.Error("every key precedes an empty row image")
	}
}
