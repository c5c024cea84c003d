package btree

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/rowan/lib/txn"
)

// newTestTree creates a tree on a deterministic transaction manager. The
// background sweeper stays off so tests control reclamation explicitly.
func newTestTree(t *testing.T) (*Tree, *txn.Manager) {
	t.Helper()
	m := txn.NewManager(1)
	tree := New(m, &Options{Sweeper: false})
	t.Cleanup(func() { _ = tree.Close() })
	return tree, m
}

// imageRows builds a sorted on-page row image from "key=value" pairs.
func imageRows(pairs ...string) []Row {
	rows := make([]Row, 0, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		rows = append(rows, Row{Key: []byte(key), Value: []byte(value)})
	}
	return rows
}

// singlePut runs one committed Put in its own transaction.
func singlePut(t *testing.T, tree *Tree, m *txn.Manager, key, value string) {
	t.Helper()
	s := m.Begin()
	if err := tree.Put(s, []byte(key), []byte(value)); err != nil {
		t.Fatalf("put %q: %v", key, err)
	}
	if err := m.Commit(s); err != nil {
		t.Fatal(err)
	}
}

// singleRemove runs one committed Remove in its own transaction.
func singleRemove(t *testing.T, tree *Tree, m *txn.Manager, key string) {
	t.Helper()
	s := m.Begin()
	if err := tree.Remove(s, []byte(key)); err != nil {
		t.Fatalf("remove %q: %v", key, err)
	}
	if err := m.Commit(s); err != nil {
		t.Fatal(err)
	}
}

// readKey reads a key in a fresh transaction.
func readKey(t *testing.T, tree *Tree, m *txn.Manager, key string) (string, bool) {
	t.Helper()
	s := m.Begin()
	defer func() {
		if err := m.Commit(s); err != nil {
			t.Fatal(err)
		}
	}()
	value, ok := tree.Get(s, []byte(key))
	return string(value), ok
}

// collect drains an iterator into parallel key and value slices.
func collect(it *Iterator) (keys, values []string) {
	for it.Next() {
		keys = append(keys, string(it.Key()))
		values = append(values, string(it.Value()))
	}
	return keys, values
}
