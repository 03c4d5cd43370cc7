package sparseindex

import (
	"path/filepath"
	"testing"
)

func buildIndex() *Index {
	idx := New()
	idx.Append([]byte("apple"), 0)
	idx.Append([]byte("mango"), 120)
	idx.Append([]byte("peach"), 260)
	return idx
}

func TestGetExactMatch(t *testing.T) {
	idx := buildIndex()

	off, ok := idx.Get([]byte("mango"))
	if !ok || off != 120 {
		t.Fatalf("Get(mango) = (%d, %v), want (120, true)", off, ok)
	}

	_, ok = idx.Get([]byte("banana"))
	if ok {
		t.Fatal("Get(banana) should miss, banana was never indexed")
	}
}

func TestFloor(t *testing.T) {
	idx := buildIndex()

	cases := []struct {
		probe      string
		wantOffset uint64
		wantOK     bool
	}{
		{"apple", 0, true},
		{"avocado", 0, true},
		{"mango", 120, true},
		{"orange", 120, true},
		{"zebra", 260, true},
		{"aardvark", 0, false},
	}

	for _, c := range cases {
		off, ok := idx.Floor([]byte(c.probe))
		if ok != c.wantOK || (ok && off != c.wantOffset) {
			t.Errorf("Floor(%q) = (%d, %v), want (%d, %v)", c.probe, off, ok, c.wantOffset, c.wantOK)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := buildIndex()

	path := filepath.Join(t.TempDir(), "index.db")
	if err := Save(path, idx); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Len() != idx.Len() {
		t.Fatalf("Len() after load = %d, want %d", loaded.Len(), idx.Len())
	}

	off, ok := loaded.Get([]byte("peach"))
	if !ok || off != 260 {
		t.Fatalf("loaded Get(peach) = (%d, %v), want (260, true)", off, ok)
	}
}

func TestCeiling(t *testing.T) {
	idx := buildIndex()

	cases := []struct {
		probe      string
		wantOffset uint64
		wantOK     bool
	}{
		{"aardvark", 0, true},
		{"apple", 120, true},
		{"avocado", 120, true},
		{"orange", 260, true},
		{"peach", 0, false},
		{"zebra", 0, false},
	}

	for _, c := range cases {
		off, ok := idx.Ceiling([]byte(c.probe))
		if ok != c.wantOK || (ok && off != c.wantOffset) {
			t.Errorf("Ceiling(%q) = (%d, %v), want (%d, %v)", c.probe, off, ok, c.wantOffset, c.wantOK)
		}
	}
}

func TestEmptyIndex(t *testing.T) {
	idx := New()

	if _, ok := idx.Get([]byte("x")); ok {
		t.Fatal("Get on empty index should miss")
	}
	if _, ok := idx.Floor([]byte("x")); ok {
		t.Fatal("Floor on empty index should miss")
	}
}
