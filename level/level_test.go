package level

import (
	"testing"

	"github.com/emberkv/emberkv/sstable"
)

func writeTable(t *testing.T, dir string, id uint64) *sstable.Reader {
	t.Helper()

	w, err := sstable.New(dir, id, 0, sstable.BloomSizeHint{Entries: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append([]byte("k"), []byte("v"), false); err != nil {
		t.Fatal(err)
	}
	meta, err := w.Seal()
	if err != nil {
		t.Fatal(err)
	}

	r, err := sstable.Load(metadataPath(meta), 2)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func metadataPath(m sstable.Metadata) string {
	return m.BasePath + "/metadata_" + sstable.FormatID(m.ID) + ".db"
}

func TestAddKeepsAscendingOrder(t *testing.T) {
	dir := t.TempDir()
	set := New()

	set.Add(writeTable(t, dir, 3))
	set.Add(writeTable(t, dir, 1))
	set.Add(writeTable(t, dir, 2))

	snap := set.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	// Snapshot is newest-first (§4.5/I6).
	want := []uint64{3, 2, 1}
	for i, id := range want {
		if snap[i].ID() != id {
			t.Fatalf("snapshot[%d].ID() = %d, want %d", i, snap[i].ID(), id)
		}
	}
}

func TestReplaceConsumedRemovesOnlyNamedTables(t *testing.T) {
	dir := t.TempDir()
	set := New()

	a := writeTable(t, dir, 1)
	b := writeTable(t, dir, 2)
	c := writeTable(t, dir, 3)
	set.Add(a)
	set.Add(b)
	set.Add(c)

	set.ReplaceConsumed([]*sstable.Reader{a, b})

	if set.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", set.Len())
	}
	snap := set.Snapshot()
	if snap[0].ID() != 3 {
		t.Fatalf("remaining table id = %d, want 3", snap[0].ID())
	}
}
