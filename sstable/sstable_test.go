package sstable

import (
	"errors"
	"fmt"
	"testing"
)

func writeTable(t *testing.T, dir string, id uint64, entries []struct {
	key, value string
	tombstone  bool
}) Metadata {
	t.Helper()

	w, err := New(dir, id, 0, BloomSizeHint{Entries: len(entries)})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if err := w.Append([]byte(e.key), []byte(e.value), e.tombstone); err != nil {
			t.Fatal(err)
		}
	}
	meta, err := w.Seal()
	if err != nil {
		t.Fatal(err)
	}
	return meta
}

func sampleEntries(n int) []struct {
	key, value string
	tombstone  bool
} {
	entries := make([]struct {
		key, value string
		tombstone  bool
	}, n)
	for i := 0; i < n; i++ {
		entries[i].key = fmt.Sprintf("key-%05d", i)
		entries[i].value = fmt.Sprintf("value-%d", i)
	}
	return entries
}

func TestChecksumsMatchOnDisk(t *testing.T) {
	dir := t.TempDir()
	meta := writeTable(t, dir, 1, sampleEntries(10))

	if err := LoadAndVerifyChecksum(meta); err != nil {
		t.Fatalf("checksums should match freshly written files: %v", err)
	}
}

func TestIndexedKeyReadsBackItself(t *testing.T) {
	dir := t.TempDir()
	entries := sampleEntries(500)
	meta := writeTable(t, dir, 1, entries)

	r, err := Load(meta.metadataPath(), 4)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i := 0; i < 500; i += 100 {
		key := []byte(entries[i].key)
		offset, ok := r.index.Get(key)
		if !ok {
			t.Fatalf("expected key %q to be indexed", key)
		}
		v, _, found, err := readRecordAt(<-r.handles, offset)
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(v) != entries[i].value {
			t.Fatalf("record at indexed offset for %q: got %q", key, v)
		}
	}
}

func TestGetFindsEveryKeyWithNoFalseNegatives(t *testing.T) {
	dir := t.TempDir()
	entries := sampleEntries(250)
	meta := writeTable(t, dir, 1, entries)

	r, err := Load(meta.metadataPath(), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for _, e := range entries {
		v, tomb, found, err := r.Get([]byte(e.key))
		if err != nil {
			t.Fatal(err)
		}
		if !found || tomb || string(v) != e.value {
			t.Fatalf("Get(%q) = (%q,%v,%v), want (%q,false,true)", e.key, v, tomb, found, e.value)
		}
	}

	_, _, found, err := r.Get([]byte("does-not-exist"))
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss for a key never written")
	}
}

func TestGetReportsTombstone(t *testing.T) {
	dir := t.TempDir()
	entries := sampleEntries(5)
	entries[2].tombstone = true
	meta := writeTable(t, dir, 1, entries)

	r, err := Load(meta.metadataPath(), 2)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, tomb, found, err := r.Get([]byte(entries[2].key))
	if err != nil {
		t.Fatal(err)
	}
	if !found || !tomb {
		t.Fatalf("expected tombstone, got found=%v tomb=%v", found, tomb)
	}
}

func TestIterYieldsAscendingOrder(t *testing.T) {
	dir := t.TempDir()
	entries := sampleEntries(50)
	meta := writeTable(t, dir, 1, entries)

	r, err := Load(meta.metadataPath(), 2)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	seq, err := r.Iter()
	if err != nil {
		t.Fatal(err)
	}

	i := 0
	for rec, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		if string(rec.Key) != entries[i].key {
			t.Fatalf("iter position %d: got key %q want %q", i, rec.Key, entries[i].key)
		}
		i++
	}
	if i != len(entries) {
		t.Fatalf("iterated %d records, want %d", i, len(entries))
	}
}

func TestLoadDetectsChecksumCorruption(t *testing.T) {
	dir := t.TempDir()
	meta := writeTable(t, dir, 1, sampleEntries(5))

	if err := SaveChecksum(meta, Checksum{DataChecksum: "bogus", IndexChecksum: "bogus"}); err != nil {
		t.Fatal(err)
	}

	_, err := Load(meta.metadataPath(), 2)
	if err == nil {
		t.Fatal("expected a checksum error")
	}
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChecksumError, got %T: %v", err, err)
	}
}
