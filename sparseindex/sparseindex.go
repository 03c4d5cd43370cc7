// Package sparseindex implements the sorted-slice ordered map an SSTable
// uses to bound its linear scans: a subset of the table's keys mapped to
// their byte offset in the data file, searched by binary search rather
// than a tree (the bounded-size substitution the design notes allow).
package sparseindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// Step is the indexing interval: every Step-th key written to a data
// file (0th, Stepth, 2*Stepth, ...) is recorded here.
const Step = 100

type entry struct {
	key    []byte
	offset uint64
}

// Index is an ordered Key->offset map built by appending keys in
// strictly ascending order, then queried by exact match or by floor
// (the largest indexed key <= a probe key).
type Index struct {
	entries []entry
}

// New returns an empty Index.
func New() *Index {
	return &Index{}
}

// Append records key at offset. Callers must append in ascending key
// order; Append does not re-sort.
func (idx *Index) Append(key []byte, offset uint64) {
	idx.entries = append(idx.entries, entry{key: append([]byte(nil), key...), offset: offset})
}

// Len reports the number of indexed keys.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Get returns the exact offset recorded for key, if key itself was
// indexed.
func (idx *Index) Get(key []byte) (offset uint64, ok bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return bytes.Compare(idx.entries[i].key, key) >= 0
	})
	if i < len(idx.entries) && bytes.Equal(idx.entries[i].key, key) {
		return idx.entries[i].offset, true
	}
	return 0, false
}

// Floor returns the offset of the greatest indexed key <= the probe
// key, the starting point for a bounded forward scan toward key.
func (idx *Index) Floor(key []byte) (offset uint64, ok bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return bytes.Compare(idx.entries[i].key, key) > 0
	})
	if i == 0 {
		return 0, false
	}
	return idx.entries[i-1].offset, true
}

// Ceiling returns the offset of the least indexed key > the probe key,
// the end bound for a bounded forward scan away from key.
func (idx *Index) Ceiling(key []byte) (offset uint64, ok bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return bytes.Compare(idx.entries[i].key, key) > 0
	})
	if i == len(idx.entries) {
		return 0, false
	}
	return idx.entries[i].offset, true
}

// Save serializes the index to path as a sequence of
// key_len:u32_le | offset:u64_le | key records.
func Save(path string, idx *Index) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sparseindex: create %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, e := range idx.entries {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.key))); err != nil {
			return fmt.Errorf("sparseindex: write %s: %w", path, err)
		}
		if err := binary.Write(w, binary.LittleEndian, e.offset); err != nil {
			return fmt.Errorf("sparseindex: write %s: %w", path, err)
		}
		if _, err := w.Write(e.key); err != nil {
			return fmt.Errorf("sparseindex: write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("sparseindex: flush %s: %w", path, err)
	}
	return file.Sync()
}

// Load deserializes an index previously written by Save. Entries are
// expected in ascending key order, as Save preserves Append order.
func Load(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sparseindex: open %s: %w", path, err)
	}
	defer file.Close()

	idx := New()
	r := bufio.NewReader(file)
	for {
		var keyLen uint32
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("sparseindex: read %s: %w", path, err)
		}

		var offset uint64
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return nil, fmt.Errorf("sparseindex: read %s: %w", path, err)
		}

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("sparseindex: read %s: %w", path, err)
		}

		idx.entries = append(idx.entries, entry{key: key, offset: offset})
	}

	return idx, nil
}
