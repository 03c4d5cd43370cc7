package sstable

import (
	"bufio"
	"fmt"
	"os"

	"github.com/emberkv/emberkv/bloomfilter"
	"github.com/emberkv/emberkv/record"
	"github.com/emberkv/emberkv/sparseindex"
)

// BloomSizeHint tells a Writer how to size its Bloom filter: a flush
// sizes by entry count, a compaction output sizes by total input bytes
// (§4.4).
type BloomSizeHint struct {
	Entries         int
	TotalInputBytes int64
}

func newBloomFilter(hint BloomSizeHint) *bloomfilter.Filter {
	if hint.TotalInputBytes > 0 {
		return bloomfilter.NewForBytes(hint.TotalInputBytes)
	}
	return bloomfilter.NewForEntries(hint.Entries)
}

// Writer serializes a strictly ascending stream of (key, value) pairs
// into one SSTable's five-file family. Keys must be appended in
// strictly ascending order; Writer does not sort.
type Writer struct {
	meta   Metadata
	data   *os.File
	out    *bufio.Writer
	index  *sparseindex.Index
	bloom  *bloomfilter.Filter
	offset uint64
	count  int
}

// New opens a Writer for a new table at id/level under dir.
func New(dir string, id uint64, level int, hint BloomSizeHint) (*Writer, error) {
	meta := NewMetadata(dir, id, level)

	file, err := os.Create(meta.dataPath())
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", meta.dataPath(), err)
	}

	return &Writer{
		meta:  meta,
		data:  file,
		out:   bufio.NewWriter(file),
		index: sparseindex.New(),
		bloom: newBloomFilter(hint),
	}, nil
}

// Append writes the next record. isTombstone encodes a deletion marker
// rather than value.
func (w *Writer) Append(key, value []byte, isTombstone bool) error {
	if w.count%sparseindex.Step == 0 {
		w.index.Append(key, w.offset)
	}
	w.bloom.Add(key)

	n, err := record.Write(w.out, key, value, isTombstone)
	if err != nil {
		return fmt.Errorf("sstable: append to %s: %w", w.meta.dataPath(), err)
	}

	w.offset += uint64(n)
	w.count++
	return nil
}

// Seal flushes the data file and writes the index, bloom, checksum and
// metadata files in that order, the last of which is the commit marker
// for the whole table (§4.4). It returns the table's metadata.
func (w *Writer) Seal() (Metadata, error) {
	if err := w.out.Flush(); err != nil {
		return Metadata{}, fmt.Errorf("sstable: flush %s: %w", w.meta.dataPath(), err)
	}
	if err := w.data.Sync(); err != nil {
		return Metadata{}, fmt.Errorf("sstable: sync %s: %w", w.meta.dataPath(), err)
	}
	if err := w.data.Close(); err != nil {
		return Metadata{}, fmt.Errorf("sstable: close %s: %w", w.meta.dataPath(), err)
	}

	if err := sparseindex.Save(w.meta.indexPath(), w.index); err != nil {
		return Metadata{}, err
	}

	if err := bloomfilter.Save(w.meta.bloomPath(), w.bloom); err != nil {
		return Metadata{}, err
	}

	checksum, err := ComputeChecksum(w.meta)
	if err != nil {
		return Metadata{}, err
	}
	if err := SaveChecksum(w.meta, checksum); err != nil {
		return Metadata{}, err
	}

	if err := SaveMetadata(w.meta); err != nil {
		return Metadata{}, err
	}

	return w.meta, nil
}

// Abort discards a Writer that will not be sealed, removing whatever
// partial data file it created.
func (w *Writer) Abort() error {
	_ = w.data.Close()
	return os.Remove(w.meta.dataPath())
}
