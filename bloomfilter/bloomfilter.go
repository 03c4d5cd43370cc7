// Package bloomfilter wraps github.com/bits-and-blooms/bloom/v3 (the
// teacher's own dependency) into the two sizing modes the SSTable writer
// needs and gives the filter a file-shaped Save/Load pair so it can live
// in its own sidecar file instead of the teacher's single embedded
// section.
package bloomfilter

import (
	"fmt"
	"io"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
)

// targetFalsePositiveRate is the 1% target named in spec §3/§4.4.
const targetFalsePositiveRate = 0.01

// Filter is a probabilistic set membership test over a table's keys.
type Filter struct {
	bf *bloom.BloomFilter
}

// NewForEntries sizes a filter for a known number of entries, used when
// flushing a memtable (spec §4.4).
func NewForEntries(entries int) *Filter {
	if entries < 1 {
		entries = 1
	}
	return &Filter{bf: bloom.NewWithEstimates(uint(entries), targetFalsePositiveRate)}
}

// NewForBytes sizes a filter for a compaction output from the total size
// of its inputs: ceil(totalInputBytes / 40) estimated entries (spec §4.4).
func NewForBytes(totalInputBytes int64) *Filter {
	entries := (totalInputBytes + 39) / 40
	if entries < 1 {
		entries = 1
	}
	return &Filter{bf: bloom.NewWithEstimates(uint(entries), targetFalsePositiveRate)}
}

// Add records key's membership.
func (f *Filter) Add(key []byte) {
	f.bf.Add(key)
}

// Contains reports whether key may be present (no false negatives,
// spec I3/P8).
func (f *Filter) Contains(key []byte) bool {
	return f.bf.Test(key)
}

// WriteTo serializes the filter.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	return f.bf.WriteTo(w)
}

// Save writes the filter to path, used for a table's bloom_<id>.db file.
func Save(path string, f *Filter) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bloomfilter: create %s: %w", path, err)
	}
	defer file.Close()

	if _, err := f.WriteTo(file); err != nil {
		return fmt.Errorf("bloomfilter: write %s: %w", path, err)
	}
	return file.Sync()
}

// Load reads a filter previously written by Save.
func Load(path string) (*Filter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bloomfilter: open %s: %w", path, err)
	}
	defer file.Close()

	bf := &bloom.BloomFilter{}
	if _, err := bf.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("bloomfilter: read %s: %w", path, err)
	}

	return &Filter{bf: bf}, nil
}
