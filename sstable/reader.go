package sstable

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/emberkv/emberkv/bloomfilter"
	"github.com/emberkv/emberkv/record"
	"github.com/emberkv/emberkv/sparseindex"
)

// DefaultReadHandlePoolSize is how many independent read handles a
// Reader opens on its data file by default (§4.5 step 4).
const DefaultReadHandlePoolSize = 8

// Reader answers point lookups and full-table scans against one sealed
// SSTable, short-circuiting misses with a Bloom filter before touching
// disk and bounding hits to a small linear scan via the sparse index.
type Reader struct {
	meta      Metadata
	index     *sparseindex.Index
	bloom     *bloomfilter.Filter
	sizeBytes int64
	handles   chan *os.File
}

// Load opens the table named by metadataPath, verifying both checksums
// and deserializing the sparse index and Bloom filter (§4.5 steps 1-4).
// A checksum mismatch is fatal and returned as a *ChecksumError.
func Load(metadataPath string, poolSize int) (*Reader, error) {
	meta, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if err := LoadAndVerifyChecksum(meta); err != nil {
		return nil, err
	}

	index, err := sparseindex.Load(meta.indexPath())
	if err != nil {
		return nil, err
	}

	bloom, err := bloomfilter.Load(meta.bloomPath())
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(meta.dataPath())
	if err != nil {
		return nil, fmt.Errorf("sstable: stat %s: %w", meta.dataPath(), err)
	}

	if poolSize < 1 {
		poolSize = DefaultReadHandlePoolSize
	}

	handles := make(chan *os.File, poolSize)
	for i := 0; i < poolSize; i++ {
		f, err := os.Open(meta.dataPath())
		if err != nil {
			return nil, fmt.Errorf("sstable: open read handle for %s: %w", meta.dataPath(), err)
		}
		handles <- f
	}

	return &Reader{
		meta:      meta,
		index:     index,
		bloom:     bloom,
		sizeBytes: info.Size(),
		handles:   handles,
	}, nil
}

// ID reports the table's identifier.
func (r *Reader) ID() uint64 { return r.meta.ID }

// Level reports the level the table belongs to.
func (r *Reader) Level() int { return r.meta.Level }

// Metadata returns the table's descriptor.
func (r *Reader) Metadata() Metadata { return r.meta }

// Get answers a point lookup following the Bloom filter -> sparse
// index -> bounded linear scan path (§4.5 `get`).
func (r *Reader) Get(key []byte) (value []byte, isTombstone bool, found bool, err error) {
	if !r.bloom.Contains(key) {
		return nil, false, false, nil
	}

	handle := <-r.handles
	defer func() { r.handles <- handle }()

	if offset, ok := r.index.Get(key); ok {
		v, tomb, ok, err := readRecordAt(handle, offset)
		if err != nil || !ok {
			return nil, false, false, err
		}
		return v, tomb, true, nil
	}

	start, ok := r.index.Floor(key)
	if !ok {
		start = 0
	}
	end, ok := r.index.Ceiling(key)
	if !ok {
		end = uint64(r.sizeBytes)
	}

	return r.scan(handle, key, start, end)
}

func readRecordAt(f *os.File, offset uint64) (value []byte, isTombstone bool, found bool, err error) {
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, false, false, fmt.Errorf("sstable: seek: %w", err)
	}
	_, value, isTombstone, _, err = record.Read(f)
	if err != nil {
		return nil, false, false, fmt.Errorf("sstable: read record at %d: %w", offset, err)
	}
	return value, isTombstone, true, nil
}

func (r *Reader) scan(f *os.File, key []byte, start, end uint64) (value []byte, isTombstone bool, found bool, err error) {
	if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
		return nil, false, false, fmt.Errorf("sstable: seek: %w", err)
	}

	limited := io.LimitReader(f, int64(end-start))

	for {
		k, v, tomb, _, err := record.Read(limited)
		if err != nil {
			if err == io.EOF {
				return nil, false, false, nil
			}
			return nil, false, false, fmt.Errorf("sstable: scan: %w", err)
		}

		if bytes.Equal(k, key) {
			return v, tomb, true, nil
		}
	}
}

// Iter yields every record in the table in ascending key order, using
// an independent handle not drawn from the pool.
func (r *Reader) Iter() (iter.Seq2[record.Record, error], error) {
	f, err := os.Open(r.meta.dataPath())
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", r.meta.dataPath(), err)
	}

	return func(yield func(record.Record, error) bool) {
		defer f.Close()

		for {
			k, v, tomb, _, err := record.Read(f)
			if err != nil {
				if err != io.EOF {
					yield(record.Record{}, fmt.Errorf("sstable: iterate %s: %w", r.meta.dataPath(), err))
				}
				return
			}
			if !yield(record.Record{Key: k, Value: v, IsTombstone: tomb}, nil) {
				return
			}
		}
	}, nil
}

// Close releases every pooled read handle.
func (r *Reader) Close() error {
	close(r.handles)
	var firstErr error
	for f := range r.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
