// Package compaction implements the k-way merge that folds one level's
// table snapshot into a single sorted output table at the next level
// (§4.6): a min-heap over per-table lookahead iterators, newest-wins
// deduplication of equal keys, and the tombstone-drop rule for the
// last level.
package compaction

import (
	"bytes"
	"container/heap"
	"fmt"
	"iter"
	"os"

	"github.com/emberkv/emberkv/record"
	"github.com/emberkv/emberkv/sstable"
)

// DeeperLevelsContain reports whether some level below the one being
// compacted still holds key, the check that gates tombstone dropping
// (§4.6 step 5). It may perform I/O and can fail.
type DeeperLevelsContain func(key []byte) (bool, error)

// Result describes a completed merge round.
type Result struct {
	Metadata       sstable.Metadata
	ConsumedInputs []*sstable.Reader
}

type lookahead struct {
	id   uint64
	rec  record.Record
	next func() (record.Record, error, bool)
	stop func()
}

type mergeHeap []*lookahead

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].rec.Key, h[j].rec.Key)
	if c != 0 {
		return c < 0
	}
	// Equal keys: the newest input (larger id) must win, so it sorts
	// first among the tied group (§9 tie rule).
	return h[i].id > h[j].id
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*lookahead)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Run merges inputs (a fixed snapshot of one level, §4.6 step 1) into a
// single new SSTable at outputLevel under dir, dropping tombstones only
// when isLastLevel is true and deeperLevelsContain reports the key is
// not held by any deeper level. Equal keys are resolved by table id (the
// highest id wins), so callers may pass inputs in any order.
func Run(dir string, id uint64, outputLevel int, inputs []*sstable.Reader, isLastLevel bool, deeperLevelsContain DeeperLevelsContain) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, fmt.Errorf("compaction: no inputs to merge")
	}

	var totalInputBytes int64
	h := make(mergeHeap, 0, len(inputs))

	var stops []func()
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()

	for _, in := range inputs {
		meta := in.Metadata()
		if info, err := statSize(meta); err == nil {
			totalInputBytes += info
		}

		seq, err := in.Iter()
		if err != nil {
			return Result{}, fmt.Errorf("compaction: open iterator for table %d: %w", in.ID(), err)
		}
		next, stop := iter.Pull2(seq)
		stops = append(stops, stop)

		rec, err, ok := next()
		if err != nil {
			return Result{}, fmt.Errorf("compaction: read table %d: %w", in.ID(), err)
		}
		if !ok {
			continue
		}

		heap.Push(&h, &lookahead{id: in.ID(), rec: rec, next: next, stop: stop})
	}

	w, err := sstable.New(dir, id, outputLevel, sstable.BloomSizeHint{TotalInputBytes: totalInputBytes})
	if err != nil {
		return Result{}, err
	}

	for h.Len() > 0 {
		winner := h[0]
		key := winner.rec.Key
		value := winner.rec.Value
		isTombstone := winner.rec.IsTombstone

		for h.Len() > 0 && bytes.Equal(h[0].rec.Key, key) {
			item := heap.Pop(&h).(*lookahead)

			rec, err, ok := item.next()
			if err != nil {
				_ = w.Abort()
				return Result{}, fmt.Errorf("compaction: read table %d: %w", item.id, err)
			}
			if ok {
				item.rec = rec
				heap.Push(&h, item)
			}
		}

		drop := false
		if isTombstone && isLastLevel {
			held, err := deeperLevelsContain(key)
			if err != nil {
				_ = w.Abort()
				return Result{}, fmt.Errorf("compaction: checking deeper levels for %q: %w", key, err)
			}
			drop = !held
		}

		if drop {
			continue
		}

		if err := w.Append(key, value, isTombstone); err != nil {
			_ = w.Abort()
			return Result{}, err
		}
	}

	meta, err := w.Seal()
	if err != nil {
		return Result{}, err
	}

	return Result{Metadata: meta, ConsumedInputs: inputs}, nil
}

func statSize(m sstable.Metadata) (int64, error) {
	info, err := os.Stat(m.DataPath())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
