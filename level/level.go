// Package level implements the per-level ordered collection of
// SSTables: a sequence sorted by ascending id, guarded by a lock that
// separates cheap snapshot reads from the expensive I/O a compaction
// pass performs before swapping its results back in.
package level

import (
	"sort"
	"sync"

	"github.com/emberkv/emberkv/sstable"
)

// Set is one level's ordered collection of open SSTable readers.
type Set struct {
	mu     sync.RWMutex
	tables []*sstable.Reader
}

// New returns an empty Set.
func New() *Set {
	return &Set{}
}

// Add inserts t into the set, keeping tables sorted by ascending id.
// Used both for a freshly flushed level-0 table and for loading
// existing tables on startup.
func (s *Set) Add(t *sstable.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.tables), func(i int) bool { return s.tables[i].ID() >= t.ID() })
	s.tables = append(s.tables, nil)
	copy(s.tables[i+1:], s.tables[i:])
	s.tables[i] = t
}

// Snapshot returns the current table list, newest (highest id) first —
// the order §4.5/I6 requires readers to consult level 0 in, and a
// convenient fixed input list for one compaction round (§4.6 step 1).
// The returned slice is safe to use without further locking; it shares
// no backing array with the live set.
func (s *Set) Snapshot() []*sstable.Reader {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*sstable.Reader, len(s.tables))
	for i, t := range s.tables {
		out[len(s.tables)-1-i] = t
	}
	return out
}

// Len reports the number of tables currently in the set.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}

// ReplaceConsumed removes every table in consumed from the set. Tables
// added concurrently (after the snapshot that selected consumed) are
// left untouched — this is the "lock upgrade" step of a compaction
// round: the snapshot was taken under a read lock, the merge ran
// unlocked, and only this final swap needs the write lock (§4.6 step
// 7, §5). Callers close and delete the consumed tables' files only
// after this swap succeeds, per §4.6 step 8.
func (s *Set) ReplaceConsumed(consumed []*sstable.Reader) {
	consumedIDs := make(map[uint64]bool, len(consumed))
	for _, t := range consumed {
		consumedIDs[t.ID()] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*sstable.Reader, 0, len(s.tables))
	for _, t := range s.tables {
		if consumedIDs[t.ID()] {
			continue
		}
		kept = append(kept, t)
	}
	s.tables = kept
}
