package memtable

import (
	"iter"

	"github.com/emberkv/emberkv/wal"
)

// entry is what Table stores per key: either a present value or a
// tombstone recording that the key was deleted.
type entry struct {
	value       []byte
	isTombstone bool
}

func (e entry) sizeBytes(key string) int {
	n := len(key)
	if !e.isTombstone {
		n += len(e.value)
	}
	return n
}

// Table is the in-memory, lexicographically ordered write buffer: a
// skip list over string-keyed entries plus a running byte-size
// accountant (spec §4.3's P6 invariant) and tombstone bookkeeping.
type Table struct {
	list      *List[string, entry]
	sizeBytes int
}

// New returns an empty Table.
func New() *Table {
	return &Table{list: NewList[string, entry]()}
}

// Get returns the value for key and whether it is present. A tombstone
// is reported as (nil, true, true); ok is false only if key is absent
// entirely.
func (t *Table) Get(key []byte) (value []byte, isTombstone bool, ok bool) {
	e, found := t.list.Get(string(key))
	if !found {
		return nil, false, false
	}
	return e.value, e.isTombstone, true
}

// Insert stores key/value, replacing any previous entry, and returns the
// previous value if one existed.
func (t *Table) Insert(key, value []byte) (previous []byte, hadPrevious bool) {
	return t.put(key, entry{value: value})
}

// Remove stores a tombstone for key and returns the previously stored
// value, if the key was present with a real value.
func (t *Table) Remove(key []byte) (previous []byte, hadPrevious bool) {
	return t.put(key, entry{isTombstone: true})
}

func (t *Table) put(key []byte, e entry) (previous []byte, hadPrevious bool) {
	k := string(key)

	old, replaced := t.list.Put(k, e)
	if replaced {
		t.sizeBytes -= old.sizeBytes(k)
		if !old.isTombstone {
			previous, hadPrevious = old.value, true
		}
	}
	t.sizeBytes += e.sizeBytes(k)

	return previous, hadPrevious
}

// SizeBytes reports the sum of len(key)+len(value) over every present
// entry (tombstones count only their key, since they carry no value
// bytes under the MaxUint32 sentinel representation).
func (t *Table) SizeBytes() int {
	return t.sizeBytes
}

// SizeEntries reports the number of distinct keys currently resident,
// including tombstones.
func (t *Table) SizeEntries() int {
	return t.list.Len()
}

// TableRecord is one (key, value-or-tombstone) pair as produced by Iter.
type TableRecord struct {
	Key         []byte
	Value       []byte
	IsTombstone bool
}

// Iter yields every entry in ascending key order.
func (t *Table) Iter() iter.Seq[TableRecord] {
	return func(yield func(TableRecord) bool) {
		for rec := range t.list.Iterator() {
			r := TableRecord{Key: []byte(rec.Key), Value: rec.Value.value, IsTombstone: rec.Value.isTombstone}
			if !yield(r) {
				return
			}
		}
	}
}

// FromWAL reconstructs a Table by replaying w in write order. A
// corrupted entry ends reconstruction without an error: everything
// replayed before that point is kept in the returned Table and the rest
// of the log is discarded, matching the WAL's own
// discard-the-tail-after-corruption semantics (spec §7). Errors other
// than a decoding failure (for example opening the log) are returned.
func FromWAL(w *wal.Writer) (*Table, error) {
	t := New()

	err := w.Replay(func(e *wal.Entry) error {
		switch e.Tag {
		case wal.TagInsert:
			t.Insert(e.Key, e.Value)
		case wal.TagRemove:
			t.Remove(e.Key)
		default:
			return &wal.CorruptionError{Op: "replay", Err: wal.ErrInvalidTag}
		}
		return nil
	})

	return t, err
}
