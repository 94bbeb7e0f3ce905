package table

import "iter"

// Iterator yields each live entry exactly once, walking levels in order and
// slots in ascending index within each level. Yielded slices alias internal
// storage; copy them out if they must survive a mutation.
//
// Any mutation of the table invalidates the iterator; advancing an
// invalidated iterator panics.
type Iterator struct {
	t     *Table
	gen   uint64
	level int
	slot  uint64
}

// Iter returns an iterator over the table's live entries.
func (t *Table) Iter() *Iterator {
	return &Iterator{t: t, gen: t.gen}
}

// Next returns the next live entry, or ok=false when the table is exhausted.
func (it *Iterator) Next() (key, value []byte, ok bool) {
	if it.gen != it.t.gen {
		panic("elastigo/table: iterator used after table mutation")
	}

	for it.level < len(it.t.levels) {
		sa := it.t.levels[it.level]
		for it.slot < sa.capacity {
			s := &sa.slots[it.slot]
			it.slot++
			if s.state == slotOccupied {
				return s.key, s.value, true
			}
		}
		it.level++
		it.slot = 0
	}
	return nil, nil, false
}

// All returns a range-over-func sequence of the table's live entries, with the
// same ordering and invalidation rules as Iter.
func (t *Table) All() iter.Seq2[[]byte, []byte] {
	return func(yield func(key, value []byte) bool) {
		it := t.Iter()
		for k, v, ok := it.Next(); ok; k, v, ok = it.Next() {
			if !yield(k, v) {
				return
			}
		}
	}
}
