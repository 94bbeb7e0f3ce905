package table

import (
	"bytes"

	"github.com/hupe1980/elastigo/internal/hash"
)

// MinCapacity is the smallest total capacity a table is created with.
// Smaller requests are floored.
const MinCapacity = 64

// RebuildReason identifies what triggered a rebuild.
type RebuildReason int

const (
	// RebuildReasonLoad means the live count reached the max load threshold;
	// capacity doubles.
	RebuildReasonLoad RebuildReason = iota

	// RebuildReasonTombstones means accumulated tombstones reached the trigger
	// ratio; capacity stays constant and tombstones are purged.
	RebuildReasonTombstones

	// RebuildReasonExhaustion means a cascade found no slot within any level's
	// probe budget; capacity doubles.
	RebuildReasonExhaustion
)

// String returns a string representation of the RebuildReason.
func (r RebuildReason) String() string {
	switch r {
	case RebuildReasonLoad:
		return "load"
	case RebuildReasonTombstones:
		return "tombstones"
	case RebuildReasonExhaustion:
		return "exhaustion"
	default:
		return "unknown"
	}
}

// RebuildEvent describes a completed rebuild.
type RebuildEvent struct {
	Reason      RebuildReason
	OldCapacity uint64
	NewCapacity uint64
	Entries     uint64 // live entries carried over
}

// Options contains configuration options for the table.
type Options struct {
	// Capacity is the requested total slot count across all levels.
	// Values below MinCapacity are floored to MinCapacity.
	Capacity uint64

	// MinLevelSize stops the geometric split: no level is carved out of a
	// remainder of at most twice this size.
	MinLevelSize uint64

	// MaxLoad is the live load factor at which the table doubles. Must be in
	// (0, 1].
	MaxLoad float64

	// TombstoneRatio is the tombstones/capacity ratio at which the table
	// rebuilds at constant capacity to purge tombstones. Must be in (0, 1].
	TombstoneRatio float64

	// OnRebuild, when non-nil, is invoked after every completed rebuild.
	OnRebuild func(RebuildEvent)
}

// DefaultOptions contains the default configuration options for the table.
var DefaultOptions = Options{
	Capacity:       MinCapacity,
	MinLevelSize:   16,
	MaxLoad:        0.90,
	TombstoneRatio: 0.15,
}

func validateOptions(opts *Options) error {
	if opts.MaxLoad <= 0 || opts.MaxLoad > 1 {
		return &ErrInvalidLoadFactor{MaxLoad: opts.MaxLoad}
	}
	if opts.TombstoneRatio <= 0 || opts.TombstoneRatio > 1 {
		return &ErrInvalidTombstoneRatio{Ratio: opts.TombstoneRatio}
	}
	if opts.MinLevelSize == 0 {
		return &ErrInvalidMinLevelSize{Size: opts.MinLevelSize}
	}
	return nil
}

// Table is an elastic hash table: an ordered list of geometrically shrinking
// open-addressed sub-arrays with cascading insertion.
//
// Keys and values are length-tagged byte slices. The table stores its own
// copies; slices returned by Get or iteration alias internal storage and stay
// valid only until the next mutation.
type Table struct {
	levels        []*subArray
	totalCapacity uint64
	count         uint64
	rebuilds      uint64
	gen           uint64 // bumped on every mutation; invalidates iterators
	opts          Options
}

// New creates a table from the default options modified by optFns.
func New(optFns ...func(o *Options)) (*Table, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validateOptions(&opts); err != nil {
		return nil, err
	}
	if opts.Capacity < MinCapacity {
		opts.Capacity = MinCapacity
	}

	return &Table{
		levels:        buildLevels(opts.Capacity, opts.MinLevelSize),
		totalCapacity: opts.Capacity,
		opts:          opts,
	}, nil
}

// findResult locates a key as (level index, slot index).
type findResult struct {
	level int
	slot  uint64
}

// find walks the levels in order. Within a level, probing stops early at an
// empty slot: the key's probe sequence was never forced past it, so the key
// cannot sit deeper in this level. Tombstones do not stop the walk.
func (t *Table) find(key []byte) (findResult, bool) {
	for li, sa := range t.levels {
		if sa.live == 0 {
			continue
		}

		base, stride := hash.Dual(key, sa.level)
		budget := sa.probeBudget()

		for a := uint64(0); a < budget; a++ {
			idx := probeIndex(base, stride, a, sa.capacity)
			s := &sa.slots[idx]
			if s.state == slotOccupied && bytes.Equal(s.key, key) {
				return findResult{level: li, slot: idx}, true
			}
			if s.state == slotEmpty {
				break
			}
		}
	}
	return findResult{}, false
}

// Insert adds the key/value pair, replacing the value if the key is already
// present. The table keeps its own copies of both slices.
func (t *Table) Insert(key, value []byte) error {
	if key == nil {
		return ErrNilKey
	}

	// Update in place if already present.
	if fr, ok := t.find(key); ok {
		s := &t.levels[fr.level].slots[fr.slot]
		s.value = bytes.Clone(value)
		t.gen++
		return nil
	}

	if t.count >= uint64(float64(t.totalCapacity)*t.opts.MaxLoad) {
		t.rebuild(t.totalCapacity*2, RebuildReasonLoad)
	}
	if t.tombstoneTotal() >= uint64(float64(t.totalCapacity)*t.opts.TombstoneRatio) {
		t.rebuild(t.totalCapacity, RebuildReasonTombstones)
	}

	t.insertOwned(bytes.Clone(key), bytes.Clone(value))
	t.gen++
	return nil
}

// insertOwned places an already-owned key/value pair via cascading placement,
// growing the layout whenever every level's budget is exhausted. The rebuild
// guarantees headroom, so the loop terminates.
func (t *Table) insertOwned(key, value []byte) {
	for !t.tryPlace(key, value) {
		t.rebuild(t.totalCapacity*2, RebuildReasonExhaustion)
	}
}

// tryPlace runs one cascade pass: for each level in order, probe within the
// budget and take the first empty or tombstone slot.
func (t *Table) tryPlace(key, value []byte) bool {
	for _, sa := range t.levels {
		base, stride := hash.Dual(key, sa.level)
		budget := sa.probeBudget()

		for a := uint64(0); a < budget; a++ {
			s := &sa.slots[probeIndex(base, stride, a, sa.capacity)]
			if s.state == slotOccupied {
				continue
			}

			if s.state == slotTombstone {
				sa.tombstones--
			}
			s.key = key
			s.value = value
			s.state = slotOccupied
			sa.live++
			t.count++
			return true
		}
	}
	return false
}

// Get returns the value stored for key. The returned slice aliases internal
// storage; copy it out before the next mutation if it must outlive one.
func (t *Table) Get(key []byte) ([]byte, bool) {
	fr, ok := t.find(key)
	if !ok {
		return nil, false
	}
	return t.levels[fr.level].slots[fr.slot].value, true
}

// Delete removes key and reports whether it was present. The slot becomes a
// tombstone; the space is reclaimed on the next rebuild.
func (t *Table) Delete(key []byte) bool {
	fr, ok := t.find(key)
	if !ok {
		return false
	}

	sa := t.levels[fr.level]
	s := &sa.slots[fr.slot]
	s.clear()
	s.state = slotTombstone
	sa.live--
	sa.tombstones++
	t.count--
	t.gen++
	return true
}

// Contains reports whether key is present.
func (t *Table) Contains(key []byte) bool {
	_, ok := t.find(key)
	return ok
}

// rebuild atomically replaces the level layout with a fresh one of the given
// capacity. Live payloads move by reference; no key or value bytes are copied.
func (t *Table) rebuild(newCapacity uint64, reason RebuildReason) {
	entries := t.count
	keys := make([][]byte, 0, entries)
	values := make([][]byte, 0, entries)

	for _, sa := range t.levels {
		for i := range sa.slots {
			s := &sa.slots[i]
			if s.state == slotOccupied {
				keys = append(keys, s.key)
				values = append(values, s.value)
				s.clear() // ownership moved to the scratch slices
			}
		}
	}

	oldCapacity := t.totalCapacity
	t.levels = buildLevels(newCapacity, t.opts.MinLevelSize)
	t.totalCapacity = newCapacity
	t.count = 0

	for i := range keys {
		t.insertOwned(keys[i], values[i])
	}

	t.rebuilds++
	t.gen++

	if t.opts.OnRebuild != nil {
		t.opts.OnRebuild(RebuildEvent{
			Reason:      reason,
			OldCapacity: oldCapacity,
			NewCapacity: newCapacity,
			Entries:     entries,
		})
	}
}

func (t *Table) tombstoneTotal() uint64 {
	var total uint64
	for _, sa := range t.levels {
		total += sa.tombstones
	}
	return total
}
