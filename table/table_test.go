package table

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertInvariants checks the structural invariants that must hold in every
// reachable state.
func assertInvariants(t *testing.T, tbl *Table) {
	t.Helper()

	var live, capacity uint64
	for i, sa := range tbl.levels {
		var occupied, tombstones uint64
		for j := range sa.slots {
			switch sa.slots[j].state {
			case slotOccupied:
				occupied++
			case slotTombstone:
				tombstones++
			}
		}
		require.Equal(t, sa.live, occupied, "level %d live counter", i)
		require.Equal(t, sa.tombstones, tombstones, "level %d tombstone counter", i)
		require.LessOrEqual(t, sa.live+sa.tombstones, sa.capacity, "level %d overfilled", i)

		live += sa.live
		capacity += sa.capacity
	}
	require.Equal(t, tbl.count, live)
	require.Equal(t, tbl.totalCapacity, capacity)
}

func TestTable(t *testing.T) {
	t.Run("InsertGet", func(t *testing.T) {
		tbl, err := New()
		require.NoError(t, err)

		require.NoError(t, tbl.Insert([]byte("hello"), []byte("1")))
		require.NoError(t, tbl.Insert([]byte("world"), []byte("2")))

		v, ok := tbl.Get([]byte("hello"))
		require.True(t, ok)
		assert.Equal(t, []byte("1"), v)

		v, ok = tbl.Get([]byte("world"))
		require.True(t, ok)
		assert.Equal(t, []byte("2"), v)

		_, ok = tbl.Get([]byte("missing"))
		assert.False(t, ok)

		assert.Equal(t, uint64(2), tbl.Len())
		assertInvariants(t, tbl)
	})

	t.Run("UpdateExisting", func(t *testing.T) {
		tbl, err := New()
		require.NoError(t, err)

		require.NoError(t, tbl.Insert([]byte("key"), []byte("10")))
		require.NoError(t, tbl.Insert([]byte("key"), []byte("99")))

		v, ok := tbl.Get([]byte("key"))
		require.True(t, ok)
		assert.Equal(t, []byte("99"), v)
		assert.Equal(t, uint64(1), tbl.Len())
	})

	t.Run("UpdateChain", func(t *testing.T) {
		tbl, err := New()
		require.NoError(t, err)

		for _, v := range []string{"1", "22", "333"} {
			require.NoError(t, tbl.Insert([]byte("a"), []byte(v)))
		}

		v, ok := tbl.Get([]byte("a"))
		require.True(t, ok)
		assert.Equal(t, []byte("333"), v)
		assert.Equal(t, uint64(1), tbl.Len())
	})

	t.Run("Delete", func(t *testing.T) {
		tbl, err := New()
		require.NoError(t, err)

		require.NoError(t, tbl.Insert([]byte("x"), []byte("42")))
		assert.True(t, tbl.Contains([]byte("x")))

		assert.True(t, tbl.Delete([]byte("x")))
		assert.False(t, tbl.Contains([]byte("x")))
		assert.False(t, tbl.Delete([]byte("x")))
		assert.Equal(t, uint64(0), tbl.Len())
		assertInvariants(t, tbl)
	})

	t.Run("NilKey", func(t *testing.T) {
		tbl, err := New()
		require.NoError(t, err)

		assert.ErrorIs(t, tbl.Insert(nil, []byte("v")), ErrNilKey)
	})

	t.Run("EmptyKeyAndValue", func(t *testing.T) {
		tbl, err := New()
		require.NoError(t, err)

		require.NoError(t, tbl.Insert([]byte{}, []byte{}))
		v, ok := tbl.Get([]byte{})
		require.True(t, ok)
		assert.Empty(t, v)
		assert.Equal(t, uint64(1), tbl.Len())
	})

	t.Run("MinimumCapacityFloor", func(t *testing.T) {
		tbl, err := New(func(o *Options) {
			o.Capacity = 10
		})
		require.NoError(t, err)

		assert.Equal(t, uint64(MinCapacity), tbl.Capacity())
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		_, err := New(func(o *Options) { o.MaxLoad = 1.5 })
		var elf *ErrInvalidLoadFactor
		require.ErrorAs(t, err, &elf)
		assert.Equal(t, 1.5, elf.MaxLoad)

		_, err = New(func(o *Options) { o.TombstoneRatio = 0 })
		var etr *ErrInvalidTombstoneRatio
		require.ErrorAs(t, err, &etr)

		_, err = New(func(o *Options) { o.MinLevelSize = 0 })
		var emls *ErrInvalidMinLevelSize
		require.ErrorAs(t, err, &emls)
	})

	t.Run("GetBorrowsUntilMutation", func(t *testing.T) {
		tbl, err := New()
		require.NoError(t, err)

		require.NoError(t, tbl.Insert([]byte("k"), []byte("before")))
		v, ok := tbl.Get([]byte("k"))
		require.True(t, ok)

		keep := append([]byte(nil), v...)
		require.NoError(t, tbl.Insert([]byte("k"), []byte("after")))

		assert.Equal(t, []byte("before"), keep)
		v, _ = tbl.Get([]byte("k"))
		assert.Equal(t, []byte("after"), v)
	})
}

func TestDeletionWithTombstones(t *testing.T) {
	tbl, err := New(func(o *Options) {
		o.Capacity = 512
	})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, tbl.Insert(fmt.Appendf(nil, "k%d", i), fmt.Appendf(nil, "%d", i)))
	}
	require.Equal(t, uint64(200), tbl.Len())

	for i := 0; i < 200; i += 2 {
		require.True(t, tbl.Delete(fmt.Appendf(nil, "k%d", i)))
	}
	require.Equal(t, uint64(100), tbl.Len())

	// Odd keys survive, even keys are gone.
	for i := 1; i < 200; i += 2 {
		v, ok := tbl.Get(fmt.Appendf(nil, "k%d", i))
		require.True(t, ok, "lost key k%d", i)
		assert.Equal(t, fmt.Appendf(nil, "%d", i), v)
	}
	for i := 0; i < 200; i += 2 {
		_, ok := tbl.Get(fmt.Appendf(nil, "k%d", i))
		require.False(t, ok)
	}

	assertInvariants(t, tbl)
}

func TestTombstoneReuse(t *testing.T) {
	// Insert-delete-insert cycles on a single key must not grow the tombstone
	// population: the reinsert lands on the key's own tombstone.
	tbl, err := New()
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, tbl.Insert([]byte("x"), fmt.Appendf(nil, "v%d", i)))
		assert.True(t, tbl.Contains([]byte("x")))
		assert.Equal(t, uint64(1), tbl.Len())

		require.True(t, tbl.Delete([]byte("x")))
		assert.False(t, tbl.Contains([]byte("x")))
		assert.Equal(t, uint64(0), tbl.Len())

		assert.LessOrEqual(t, tbl.tombstoneTotal(), uint64(1))
	}
	assertInvariants(t, tbl)
}

func TestRebuild(t *testing.T) {
	t.Run("LoadTriggerDoubles", func(t *testing.T) {
		var events []RebuildEvent
		tbl, err := New(func(o *Options) {
			o.Capacity = 64
			o.MaxLoad = 0.5
			o.OnRebuild = func(ev RebuildEvent) { events = append(events, ev) }
		})
		require.NoError(t, err)

		// floor(64 * 0.5) = 32: the threshold check fires on the 33rd insert.
		for i := 0; i < 32; i++ {
			require.NoError(t, tbl.Insert(fmt.Appendf(nil, "k%d", i), []byte("v")))
		}
		require.Empty(t, events)

		require.NoError(t, tbl.Insert([]byte("k32"), []byte("v")))
		require.Len(t, events, 1)
		assert.Equal(t, RebuildReasonLoad, events[0].Reason)
		assert.Equal(t, uint64(64), events[0].OldCapacity)
		assert.Equal(t, uint64(128), events[0].NewCapacity)
		assert.Equal(t, uint64(32), events[0].Entries)
		assert.Equal(t, uint64(128), tbl.Capacity())

		// Everything survives the rebuild.
		for i := 0; i <= 32; i++ {
			assert.True(t, tbl.Contains(fmt.Appendf(nil, "k%d", i)))
		}
		assertInvariants(t, tbl)
	})

	t.Run("TombstoneTriggerKeepsCapacity", func(t *testing.T) {
		var events []RebuildEvent
		tbl, err := New(func(o *Options) {
			o.Capacity = 64
			o.OnRebuild = func(ev RebuildEvent) { events = append(events, ev) }
		})
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			require.NoError(t, tbl.Insert(fmt.Appendf(nil, "k%d", i), []byte("v")))
		}
		// floor(64 * 0.15) = 9 tombstones arm the trigger.
		for i := 0; i < 9; i++ {
			require.True(t, tbl.Delete(fmt.Appendf(nil, "k%d", i)))
		}
		require.Empty(t, events)

		require.NoError(t, tbl.Insert([]byte("fresh"), []byte("v")))
		require.Len(t, events, 1)
		assert.Equal(t, RebuildReasonTombstones, events[0].Reason)
		assert.Equal(t, uint64(64), events[0].OldCapacity)
		assert.Equal(t, uint64(64), events[0].NewCapacity)

		assert.Equal(t, uint64(0), tbl.tombstoneTotal())
		assert.Equal(t, uint64(12), tbl.Len())
		assertInvariants(t, tbl)
	})

	t.Run("ExhaustionDoubles", func(t *testing.T) {
		var events []RebuildEvent
		tbl, err := New(func(o *Options) {
			o.Capacity = 64
			o.MaxLoad = 1.0
			o.TombstoneRatio = 1.0
			o.OnRebuild = func(ev RebuildEvent) { events = append(events, ev) }
		})
		require.NoError(t, err)

		// Saturate every slot so a cascade cannot place anywhere.
		var n int
		for _, sa := range tbl.levels {
			for i := range sa.slots {
				sa.slots[i].key = fmt.Appendf(nil, "f%d", n)
				sa.slots[i].value = []byte("v")
				sa.slots[i].state = slotOccupied
				sa.live++
				tbl.count++
				n++
			}
		}

		tbl.insertOwned([]byte("straw"), []byte("v"))

		require.NotEmpty(t, events)
		assert.Equal(t, RebuildReasonExhaustion, events[0].Reason)
		assert.Equal(t, uint64(64), events[0].OldCapacity)
		assert.Equal(t, uint64(128), events[0].NewCapacity)

		v, ok := tbl.Get([]byte("straw"))
		require.True(t, ok)
		assert.Equal(t, []byte("v"), v)
		assert.Equal(t, uint64(65), tbl.Len())
		assertInvariants(t, tbl)
	})

	t.Run("PayloadsSurviveByReference", func(t *testing.T) {
		tbl, err := New(func(o *Options) {
			o.Capacity = 64
		})
		require.NoError(t, err)

		require.NoError(t, tbl.Insert([]byte("stable"), []byte("payload")))
		before, ok := tbl.Get([]byte("stable"))
		require.True(t, ok)

		tbl.rebuild(tbl.Capacity()*2, RebuildReasonLoad)

		after, ok := tbl.Get([]byte("stable"))
		require.True(t, ok)
		assert.Equal(t, []byte("payload"), after)

		// Rebuild moves ownership; the byte buffer is the same allocation.
		assert.Same(t, &before[0], &after[0])
	})
}

func TestAutoResize(t *testing.T) {
	tbl, err := New(func(o *Options) {
		o.Capacity = 64
	})
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		require.NoError(t, tbl.Insert(fmt.Appendf(nil, "%d", i), fmt.Appendf(nil, "%d", i*7)))
	}

	assert.Equal(t, uint64(300), tbl.Len())
	assert.GreaterOrEqual(t, tbl.Capacity(), uint64(512))

	for i := 0; i < 300; i++ {
		v, ok := tbl.Get(fmt.Appendf(nil, "%d", i))
		require.True(t, ok, "lost key %d", i)
		assert.Equal(t, fmt.Appendf(nil, "%d", i*7), v)
	}
	assert.Greater(t, tbl.Rebuilds(), uint64(0))
	assertInvariants(t, tbl)
}

func TestHighLoad(t *testing.T) {
	tbl, err := New(func(o *Options) {
		o.Capacity = 10_000
	})
	require.NoError(t, err)

	for i := 0; i < 9000; i++ {
		require.NoError(t, tbl.Insert(fmt.Appendf(nil, "k:%d", i), fmt.Appendf(nil, "v:%d", i)))
	}

	require.Equal(t, uint64(9000), tbl.Len())

	v, ok := tbl.Get([]byte("k:4242"))
	require.True(t, ok)
	assert.Equal(t, []byte("v:4242"), v)

	// Geometric load distribution: level 0 is the densest.
	stats := tbl.LevelStats()
	require.NotEmpty(t, stats)
	assert.GreaterOrEqual(t, stats[0].Load(), stats[len(stats)-1].Load())
	for i := range stats {
		assert.Equal(t, i, stats[i].Level)
	}

	assertInvariants(t, tbl)
}

func TestDeleteAllReinsert(t *testing.T) {
	tbl, err := New(func(o *Options) {
		o.Capacity = 2048
	})
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.NoError(t, tbl.Insert(fmt.Appendf(nil, "key-%d", i), []byte("old")))
	}
	for i := 0; i < 1000; i++ {
		require.True(t, tbl.Delete(fmt.Appendf(nil, "key-%d", i)))
	}
	require.Equal(t, uint64(0), tbl.Len())

	for i := 0; i < 1000; i++ {
		require.NoError(t, tbl.Insert(fmt.Appendf(nil, "key-%d", i), []byte("new")))
	}

	assert.Equal(t, uint64(1000), tbl.Len())
	for i := 0; i < 1000; i++ {
		v, ok := tbl.Get(fmt.Appendf(nil, "key-%d", i))
		require.True(t, ok)
		assert.Equal(t, []byte("new"), v)
	}

	// The tombstone threshold forced a compacting rebuild along the way.
	assert.Greater(t, tbl.Rebuilds(), uint64(0))
	assert.Equal(t, uint64(0), tbl.tombstoneTotal())
	assertInvariants(t, tbl)
}

func TestLevelStats(t *testing.T) {
	tbl, err := New(func(o *Options) {
		o.Capacity = 256
	})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, tbl.Insert(fmt.Appendf(nil, "s%d", i), []byte("v")))
	}
	require.True(t, tbl.Delete([]byte("s0")))

	stats := tbl.Stats()
	assert.Equal(t, uint64(99), stats.Count)
	assert.Equal(t, uint64(256), stats.Capacity)
	assert.Equal(t, uint64(1), stats.Tombstones)
	assert.InDelta(t, 99.0/256.0, stats.LoadFactor, 1e-9)
	assert.Equal(t, tbl.NumLevels(), len(stats.Levels))

	var live uint64
	for _, ls := range stats.Levels {
		live += ls.Live
	}
	assert.Equal(t, uint64(99), live)
}

func TestProbeBudget(t *testing.T) {
	t.Run("EmptyLevel", func(t *testing.T) {
		sa := newSubArray(0, 1024)
		// ε = 1 → ln(1) = 0 → ⌊3⌋ + 1.
		assert.Equal(t, uint64(4), sa.probeBudget())
	})

	t.Run("SaturatedLevel", func(t *testing.T) {
		sa := newSubArray(0, 128)
		sa.live = 100
		sa.tombstones = 28
		assert.Equal(t, uint64(128), sa.probeBudget())
	})

	t.Run("TombstonesCountAsUsed", func(t *testing.T) {
		occupied := newSubArray(0, 128)
		occupied.live = 64

		tombstoned := newSubArray(0, 128)
		tombstoned.live = 32
		tombstoned.tombstones = 32

		assert.Equal(t, occupied.probeBudget(), tombstoned.probeBudget())
	})

	t.Run("GrowsWithFill", func(t *testing.T) {
		sa := newSubArray(0, 1 << 20)
		var prev uint64
		for _, fill := range []uint64{0, 1 << 18, 1 << 19, 3 << 18, 1<<20 - 1} {
			sa.live = fill
			budget := sa.probeBudget()
			assert.GreaterOrEqual(t, budget, prev, "fill %d", fill)
			prev = budget
		}
	})

	t.Run("ClampedToCapacity", func(t *testing.T) {
		sa := newSubArray(0, 8)
		sa.live = 7
		assert.LessOrEqual(t, sa.probeBudget(), uint64(8))
	})
}
