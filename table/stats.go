package table

// LevelStats describes one sub-array.
type LevelStats struct {
	Level      int
	Capacity   uint64
	Live       uint64
	Tombstones uint64
}

// Load returns the live load factor of the level.
func (ls LevelStats) Load() float64 {
	return float64(ls.Live) / float64(ls.Capacity)
}

// Stats is a point-in-time snapshot of the table's shape.
type Stats struct {
	Count      uint64
	Capacity   uint64
	Tombstones uint64
	LoadFactor float64
	Rebuilds   uint64
	Levels     []LevelStats
}

// Len returns the number of live entries.
func (t *Table) Len() uint64 { return t.count }

// Capacity returns the current total slot count across all levels.
func (t *Table) Capacity() uint64 { return t.totalCapacity }

// NumLevels returns the current level count.
func (t *Table) NumLevels() int { return len(t.levels) }

// Rebuilds returns how many rebuilds the table has performed.
func (t *Table) Rebuilds() uint64 { return t.rebuilds }

// LevelStats returns per-level statistics in level order.
func (t *Table) LevelStats() []LevelStats {
	stats := make([]LevelStats, len(t.levels))
	for i, sa := range t.levels {
		stats[i] = LevelStats{
			Level:      sa.level,
			Capacity:   sa.capacity,
			Live:       sa.live,
			Tombstones: sa.tombstones,
		}
	}
	return stats
}

// Stats returns aggregate statistics about the table.
func (t *Table) Stats() Stats {
	return Stats{
		Count:      t.count,
		Capacity:   t.totalCapacity,
		Tombstones: t.tombstoneTotal(),
		LoadFactor: float64(t.count) / float64(t.totalCapacity),
		Rebuilds:   t.rebuilds,
		Levels:     t.LevelStats(),
	}
}
