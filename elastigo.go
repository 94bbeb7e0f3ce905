package elastigo

import (
	"io"
	"iter"
	"time"

	"github.com/hupe1980/elastigo/codec"
	"github.com/hupe1980/elastigo/table"
)

// HashTable is the public handle: the core table plus the operational wrapper
// (structured logging, metrics, stream configuration).
type HashTable struct {
	table       *table.Table
	logger      *Logger
	metrics     MetricsCollector
	codec       codec.Codec
	compression table.Compression
}

// New creates a hash table with the requested total capacity. Requests below
// table.MinCapacity are floored.
func New(capacity uint64, optFns ...Option) (*HashTable, error) {
	o := applyOptions(optFns)

	ht := &HashTable{
		logger:      o.logger,
		metrics:     o.metricsCollector,
		codec:       o.codec,
		compression: o.compression,
	}

	tbl, err := table.New(func(to *table.Options) {
		to.Capacity = capacity
		to.MinLevelSize = o.minLevelSize
		to.MaxLoad = o.maxLoad
		to.TombstoneRatio = o.tombstoneRatio
		to.OnRebuild = ht.onRebuild
	})
	if err != nil {
		return nil, translateError(err)
	}

	ht.table = tbl
	return ht, nil
}

func (ht *HashTable) onRebuild(ev table.RebuildEvent) {
	ht.logger.LogRebuild(ev)
	ht.metrics.RecordRebuild(ev.Reason.String(), ev.OldCapacity, ev.NewCapacity)
}

// Insert adds the key/value pair, replacing the value if the key is already
// present. The table keeps its own copies of both slices.
func (ht *HashTable) Insert(key, value []byte) error {
	start := time.Now()
	err := translateError(ht.table.Insert(key, value))
	ht.metrics.RecordInsert(time.Since(start), err)
	ht.logger.LogInsert(len(key), len(value), err)
	return err
}

// Get returns the value stored for key. The returned slice aliases internal
// storage; copy it out before the next mutation if it must outlive one.
func (ht *HashTable) Get(key []byte) ([]byte, bool) {
	start := time.Now()
	v, ok := ht.table.Get(key)
	ht.metrics.RecordGet(time.Since(start), ok)
	return v, ok
}

// Delete removes key and reports whether it was present.
func (ht *HashTable) Delete(key []byte) bool {
	start := time.Now()
	removed := ht.table.Delete(key)
	ht.metrics.RecordDelete(time.Since(start), removed)
	ht.logger.LogDelete(len(key), removed)
	return removed
}

// Contains reports whether key is present.
func (ht *HashTable) Contains(key []byte) bool {
	start := time.Now()
	ok := ht.table.Contains(key)
	ht.metrics.RecordGet(time.Since(start), ok)
	return ok
}

// Len returns the number of live entries.
func (ht *HashTable) Len() uint64 { return ht.table.Len() }

// Capacity returns the current total slot count across all levels.
func (ht *HashTable) Capacity() uint64 { return ht.table.Capacity() }

// NumLevels returns the current level count.
func (ht *HashTable) NumLevels() int { return ht.table.NumLevels() }

// LevelStats returns per-level statistics in level order.
func (ht *HashTable) LevelStats() []table.LevelStats { return ht.table.LevelStats() }

// Stats returns aggregate statistics about the table.
func (ht *HashTable) Stats() table.Stats { return ht.table.Stats() }

// Iter returns an iterator over the table's live entries. Any mutation
// invalidates it.
func (ht *HashTable) Iter() *table.Iterator { return ht.table.Iter() }

// All returns a range-over-func sequence of the table's live entries.
func (ht *HashTable) All() iter.Seq2[[]byte, []byte] { return ht.table.All() }

// Save writes the table to w as a self-describing binary stream using the
// configured codec and compression.
func (ht *HashTable) Save(w io.Writer) error {
	n, err := ht.table.Encode(w, func(o *table.EncodeOptions) {
		o.Codec = ht.codec
		o.Compression = ht.compression
	})
	ht.logger.LogSave(n, err)
	return err
}

// Load reads a binary table stream written by Save and reconstructs the table
// with its exact slot placement. Stream layout parameters are authoritative;
// optFns configure the wrapper (logger, metrics, stream defaults).
func Load(r io.Reader, optFns ...Option) (*HashTable, error) {
	o := applyOptions(optFns)

	ht := &HashTable{
		logger:      o.logger,
		metrics:     o.metricsCollector,
		codec:       o.codec,
		compression: o.compression,
	}

	tbl, err := table.Decode(r, func(to *table.Options) {
		to.OnRebuild = ht.onRebuild
	})
	if err != nil {
		ht.logger.LogLoad(0, err)
		return nil, err
	}

	ht.table = tbl
	ht.logger.LogLoad(tbl.Len(), nil)
	return ht, nil
}
