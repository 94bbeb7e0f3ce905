package elastigo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert operation.
	// duration is the total time taken, err is nil if successful.
	RecordInsert(duration time.Duration, err error)

	// RecordGet is called after each get/contains operation.
	// found reports whether the key was present.
	RecordGet(duration time.Duration, found bool)

	// RecordDelete is called after each delete operation.
	// removed reports whether a key was actually removed.
	RecordDelete(duration time.Duration, removed bool)

	// RecordRebuild is called after each rebuild with the trigger reason and
	// the capacities before and after.
	RecordRebuild(reason string, oldCapacity, newCapacity uint64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)    {}
func (NoopMetricsCollector) RecordGet(time.Duration, bool)        {}
func (NoopMetricsCollector) RecordDelete(time.Duration, bool)     {}
func (NoopMetricsCollector) RecordRebuild(string, uint64, uint64) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	GetCount         atomic.Int64
	GetMisses        atomic.Int64
	GetTotalNanos    atomic.Int64
	DeleteCount      atomic.Int64
	DeleteMisses     atomic.Int64
	RebuildCount     atomic.Int64
	RebuildGrowth    atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, found bool) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if !found {
		b.GetMisses.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, removed bool) {
	b.DeleteCount.Add(1)
	if !removed {
		b.DeleteMisses.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(_ string, oldCapacity, newCapacity uint64) {
	b.RebuildCount.Add(1)
	if newCapacity > oldCapacity {
		b.RebuildGrowth.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:    b.InsertCount.Load(),
		InsertErrors:   b.InsertErrors.Load(),
		InsertAvgNanos: avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		GetCount:       b.GetCount.Load(),
		GetMisses:      b.GetMisses.Load(),
		GetAvgNanos:    avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteMisses:   b.DeleteMisses.Load(),
		RebuildCount:   b.RebuildCount.Load(),
		RebuildGrowth:  b.RebuildGrowth.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount    int64
	InsertErrors   int64
	InsertAvgNanos int64
	GetCount       int64
	GetMisses      int64
	GetAvgNanos    int64
	DeleteCount    int64
	DeleteMisses   int64
	RebuildCount   int64
	RebuildGrowth  int64
}
