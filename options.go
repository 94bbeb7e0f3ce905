package elastigo

import (
	"log/slog"

	"github.com/hupe1980/elastigo/codec"
	"github.com/hupe1980/elastigo/table"
)

type options struct {
	minLevelSize     uint64
	maxLoad          float64
	tombstoneRatio   float64
	codec            codec.Codec
	compression      table.Compression
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures constructor/load behavior.
type Option func(*options)

// WithMinLevelSize sets the minimum level size of the geometric layout.
// Smaller levels pack the tail of the address space more finely at the cost
// of more levels to walk.
func WithMinLevelSize(size uint64) Option {
	return func(o *options) {
		o.minLevelSize = size
	}
}

// WithMaxLoad sets the live load factor at which the table doubles.
// Must be in (0, 1].
func WithMaxLoad(maxLoad float64) Option {
	return func(o *options) {
		o.maxLoad = maxLoad
	}
}

// WithTombstoneRatio sets the tombstones/capacity ratio at which the table
// rebuilds at constant capacity to purge tombstones. Must be in (0, 1].
func WithTombstoneRatio(ratio float64) Option {
	return func(o *options) {
		o.tombstoneRatio = ratio
	}
}

// WithCodec configures the codec used for structure stream headers.
//
// If nil is passed, codec.Default is used. Streams are self-describing, so
// this affects newly-written streams only.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the payload compression for structure streams
// written by Save.
func WithCompression(c table.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &elastigo.BasicMetricsCollector{}
//	ht, _ := elastigo.New(1024, elastigo.WithMetricsCollector(metrics))
//	// ... use ht ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		minLevelSize:     table.DefaultOptions.MinLevelSize,
		maxLoad:          table.DefaultOptions.MaxLoad,
		tombstoneRatio:   table.DefaultOptions.TombstoneRatio,
		codec:            nil, // resolved to codec.Default on use
		compression:      table.CompressionZSTD,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
