package cellgraph

import "log/slog"

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	workers          int
	noCache          bool
}

// Option configures pipeline construction.
type Option func(*options)

// WithLogger configures structured logging for stage execution.
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

// WithMetricsCollector configures a collector for stage timings.
// Pass nil to disable collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithWorkers bounds the data parallelism inside the neighbor search and the
// layout optimizer. <= 0 means GOMAXPROCS. The layout stage's worker count
// participates in its parameter fingerprint, since it shapes the exact
// floating-point reduction order.
func WithWorkers(workers int) Option {
	return func(o *options) {
		o.workers = workers
	}
}

// WithoutCache forces recomputation of every stage even when a layer with a
// matching fingerprint is already attached to the store.
func WithoutCache() Option {
	return func(o *options) {
		o.noCache = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
