package vecquant

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/vecquant/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	controller       *resource.Controller
	sampleSize       int
	workers          int
	seed             int64
}

// Option configures Index constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecquant.NewJSONLogger(slog.LevelInfo)
//	idx, _ := vecquant.Scalar(128).Build(vecquant.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metricsCollector = mc
		}
	}
}

// WithResourceController charges code storage memory and bulk encoding
// workers against the given controller's budgets.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithTrainingSampleSize caps the number of vectors drawn from the
// training input. 0 means use everything.
func WithTrainingSampleSize(n int) Option {
	return func(o *options) {
		o.sampleSize = n
	}
}

// WithWorkers sets the number of goroutines used for bulk encoding.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSeed seeds training-sample selection and centroid initialization,
// making builds reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		workers:          runtime.GOMAXPROCS(0),
		seed:             1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
