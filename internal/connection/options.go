package connection

import (
	"log/slog"

	"github.com/rickgao/marketstream/internal/metrics"
)

// Option configures a Registry or MarketConn.
type Option func(*options)

type options struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	handlers []Handler
}

// WithConfig sets timeouts, backoff and buffer sizes. Zero fields keep
// their defaults.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics sink. nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHandler adds h to every connection built with these options, ahead
// of handlers added later with AddHandler.
func WithHandler(h Handler) Option {
	return func(o *options) { o.handlers = append(o.handlers, h) }
}

func buildOptions(opts []Option) options {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg = o.cfg.withDefaults()
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
