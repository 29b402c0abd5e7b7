package services

import (
	"log/slog"
	"time"

	"github.com/prudhvinik1/episync/internal/metrics"
	"github.com/prudhvinik1/episync/internal/utils"
)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	hashCost int
}

// Option configures the ambient dependencies shared by the services.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation. A service without metrics
// records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithHashCost overrides the bcrypt cost used for new password hashes.
func WithHashCost(cost int) Option {
	return func(o *options) {
		o.hashCost = cost
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		clock:    time.Now,
		hashCost: utils.BcryptCost,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
