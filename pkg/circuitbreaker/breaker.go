// Package circuitbreaker guards calls to the destination FHIR server.
// Wraps sony/gobreaker so that a flapping or down server trips the run
// into fast failures instead of hammering it request by request.
package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string
	// MaxRequests is how many probe requests may pass in half-open state.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures opens the breaker once reached.
	ConsecutiveFailures uint32
}

// DefaultConfig returns defaults tuned for a bulk upload against a single
// FHIR server: trip quickly, probe after a short pause.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             15 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker wraps gobreaker with logging and otel counters.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger

	requests metric.Int64Counter
	failures metric.Int64Counter
	rejected metric.Int64Counter
}

// New creates a breaker.
func New(cfg Config, logger *zap.Logger) (*Breaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{name: cfg.Name, logger: logger}

	meter := otel.Meter("circuit-breaker")
	var err error
	if b.requests, err = meter.Int64Counter("fhir_upload_requests_total",
		metric.WithDescription("Requests attempted through the breaker")); err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	if b.failures, err = meter.Int64Counter("fhir_upload_failures_total",
		metric.WithDescription("Requests that failed")); err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}
	if b.rejected, err = meter.Int64Counter("fhir_upload_rejected_total",
		metric.WithDescription("Requests rejected by an open breaker")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return b, nil
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	attrs := metric.WithAttributes(attribute.String("name", b.name))
	b.requests.Add(ctx, 1, attrs)

	result, err := b.cb.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			b.rejected.Add(ctx, 1, attrs)
		} else {
			b.failures.Add(ctx, 1, attrs)
		}
		return nil, err
	}
	return result, nil
}

// State returns the current gobreaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
