// Package messaging holds the event publishers the engine emits through
// after a commit.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"stackture/application/ports"
	"stackture/domain/events"
)

// BreakerConfig configures the publisher circuit breaker
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns breaker settings suited to an event bus
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "event-publisher",
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// BreakerPublisher stops calling a failing publisher until it recovers
type BreakerPublisher struct {
	next    ports.EventPublisher
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerPublisher wraps next in a circuit breaker
func NewBreakerPublisher(next ports.EventPublisher, cfg BreakerConfig, logger *zap.Logger) *BreakerPublisher {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the bus.
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &BreakerPublisher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Publish forwards to the wrapped publisher unless the breaker is open,
// in which case gobreaker.ErrOpenState is returned
func (p *BreakerPublisher) Publish(ctx context.Context, domainEvents ...events.DomainEvent) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.next.Publish(ctx, domainEvents...)
	})
	return err
}

// State reports the breaker state
func (p *BreakerPublisher) State() gobreaker.State {
	return p.breaker.State()
}
