package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/autopeer-io/amrfleet/pkg/log"
)

// RetryConfig configures exponential backoff for a single publish.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the retry policy used by the daemon.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		Multiplier:      2.0,
	}
}

// BreakerConfig configures the circuit breaker in front of the broker.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker. Zero means 5.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open. Zero means 30s.
	OpenTimeout time.Duration
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-dispatch",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// publish sends m through the breaker, retrying transient failures. An open
// breaker fails the message without retrying.
func (d *Dispatcher) publish(ctx context.Context, m message) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		_, err := d.cb.Execute(func() (any, error) {
			return nil, d.pub.Publish(ctx, m.topic, d.qos, m.retain, m.payload)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.retry.InitialInterval
	policy.MaxInterval = d.retry.MaxInterval
	policy.MaxElapsedTime = d.retry.MaxElapsedTime
	policy.Multiplier = d.retry.Multiplier

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
