package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/lems/internal/progression"
)

// BreakerSettings mirrors the CB_* environment knobs.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// Breaker guards a remote store with a circuit breaker. While the circuit is
// open calls fail immediately with gobreaker.ErrOpenState.
type Breaker struct {
	next progression.Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(name string, next progression.Store, s BreakerSettings, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: healthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Breaker{next: next, cb: cb}
}

// healthy reports whether err says nothing about the backend's health.
func healthy(err error) bool {
	return err == nil ||
		errors.Is(err, progression.ErrNotFound) ||
		errors.Is(err, context.Canceled)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Load(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (b *Breaker) Save(ctx context.Context, key string, blob []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Save(ctx, key, blob)
	})
	return err
}

func (b *Breaker) Keys(ctx context.Context, prefix string) ([]string, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Keys(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
