package usecase

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffUnit = time.Second
)

// Backoff computes unit*2^attempt plus unit*U(0,1) of jitter. The random source
// is seeded explicitly so delays are reproducible.
type Backoff struct {
	unit time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBackoff(unit time.Duration, seed uint64) *Backoff {
	if unit <= 0 {
		unit = defaultBackoffUnit
	}
	return &Backoff{
		unit: unit,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Delay returns the wait after a failed attempt, counting attempts from 0.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}

	b.mu.Lock()
	jitter := b.rng.Float64()
	b.mu.Unlock()

	return b.unit*time.Duration(1<<attempt) + time.Duration(jitter*float64(b.unit))
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy retries every error identically up to MaxAttempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     *Backoff
	Sleep       SleepFunc
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = NewBackoff(defaultBackoffUnit, uint64(time.Now().UnixNano()))
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Retry runs op until it succeeds, attempts run out or ctx ends. It never sleeps
// after the final attempt and returns the number of attempts made.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	policy = policy.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		out, err := op(ctx, attempt)
		if err == nil {
			return out, attempt + 1, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts-1 {
			return zero, attempt + 1, lastErr
		}
		if sleepErr := policy.Sleep(ctx, policy.Backoff.Delay(attempt)); sleepErr != nil {
			return zero, attempt + 1, sleepErr
		}
	}
	return zero, policy.MaxAttempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
