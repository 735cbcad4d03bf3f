// Package retry runs operations under a retry policy expressed as data.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"NewsPoster/internal/domain"
)

// ErrMaxAttemptsExceeded is returned when every attempt failed with a retryable error.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Policy configures retries.
type Policy struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Multiplier drives exponential growth; ignored when Linear is set.
	Multiplier float64
	// Linear waits BaseDelay*attempt instead of growing exponentially.
	Linear bool
	// Jitter is the fraction (0..1) of each delay that is randomised.
	Jitter float64
	// Classify decides whether an error is worth another attempt.
	Classify func(error) domain.Outcome
	// OnRetry is called before sleeping.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Exponential is base*2^k with jitter, the crawl fetch default.
func Exponential(attempts int, base, maxDelay time.Duration, jitter float64) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: base, MaxDelay: maxDelay, Multiplier: 2, Jitter: jitter}
}

// LinearBackoff waits base, 2*base, 3*base... between attempts.
func LinearBackoff(attempts int, base time.Duration) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: base, Linear: true}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.Classify == nil {
		p.Classify = domain.Classify
	}
	return p
}

// Delay returns the wait before attempt number attempt+1, without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	var d time.Duration
	if p.Linear {
		d = p.BaseDelay * time.Duration(attempt)
	} else {
		d = time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	return time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
}

// Do runs fn until it succeeds, fails fatally, or attempts run out. It returns
// the number of attempts made.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	p := policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if p.Classify(err) != domain.OutcomeRetryable {
			return attempt, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.jittered(p.Delay(attempt))
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, p.MaxAttempts, lastErr)
}
