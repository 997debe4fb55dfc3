// Package retry reconnects to startup dependencies with exponential backoff.
// It is never used around payouts; a relayed transfer is submitted once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/usdt-market/internal/logging"
)

// Policy configures backoff between attempts
type Policy struct {
	MaxAttempts  int           // attempts including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy waits 1s, 2s, 4s, 8s between five attempts
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait after the given failed attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. bad credentials
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Connect calls fn until it succeeds, returns a permanent error, runs out
// of attempts or ctx is done. name identifies the dependency in logs.
func Connect(ctx context.Context, name string, policy Policy, fn func(ctx context.Context) error) error {
	logger := logging.FromContext(ctx).WithField("dependency", name)
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Connected after retry")
			}
			return nil
		}

		if IsPermanent(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": policy.MaxAttempts,
			"delay":       delay.String(),
		}).WithError(err).Warn("Dependency unavailable, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		}
	}

	return fmt.Errorf("%s unavailable after %d attempts: %w", name, policy.MaxAttempts, err)
}
