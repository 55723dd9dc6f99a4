// Package retry runs transient operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"conduit/internal/logger"
)

// Policy controls how often and how patiently an operation is retried.
//
// Zero values are given defaults: 3 attempts, 1s initial delay, factor 2.
// MaxDelay of zero leaves the delay uncapped.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy is used for connection establishment and remote fetches.
var DefaultPolicy = Policy{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.InitialDelay == 0 && p.BackoffFactor == 0 {
		p.InitialDelay = time.Second
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 2
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffFactor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// transientError marks an error as safe to retry.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err looks like a temporary I/O fault:
// errors wrapped with Transient, network timeouts, refused or reset
// connections and unexpected EOFs. Context errors are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// sleep is swapped in tests.
var sleep = sleepWithContext

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	log := logger.FromContext(ctx).WithName("conduit:retry")

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			log.Error("operation failed after retries", "op", op, "attempts", p.MaxAttempts, "error", err)
			return err
		}
		d := p.Delay(attempt - 1)
		log.Warn("attempt failed, retrying", "op", op, "attempt", attempt, "max_attempts", p.MaxAttempts, "delay", d.String(), "error", err)
		if serr := sleep(ctx, d); serr != nil {
			return serr
		}
	}
	return err
}

// sleepWithContext sleeps for d but returns early if ctx is canceled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
