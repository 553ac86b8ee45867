package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often and how long an idempotent operation is tried.
type RetryPolicy struct {
	// Attempts is the number of retries after the first try.
	Attempts uint64
	// BaseDelay is the first backoff interval; it doubles on every retry.
	BaseDelay time.Duration
	// Timeout limits a single attempt. Zero means no per-attempt limit.
	Timeout time.Duration
}

// DefaultRetryPolicy is used when a service is built without an explicit policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 50 * time.Millisecond, Timeout: 5 * time.Second}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	return retry.WithMaxRetries(p.Attempts, retry.NewExponential(base))
}

func (p RetryPolicy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// RetryValue runs fn until it succeeds, fails with a non-transient error, or
// the policy is exhausted. Only use it for operations that are safe to repeat.
func RetryValue[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.DoValue(ctx, p.backoff(), func(ctx context.Context) (T, error) {
		attemptCtx, cancel := p.attemptContext(ctx)
		defer cancel()

		v, err := fn(attemptCtx)
		if err != nil && ctx.Err() == nil && IsTransient(err) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}

// Retry is RetryValue for operations without a result.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// IsTransient reports whether err is a connection-level failure that may
// succeed when repeated.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
