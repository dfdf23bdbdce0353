package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

// ErrNotFound is a terminal, non-error outcome: the upstream has nothing for the query.
var ErrNotFound = errors.New("not found")

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s", e.Code, e.Body)
}

type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	Retryable      func(error) bool

	// OnRetry is called before sleeping ahead of attempt n+1.
	OnRetry func(attempt int, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       8 * time.Second,
		AttemptTimeout: 10 * time.Second,
		Retryable:      IsRetryable,
	}
}

// IsRetryable reports timeouts, dropped connections, 429 and 5xx as transient.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == fasthttp.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, fasthttp.ErrTimeout) ||
		errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, fasthttp.ErrConnectionClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Do runs fn until it succeeds, fails terminally or runs out of attempts.
// Each attempt gets its own timeout. ErrNotFound is returned as-is on the first hit.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}

	backoff := retry.NewExponential(p.BaseDelay)
	if p.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(p.MaxAttempts-1), backoff)

	var result T
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		v, err := fn(attemptCtx)
		if err == nil {
			result = v
			return nil
		}
		// the caller's own deadline is not ours to retry
		if ctx.Err() != nil {
			return err
		}
		if !p.Retryable(err) {
			return err
		}
		if attempt < p.MaxAttempts && p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
