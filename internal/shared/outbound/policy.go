// Package outbound bounds calls that leave the process (object storage, the
// message broker) with a per-attempt timeout and an exponential retry budget.
package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout = 5 * time.Second
	defaultBase    = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

type Policy struct {
	Timeout  time.Duration
	Attempts int
	Base     time.Duration
}

func NewPolicy(timeout time.Duration, attempts int) Policy {
	return Policy{Timeout: timeout, Attempts: attempts}
}

// Do runs fn until it succeeds, returns a Permanent error, or the attempts
// run out. Every attempt gets its own deadline derived from ctx.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(p.attempts()-1),
		retry.WithCappedDuration(maxBackoff, retry.NewExponential(p.base())))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout())
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		return retry.RetryableError(err)
	})
}

func (p Policy) attempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

func (p Policy) timeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultTimeout
	}
	return p.Timeout
}

func (p Policy) base() time.Duration {
	if p.Base <= 0 {
		return defaultBase
	}
	return p.Base
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
