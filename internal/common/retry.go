package common

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// permanentError marks a failure as terminal for Retry.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry stops immediately instead of consuming the
// remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry runs fn up to attempts times with a fixed delay between attempts.
// Every stage with a bounded retry loop (compute simulation, transport
// retries, bundle-status polling) goes through here so total worst-case
// latency stays deterministic: attempts x delay.
//
// fn classifies its own failures: returning Permanent(err) stops the loop
// and surfaces the unwrapped error. Context cancellation stops the loop on
// the next wait.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		return fmt.Errorf("retry attempts must be >= 1, got %d", attempts)
	}

	var last error
	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}
		last = err

		if i == attempts-1 {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return last
}

// sleep is a context-aware wait; pipelines share workers, so a blocked
// attempt must not stall its neighbours past cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sleep exposes the context-aware wait for pollers that pace themselves
// outside of Retry.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}
