package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPollInterval is used when Poll is given a non-positive interval.
const DefaultPollInterval = 250 * time.Millisecond

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Poll evaluates cond every interval until it returns true, the timeout
// elapses (ErrWaitTimeout) or ctx is done. Errors from cond are treated as
// "not yet" and the last one is wrapped into the timeout error. cond always
// runs at least once.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := cond(ctx)
		if ok && err == nil {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			lastErr = err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastErr != nil {
				return fmt.Errorf("%w after %v: %w", ErrWaitTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %v", ErrWaitTimeout, timeout)
		}
		if err := Sleep(ctx, min(interval, remaining)); err != nil {
			return err
		}
	}
}

// WaitExists polls until selector matches an element.
func WaitExists(ctx context.Context, p Page, selector string, timeout time.Duration) error {
	err := Poll(ctx, timeout, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		return p.Exists(ctx, selector)
	})
	if errors.Is(err, ErrWaitTimeout) {
		return fmt.Errorf("waiting for %s: %w", selector, err)
	}
	return err
}
