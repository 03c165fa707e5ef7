package connection

import (
	"context"
	"time"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// withTimeout runs fn and waits at most d for its result. On expiry it
// returns ErrAutoConnectTimeout; fn keeps running and its late result is
// dropped.
func withTimeout[T any](ctx context.Context, d time.Duration, walletID string, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.v, r.err
	case <-timer.C:
		return zero, walleterr.WithDetails(walleterr.ErrAutoConnectTimeout, map[string]string{
			"wallet":  walletID,
			"timeout": d.String(),
		})
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
