package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	t.Run("returns result", func(t *testing.T) {
		t.Parallel()
		v, err := withTimeout(context.Background(), time.Second, "w1", func(context.Context) (int, error) {
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("returns error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		_, err := withTimeout(context.Background(), time.Second, "w1", func(context.Context) (int, error) {
			return 0, boom
		})
		require.ErrorIs(t, err, boom)
	})

	t.Run("times out without waiting for fn", func(t *testing.T) {
		t.Parallel()
		block := make(chan struct{})
		defer close(block)

		start := time.Now()
		_, err := withTimeout(context.Background(), 20*time.Millisecond, "w1", func(context.Context) (int, error) {
			<-block
			return 1, nil
		})
		require.ErrorIs(t, err, walleterr.ErrAutoConnectTimeout)
		assert.Contains(t, err.Error(), "w1")
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		block := make(chan struct{})
		defer close(block)
		_, err := withTimeout(ctx, time.Minute, "w1", func(context.Context) (int, error) {
			<-block
			return 1, nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
