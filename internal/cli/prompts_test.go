package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/config"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

//nolint:paralleltest // mutates prompt hooks and the environment
func TestPasswordSource(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		calls := withMockPrompts(t, "prompted", true)
		t.Setenv(config.EnvLocalPassword, "from-env")

		pw, err := passwordSource()(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "from-env", pw)
		assert.Zero(t, *calls)
	})

	t.Run("non-terminal without environment", func(t *testing.T) {
		calls := withMockPrompts(t, "prompted", false)
		t.Setenv(config.EnvLocalPassword, "")

		_, err := passwordSource()(context.Background())
		require.ErrorIs(t, err, walleterr.ErrNotAuthorized)
		assert.Contains(t, err.Error(), walleterr.ErrNotAuthorized.Message)
		assert.Zero(t, *calls)
	})

	t.Run("terminal prompts once", func(t *testing.T) {
		calls := withMockPrompts(t, "prompted", true)
		t.Setenv(config.EnvLocalPassword, "")

		src := passwordSource()
		for range 3 {
			pw, err := src(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "prompted", pw)
		}
		assert.Equal(t, 1, *calls)
	})

	t.Run("prompt error is kept", func(t *testing.T) {
		withMockPrompts(t, "", true)
		t.Setenv(config.EnvLocalPassword, "")
		promptPasswordFn = func(_ string) ([]byte, error) { return nil, assert.AnError }

		src := passwordSource()
		_, err := src(context.Background())
		require.ErrorIs(t, err, assert.AnError)
		_, err = src(context.Background())
		require.ErrorIs(t, err, assert.AnError)
	})
}

func TestDisplayURI(t *testing.T) {
	t.Parallel()
	const uri = "wc:8a5e5bdc-a0e4-4702-ba63-8f1a5655744f@1?bridge=https%3A%2F%2Fbridge.example.com&key=41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a"

	t.Run("text only", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, displayURI(&buf, "")(uri))
		assert.Contains(t, buf.String(), uri)
		assert.NotContains(t, buf.String(), "QR code written")
	})

	t.Run("png", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "pair.png")
		require.NoError(t, displayURI(&buf, path)(uri))
		assert.Contains(t, buf.String(), "QR code written to "+path)

		data, err := os.ReadFile(path) //nolint:gosec // test temp file
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), data[:4])
	})

	t.Run("png write failure", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))
		path := filepath.Join(blocker, "pair.png")
		require.Error(t, displayURI(&buf, path)(uri))
	})
}
