package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/output"
	"github.com/mrz1836/walletlink/internal/wallet"
)

func TestRunWallets(t *testing.T) {
	t.Parallel()
	e := newSessionEnv()
	e.wallets[0].Recommended = true
	e.wallets[1].IsInstalled = func(context.Context) bool { return false }
	e.wallets[1].Headless = true

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		cmd, buf := e.command(t, output.FormatText)
		require.NoError(t, runWallets(cmd, nil))

		text := buf.String()
		assert.Contains(t, text, "ID")
		assert.Regexp(t, `alpha\s+alpha\s+available\s+recommended`, text)
		assert.Regexp(t, `beta\s+beta\s+not found\s+headless`, text)
		assert.Regexp(t, `smart\s+smart\s+available\s+built on alpha`, text)
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		cmd, buf := e.command(t, output.FormatJSON)
		require.NoError(t, runWallets(cmd, nil))

		var views []walletView
		require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
		require.Len(t, views, 3)
		assert.Equal(t, walletView{ID: "alpha", Name: "alpha", Installed: true, Recommended: true}, views[0])
		assert.False(t, views[1].Installed)
		assert.Equal(t, []string{"alpha"}, views[2].Personal)
	})
}

func TestDescribeWallets_ProbesConcurrently(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	probe := func(context.Context) bool {
		started <- struct{}{}
		<-release
		return true
	}
	list := []*wallet.Descriptor{
		{ID: "a", IsInstalled: probe},
		{ID: "b", IsInstalled: probe},
	}

	done := make(chan []walletView)
	go func() { done <- describeWallets(context.Background(), list) }()

	<-started
	<-started
	close(release)

	views := <-done
	assert.True(t, views[0].Installed)
	assert.True(t, views[1].Installed)
}
