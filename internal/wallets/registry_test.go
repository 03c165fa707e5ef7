package wallets_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/wallets"
	"github.com/mrz1836/walletlink/internal/wallets/injected"
	"github.com/mrz1836/walletlink/internal/wallets/local"
	"github.com/mrz1836/walletlink/internal/wallets/smart"
	"github.com/mrz1836/walletlink/internal/wallets/walletconnect"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

func TestSupported(t *testing.T) {
	t.Parallel()

	list, err := wallets.Supported(config.Defaults(), wallets.Deps{})
	require.NoError(t, err)

	assert.Equal(t, []string{injected.FrameID, injected.ID, local.ID, smart.ID, walletconnect.ID}, wallets.IDs(list))

	sw, err := wallets.Find(list, smart.ID)
	require.NoError(t, err)
	require.True(t, sw.IsComposite())
	assert.NotNil(t, sw.PersonalOption(local.ID))
}

func TestSupported_NoSmart(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Wallets.Smart.Personal = ""
	list, err := wallets.Supported(cfg, wallets.Deps{})
	require.NoError(t, err)
	assert.NotContains(t, wallets.IDs(list), smart.ID)
}

func TestSupported_InvalidSmart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.SmartWalletConfig)
		wantErr *walleterr.WalletError
	}{
		{"unknown personal", func(s *config.SmartWalletConfig) { s.Personal = "ledger" }, walleterr.ErrUnsupportedWallet},
		{"bad factory", func(s *config.SmartWalletConfig) { s.FactoryAddress = "0x1234" }, walleterr.ErrInvalidAddress},
		{"bad init hash", func(s *config.SmartWalletConfig) { s.InitCodeHash = "0xabc" }, walleterr.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.mutate(&cfg.Wallets.Smart)
			_, err := wallets.Supported(cfg, wallets.Deps{})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	list, err := wallets.Supported(config.Defaults(), wallets.Deps{})
	require.NoError(t, err)

	tests := []struct {
		name           string
		id             string
		wantSuggestion string
	}{
		{"typo", "walletconect", "Did you mean 'walletconnect'?"},
		{"case", "FRAME", "Did you mean 'frame'?"},
		{"unrelated", "hardware", "Run 'walletlink wallets' to list supported wallets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := wallets.Find(list, tt.id)
			require.ErrorIs(t, err, walleterr.ErrUnsupportedWallet)

			var we *walleterr.WalletError
			require.True(t, errors.As(err, &we))
			assert.Contains(t, we.Message, tt.id)
			assert.Equal(t, tt.wantSuggestion, we.Suggestion)
		})
	}
}
