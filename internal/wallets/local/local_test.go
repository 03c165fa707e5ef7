package local_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/metrics"
	"github.com/mrz1836/walletlink/internal/storage"
	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets/local"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	// testMnemonicAddress is the address at m/44'/60'/0'/0/0 for testMnemonic.
	testMnemonicAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	testPrivateKey      = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testKeyAddress      = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

type fixture struct {
	backend *storage.Memory
	factory *wallet.Factory
	desc    *wallet.Descriptor
}

func newFixture(cfg local.Config) *fixture {
	cfg.ScryptWorkFactor = 10
	backend := storage.NewMemory()
	return &fixture{
		backend: backend,
		desc:    local.Descriptor(cfg),
		factory: wallet.NewFactory(wallet.Options{
			Chain:       chains.Minimal(1),
			Coordinator: backend.Scope(wallet.CoordinatorScope),
			Metrics:     &metrics.Metrics{},
		}, backend.Scope),
	}
}

func (f *fixture) instance(t *testing.T) wallet.Instance {
	t.Helper()
	inst := f.factory.Create(f.desc)
	t.Cleanup(func() { _ = inst.Disconnect(context.Background()) })
	return inst
}

func withPassword(pw string, extra map[string]any) wallet.Params {
	p := wallet.Params{}
	p.Set(local.ParamPassword, pw)
	for k, v := range extra {
		p.Set(k, v)
	}
	return p
}

func TestDescriptor(t *testing.T) {
	t.Parallel()
	assert.False(t, local.Descriptor(local.Config{}).Headless)

	headless := local.Descriptor(local.Config{Password: func(context.Context) (string, error) { return "pw", nil }})
	assert.True(t, headless.Headless)
	assert.Equal(t, local.ID, headless.ID)
	assert.True(t, headless.Installed(context.Background()))
}

func TestConnect_GeneratesThenUnlocks(t *testing.T) {
	t.Parallel()
	f := newFixture(local.Config{})

	first, err := f.instance(t).Connect(context.Background(), withPassword("hunter2", nil))
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, first)

	stored := f.backend.Snapshot(local.ID)
	assert.Contains(t, stored["encryptedKey"], "BEGIN AGE ENCRYPTED FILE")
	assert.NotContains(t, stored[wallet.KeyLastConnectedParams], "hunter2", "secrets are never persisted")

	again, err := f.instance(t).Connect(context.Background(), withPassword("hunter2", nil))
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestConnect_WrongPassword(t *testing.T) {
	t.Parallel()
	f := newFixture(local.Config{})

	_, err := f.instance(t).Connect(context.Background(), withPassword("right", nil))
	require.NoError(t, err)

	_, err = f.instance(t).Connect(context.Background(), withPassword("wrong", nil))
	require.ErrorIs(t, err, walleterr.ErrDecryptionFailed)
}

func TestConnect_PasswordRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(local.Config{})

	_, err := f.instance(t).Connect(context.Background(), wallet.Params{})
	require.ErrorIs(t, err, walleterr.ErrInvalidInput)
}

func TestConnect_Import(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		param string
		value string
		want  string
	}{
		{"private key", local.ParamPrivateKey, testPrivateKey, testKeyAddress},
		{"mnemonic", local.ParamMnemonic, testMnemonic, testMnemonicAddress},
		{"mnemonic with extra spaces", local.ParamMnemonic, "  " + testMnemonic + "\n", testMnemonicAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(local.Config{})

			addr, err := f.instance(t).Connect(context.Background(), withPassword("pw", map[string]any{tt.param: tt.value}))
			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress(tt.want), addr)

			params := f.backend.Snapshot(local.ID)[wallet.KeyLastConnectedParams]
			assert.NotContains(t, params, tt.param)

			unlocked, err := f.instance(t).Connect(context.Background(), withPassword("pw", nil))
			require.NoError(t, err)
			assert.Equal(t, addr, unlocked, "the imported key replaces the stored one")
		})
	}
}

func TestConnect_InvalidImport(t *testing.T) {
	t.Parallel()
	f := newFixture(local.Config{})

	_, err := f.instance(t).Connect(context.Background(), withPassword("pw", map[string]any{local.ParamMnemonic: "not a real mnemonic"}))
	require.ErrorIs(t, err, walleterr.ErrInvalidMnemonic)

	_, err = f.instance(t).Connect(context.Background(), withPassword("pw", map[string]any{local.ParamPrivateKey: "0xzz"}))
	require.ErrorIs(t, err, walleterr.ErrInvalidInput)
}

func TestAutoConnect(t *testing.T) {
	t.Parallel()

	t.Run("no stored key", func(t *testing.T) {
		t.Parallel()
		f := newFixture(local.Config{Password: func(context.Context) (string, error) { return "pw", nil }})
		_, err := f.instance(t).AutoConnect(context.Background(), nil)
		require.ErrorIs(t, err, walleterr.ErrNotAuthorized)
	})

	t.Run("no password source", func(t *testing.T) {
		t.Parallel()
		f := newFixture(local.Config{})
		_, err := f.instance(t).Connect(context.Background(), withPassword("pw", nil))
		require.NoError(t, err)

		_, err = f.instance(t).AutoConnect(context.Background(), nil)
		require.ErrorIs(t, err, walleterr.ErrNotAuthorized)
	})

	t.Run("password source unlocks", func(t *testing.T) {
		t.Parallel()
		f := newFixture(local.Config{Password: func(context.Context) (string, error) { return "pw", nil }})
		want, err := f.instance(t).Connect(context.Background(), wallet.Params{ChainID: 137})
		require.NoError(t, err)

		inst := f.instance(t)
		got, err := inst.AutoConnect(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		chainID, err := inst.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(137), chainID, "stored chain is restored")
	})
}

func TestSignerAndChain(t *testing.T) {
	t.Parallel()
	f := newFixture(local.Config{})
	inst := f.instance(t)

	_, err := inst.Signer(context.Background())
	require.ErrorIs(t, err, walleterr.ErrWalletNotConnected)

	addr, err := inst.Connect(context.Background(), withPassword("pw", map[string]any{local.ParamPrivateKey: testPrivateKey}))
	require.NoError(t, err)

	signer, err := inst.Signer(context.Background())
	require.NoError(t, err)
	sig, err := signer.SignMessage(context.Background(), []byte("hello"))
	require.NoError(t, err)
	recovered, err := wallet.RecoverMessageSigner([]byte("hello"), sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)

	events := make(chan wallet.Event, 4)
	sub := inst.Subscribe(events)
	defer sub.Unsubscribe()

	require.NoError(t, inst.SwitchChain(context.Background(), 10))
	chainID, err := inst.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), chainID)

	ev := <-events
	assert.Equal(t, wallet.EventChange, ev.Kind)
	assert.Equal(t, int64(10), ev.ChainID)

	require.ErrorIs(t, inst.SwitchChain(context.Background(), 0), walleterr.ErrInvalidInput)
}
