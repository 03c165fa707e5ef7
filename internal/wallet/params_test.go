package wallet_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/wallet"
)

func TestParams_JSONLayout(t *testing.T) {
	t.Parallel()

	inner := wallet.Params{}
	inner.Set(wallet.ParamOAuthProvider, "google")

	p := wallet.Params{
		ChainID:        137,
		PersonalWallet: &wallet.Record{WalletID: "embedded", ConnectParams: &inner},
	}
	p.Set("email", "a@b.co")

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"email": "a@b.co",
		"chainId": 137,
		"personalWallet": {"walletId": "embedded", "connectParams": {"oauthProvider": "google"}}
	}`, string(data))

	var back wallet.Params
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, int64(137), back.ChainID)
	assert.Equal(t, "a@b.co", back.String("email"))
	require.NotNil(t, back.PersonalWallet)
	assert.Equal(t, "embedded", back.PersonalWallet.WalletID)
	assert.Equal(t, "google", back.PersonalWallet.Params().String(wallet.ParamOAuthProvider))
}

func TestParams_ReservedFieldsIgnored(t *testing.T) {
	t.Parallel()
	p := wallet.Params{ChainID: 1}
	p.Set("chainId", 999)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chainId": 1}`, string(data))
}

func TestParams_UnmarshalErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{"not an object", `[1,2]`},
		{"bad chain id", `{"chainId": "one"}`},
		{"bad personal wallet", `{"personalWallet": 5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var p wallet.Params
			require.Error(t, json.Unmarshal([]byte(tt.input), &p))
		})
	}
}

func TestMerge_ExplicitWins(t *testing.T) {
	t.Parallel()
	defaults := wallet.Params{ChainID: 1}
	defaults.Set("a", "default")
	defaults.Set("b", "default")

	explicit := wallet.Params{ChainID: 10}
	explicit.Set("b", "explicit")

	got := wallet.Merge(defaults, explicit)
	assert.Equal(t, int64(10), got.ChainID)
	assert.Equal(t, "default", got.String("a"))
	assert.Equal(t, "explicit", got.String("b"))
	assert.Equal(t, "default", defaults.String("b"), "defaults are not mutated")

	kept := wallet.Merge(defaults, wallet.Params{})
	assert.Equal(t, int64(1), kept.ChainID)
}

func TestParams_WithoutAndClone(t *testing.T) {
	t.Parallel()
	p := wallet.Params{}
	p.Set("keep", 1)
	p.Set("drop", 2)

	out := p.Without("drop", "missing")
	assert.True(t, out.Has("keep"))
	assert.False(t, out.Has("drop"))
	assert.True(t, p.Has("drop"))

	c := p.Clone()
	c.Set("keep", 3)
	assert.Equal(t, 1, p.Fields["keep"])
}

func TestRecord_RoundTrip(t *testing.T) {
	t.Parallel()
	params := wallet.Params{ChainID: 8453}
	rec := wallet.Record{WalletID: "frame", ConnectParams: &params}

	s, err := rec.Encode()
	require.NoError(t, err)

	back, err := wallet.ParseRecord(s)
	require.NoError(t, err)
	assert.Equal(t, "frame", back.WalletID)
	assert.Equal(t, int64(8453), back.Params().ChainID)
}

func TestParseRecord_Invalid(t *testing.T) {
	t.Parallel()
	_, err := wallet.ParseRecord("{oops")
	require.Error(t, err)

	_, err = wallet.ParseRecord(`{"connectParams": {}}`)
	require.ErrorIs(t, err, wallet.ErrEmptyWalletID)

	rec, err := wallet.ParseRecord(`{"walletId": "frame"}`)
	require.NoError(t, err)
	assert.Equal(t, wallet.Params{}, rec.Params())
}
