package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/output"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

//nolint:paralleltest // mutates the chainsTestnets flag
func TestRunChains(t *testing.T) {
	t.Cleanup(func() { chainsTestnets = false })

	chainsTestnets = false
	cmd, buf := newConfigCmd(t, testConfig(t), output.FormatText)
	require.NoError(t, runChains(cmd, nil))
	assert.Regexp(t, `137\s+polygon\s+Polygon Mainnet\s+MATIC`, buf.String())
	assert.NotContains(t, buf.String(), "sepolia")

	chainsTestnets = true
	cmd, buf = newConfigCmd(t, testConfig(t), output.FormatJSON)
	require.NoError(t, runChains(cmd, nil))

	var list []chains.Chain
	require.NoError(t, json.Unmarshal(buf.Bytes(), &list))
	var slugs []string
	for _, c := range list {
		slugs = append(slugs, c.Slug)
	}
	assert.Contains(t, slugs, "sepolia")
	assert.Contains(t, slugs, "ethereum")
}

func TestRunChainsShow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		arg     string
		want    []string
		wantErr error
	}{
		{name: "slug", arg: "base", want: []string{"Base", "8453 (0x2105)"}},
		{name: "id", arg: "11155111", want: []string{"Sepolia", "Testnet:", "true"}},
		{name: "unknown", arg: "atlantis", wantErr: walleterr.ErrChainNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, buf := newConfigCmd(t, testConfig(t), output.FormatText)
			err := runChainsShow(cmd, []string{tt.arg})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestRunChainsShow_JSON(t *testing.T) {
	t.Parallel()
	cmd, buf := newConfigCmd(t, testConfig(t), output.FormatJSON)
	require.NoError(t, runChainsShow(cmd, []string{"polygon"}))

	var c chains.Chain
	require.NoError(t, json.Unmarshal(buf.Bytes(), &c))
	assert.Equal(t, int64(137), c.ChainID)
}
