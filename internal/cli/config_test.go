package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/output"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// newConfigCmd returns a command wired to a context with cfg and a formatter
// writing format to the returned buffer.
func newConfigCmd(t *testing.T, c *config.Config, format output.Format) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	SetCmdContext(cmd, NewCommandContext(c, config.NullLogger(), output.NewFormatter(format, &buf)))
	return cmd, &buf
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Defaults()
	c.Home = t.TempDir()
	c.Storage.Redis.Password = "hunter2"
	c.Session.SignerWallet = "local"
	return c
}

func TestRunConfigGet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "int", path: "chains.active", want: "1\n"},
		{name: "bool", path: "session.auto_connect", want: "true\n"},
		{name: "nested string", path: "wallets.walletconnect.bridge", want: config.DefaultBridgeURL + "\n"},
		{name: "omitempty set", path: "session.signer_wallet", want: "local\n"},
		{name: "section", path: "output", want: "color: auto\ndefault_format: auto\nverbose: false\n"},
		{name: "unknown leaf", path: "logging.colour", wantErr: walleterr.ErrNotFound},
		{name: "through scalar", path: "chains.active.id", wantErr: walleterr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, buf := newConfigCmd(t, testConfig(t), output.FormatText)

			err := runConfigGet(cmd, []string{tt.path})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRunConfigShow_MasksSecrets(t *testing.T) {
	t.Parallel()

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		cmd, buf := newConfigCmd(t, testConfig(t), output.FormatText)
		require.NoError(t, runConfigShow(cmd, nil))
		assert.Contains(t, buf.String(), "********")
		assert.NotContains(t, buf.String(), "hunter2")
		assert.Contains(t, buf.String(), "signer_wallet: local")
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		cmd, buf := newConfigCmd(t, testConfig(t), output.FormatJSON)
		require.NoError(t, runConfigShow(cmd, nil))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		redis := got["storage"].(map[string]any)["redis"].(map[string]any)
		assert.Equal(t, "********", redis["password"])
	})

	t.Run("empty password stays empty", func(t *testing.T) {
		t.Parallel()
		c := testConfig(t)
		c.Storage.Redis.Password = ""
		cmd, buf := newConfigCmd(t, c, output.FormatText)
		require.NoError(t, runConfigShow(cmd, nil))
		assert.NotContains(t, buf.String(), "********")
	})
}

func TestSetConfigValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		value   string
		check   func(t *testing.T, c *config.Config)
		wantErr error
	}{
		{
			name: "int", path: "chains.active", value: "137",
			check: func(t *testing.T, c *config.Config) { assert.Equal(t, int64(137), c.Chains.Active) },
		},
		{
			name: "bool", path: "session.auto_connect", value: "false",
			check: func(t *testing.T, c *config.Config) { assert.False(t, c.Session.AutoConnect) },
		},
		{
			name: "string", path: "wallets.frame_url", value: "http://127.0.0.1:9999",
			check: func(t *testing.T, c *config.Config) { assert.Equal(t, "http://127.0.0.1:9999", c.Wallets.FrameURL) },
		},
		{
			name: "omitted key", path: "session.signer_wallet", value: "frame",
			check: func(t *testing.T, c *config.Config) { assert.Equal(t, "frame", c.Session.SignerWallet) },
		},
		{
			name: "map entry", path: "chains.rpc_overrides.137", value: "https://polygon.example.com",
			check: func(t *testing.T, c *config.Config) {
				assert.Equal(t, "https://polygon.example.com", c.Chains.RPCOverrides[137])
			},
		},
		{
			name: "numeric string kept as string", path: "storage.redis.password", value: "1234",
			check: func(t *testing.T, c *config.Config) { assert.Equal(t, "1234", c.Storage.Redis.Password) },
		},
		{
			name: "enum", path: "storage.backend", value: "leveldb",
			check: func(t *testing.T, c *config.Config) { assert.Equal(t, "leveldb", c.Storage.Backend) },
		},
		{name: "bad enum", path: "logging.level", value: "verbose", wantErr: walleterr.ErrInvalidInput},
		{name: "bad type", path: "login.port", value: "eighty", wantErr: walleterr.ErrInvalidInput},
		{name: "unknown key", path: "output.colour", value: "never", wantErr: walleterr.ErrNotFound},
		{name: "unknown section", path: "networks.eth.rpc", value: "x", wantErr: walleterr.ErrNotFound},
		{name: "through scalar", path: "chains.active.id", value: "1", wantErr: walleterr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := testConfig(t)

			got, err := setConfigValue(c, tt.path, tt.value)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
			assert.Equal(t, c.Home, got.Home)
		})
	}
}

func TestSetConfigValue_LeavesInputUntouched(t *testing.T) {
	t.Parallel()
	c := testConfig(t)

	_, err := setConfigValue(c, "chains.active", "10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Chains.Active)
}

//nolint:paralleltest // mutates the configForce flag
func TestRunConfigInit(t *testing.T) {
	c := testConfig(t)
	cmd, buf := newConfigCmd(t, c, output.FormatText)
	configForce = false
	t.Cleanup(func() { configForce = false })

	require.NoError(t, runConfigInit(cmd, nil))
	assert.Contains(t, buf.String(), "Configuration initialized at")

	saved, err := config.Load(config.Path(c.Home))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Home, "storage"), saved.Storage.Path)
	assert.Equal(t, filepath.Join(c.Home, "walletlink.log"), saved.Logging.File)

	err = runConfigInit(cmd, nil)
	require.ErrorIs(t, err, walleterr.ErrGeneral)

	configForce = true
	require.NoError(t, runConfigInit(cmd, nil))
}

func TestRunConfigSet_WritesFile(t *testing.T) {
	t.Parallel()
	c := testConfig(t)
	cmd, buf := newConfigCmd(t, c, output.FormatText)

	require.NoError(t, runConfigSet(cmd, []string{"chains.active", "8453"}))
	assert.Equal(t, "Set chains.active = 8453\n", buf.String())

	info, err := os.Stat(config.Path(c.Home))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	saved, err := config.Load(config.Path(c.Home))
	require.NoError(t, err)
	assert.Equal(t, int64(8453), saved.Chains.Active)

	require.Error(t, runConfigSet(cmd, []string{"nope.key", "1"}))
}
