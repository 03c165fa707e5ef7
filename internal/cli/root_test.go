package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/output"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// errTestRandom is used for testing non-walletlink error handling.
var errTestRandom = walleterr.New("TEST_ERROR", "some random error")

func TestFormatVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{
			name: "all fields populated",
			info: BuildInfo{Version: "v1.2.3", Commit: "abc1234", Date: "2026-01-15"},
			want: "v1.2.3 (commit: abc1234, built: 2026-01-15)",
		},
		{
			name: "all fields empty",
			info: BuildInfo{},
			want: "dev (commit: unknown, built: unknown)",
		},
		{
			name: "only version empty",
			info: BuildInfo{Commit: "def5678", Date: "2026-02-20"},
			want: "dev (commit: def5678, built: 2026-02-20)",
		},
		{
			name: "only commit empty",
			info: BuildInfo{Version: "v2.0.0", Date: "2026-03-25"},
			want: "v2.0.0 (commit: unknown, built: 2026-03-25)",
		},
		{
			name: "only date empty",
			info: BuildInfo{Version: "v3.0.0", Commit: "0a9b012"},
			want: "v3.0.0 (commit: 0a9b012, built: unknown)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, FormatVersion(tc.info))
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil error", err: nil, want: walleterr.ExitSuccess},
		{name: "general", err: walleterr.ErrGeneral, want: walleterr.ExitGeneral},
		{name: "invalid input", err: walleterr.ErrInvalidInput, want: walleterr.ExitInput},
		{name: "no active wallet", err: walleterr.ErrNoActiveWallet, want: walleterr.ExitInput},
		{name: "unsupported wallet", err: walleterr.ErrUnsupportedWallet, want: walleterr.ExitInput},
		{name: "not authorized", err: walleterr.ErrNotAuthorized, want: walleterr.ExitAuth},
		{name: "user rejected", err: walleterr.ErrUserRejected, want: walleterr.ExitPermission},
		{name: "wallet not installed", err: walleterr.ErrWalletNotInstalled, want: walleterr.ExitNotFound},
		{name: "chain not found", err: walleterr.ErrChainNotFound, want: walleterr.ExitNotFound},
		{name: "auto-connect timeout", err: walleterr.ErrAutoConnectTimeout, want: walleterr.ExitTimeout},
		{name: "login timeout", err: walleterr.ErrLoginTimeout, want: walleterr.ExitTimeout},
		{name: "custom error", err: errTestRandom, want: walleterr.ExitGeneral},
		{name: "plain error returns general", err: assert.AnError, want: walleterr.ExitGeneral},
		{
			name: "wrapped error preserves exit code",
			err:  walleterr.Wrap(walleterr.ErrNotAuthorized, "wallet locked"),
			want: walleterr.ExitAuth,
		},
		{
			name: "suggestion preserves exit code",
			err:  walleterr.WithSuggestion(walleterr.ErrUserRejected, "approve the request in your wallet"),
			want: walleterr.ExitPermission,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

// saveGlobals saves all package-level globals and restores them on cleanup.
func saveGlobals(t *testing.T) {
	t.Helper()
	origCfg := cfg
	origLogger := logger
	origFormatter := formatter
	origCmdCtx := cmdCtx
	origHomeDir := homeDir
	origOutputFormat := outputFormat
	origVerbose := verbose
	t.Cleanup(func() {
		cfg = origCfg
		logger = origLogger
		formatter = origFormatter
		cmdCtx = origCmdCtx
		homeDir = origHomeDir
		outputFormat = origOutputFormat
		verbose = origVerbose
	})
}

// TestGlobalGetters tests Config(), Logger() and Formatter().
//
//nolint:paralleltest // mutates package-level globals
func TestGlobalGetters(t *testing.T) {
	saveGlobals(t)

	testCfg := config.Defaults()
	testLogger := config.NullLogger()
	testFmt := output.NewFormatter(output.FormatText, nil)

	cfg = testCfg
	logger = testLogger
	formatter = testFmt

	assert.Equal(t, testCfg, Config())
	assert.Equal(t, testLogger, Logger())
	assert.Equal(t, testFmt, Formatter())
}

//nolint:paralleltest // mutates package-level globals
func TestCleanup(t *testing.T) {
	saveGlobals(t)

	logger = nil
	cmdCtx = nil
	assert.NotPanics(t, cleanup)

	logger = config.NullLogger()
	cmdCtx = NewCommandContext(config.Defaults(), logger, nil)
	assert.NotPanics(t, cleanup)

	// A logger whose file is already closed.
	closed, err := config.NewLogger(config.LogLevelDebug, filepath.Join(t.TempDir(), "test.log"))
	require.NoError(t, err)
	require.NoError(t, closed.Close())
	logger = closed
	assert.NotPanics(t, cleanup)
}

func TestPrintError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printError(&buf, walleterr.WithSuggestion(walleterr.ErrNoActiveWallet, "Run 'walletlink connect <wallet>'"))
	assert.Contains(t, buf.String(), "walletlink connect")
}

//nolint:paralleltest // mutates package-level globals
func TestInitGlobals(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, home string)
		verbose bool
		format  string
		check   func(t *testing.T, home string)
	}{
		{
			name: "defaults without config file",
			check: func(t *testing.T, home string) {
				assert.Equal(t, home, cfg.Home)
				assert.Empty(t, cfg.Storage.Path)
				assert.Equal(t, filepath.Join(home, "storage"), cfg.GetStoragePath())
				assert.Equal(t, filepath.Join(home, "walletlink.log"), cfg.Logging.File)
			},
		},
		{
			name:    "verbose flag",
			verbose: true,
			check: func(t *testing.T, _ string) {
				assert.True(t, cfg.Output.Verbose)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name:   "output format flag",
			format: "json",
			check: func(t *testing.T, _ string) {
				assert.Equal(t, "json", cfg.Output.DefaultFormat)
				assert.Equal(t, output.FormatJSON, formatter.Format())
			},
		},
		{
			name: "existing config file",
			setup: func(t *testing.T, home string) {
				c := config.Defaults()
				c.Home = home
				c.Chains.Active = 137
				c.Logging.Level = "off"
				require.NoError(t, config.Save(c, config.Path(home)))
			},
			check: func(t *testing.T, _ string) {
				assert.Equal(t, int64(137), cfg.Chains.Active)
				assert.Equal(t, "off", cfg.Logging.Level)
			},
		},
		{
			name: "environment overrides file",
			setup: func(t *testing.T, _ string) {
				t.Setenv(config.EnvActiveChain, "10")
			},
			check: func(t *testing.T, _ string) {
				assert.Equal(t, int64(10), cfg.Chains.Active)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saveGlobals(t)
			home := t.TempDir()
			homeDir = home
			verbose = tt.verbose
			outputFormat = tt.format
			if tt.setup != nil {
				tt.setup(t, home)
			}

			require.NoError(t, initGlobals())
			t.Cleanup(cleanup)

			require.NotNil(t, logger)
			require.NotNil(t, formatter)
			require.NotNil(t, cmdCtx)
			assert.Same(t, cfg, cmdCtx.Config)
			tt.check(t, home)
		})
	}
}

//nolint:paralleltest // mutates package-level globals
func TestInitGlobals_EnvHome(t *testing.T) {
	saveGlobals(t)
	home := t.TempDir()
	homeDir = ""
	t.Setenv(config.EnvHome, home)

	require.NoError(t, initGlobals())
	t.Cleanup(cleanup)
	assert.Equal(t, home, cfg.Home)
}
