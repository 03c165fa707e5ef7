package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome               = "WALLETLINK_HOME"
	EnvClientID           = "WALLETLINK_CLIENT_ID"
	EnvActiveChain        = "WALLETLINK_CHAIN"
	EnvAutoConnect        = "WALLETLINK_AUTO_CONNECT"
	EnvAutoConnectTimeout = "WALLETLINK_AUTO_CONNECT_TIMEOUT_MS"
	EnvStorageBackend     = "WALLETLINK_STORAGE"
	EnvRedisAddr          = "WALLETLINK_REDIS_ADDR"
	EnvFrameURL           = "WALLETLINK_FRAME_URL"
	EnvInjectedURL        = "WALLETLINK_RPC_URL"
	EnvBridgeURL          = "WALLETLINK_BRIDGE_URL"
	EnvLocalPassword      = "WALLETLINK_LOCAL_PASSWORD" // #nosec G101 -- false positive, this is a const name not a credential
	EnvOutputFormat       = "WALLETLINK_OUTPUT_FORMAT"
	EnvVerbose            = "WALLETLINK_VERBOSE"
	EnvLogLevel           = "WALLETLINK_LOG_LEVEL"
	EnvNoColor            = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvClientID); v != "" {
		cfg.ClientID = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvActiveChain); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			cfg.Chains.Active = id
		}
	}

	if v := os.Getenv(EnvAutoConnect); v != "" {
		cfg.Session.AutoConnect = parseBool(v)
	}

	if v := os.Getenv(EnvAutoConnectTimeout); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms > 0 {
			cfg.Session.AutoConnectTimeoutMS = ms
		}
	}

	if v := os.Getenv(EnvStorageBackend); v != "" {
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Storage.Redis.Addr = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvFrameURL); v != "" {
		cfg.Wallets.FrameURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvInjectedURL); v != "" {
		cfg.Wallets.InjectedURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvBridgeURL); v != "" {
		cfg.Wallets.WalletConnect.Bridge = SanitizeURL(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// Wallet and bridge URLs pasted from a browser often carry copy-paste artifacts.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}
