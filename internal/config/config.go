// Package config provides configuration management for walletlink.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/walletlink/internal/fileutil"
)

// Config represents the application configuration.
type Config struct {
	Version  int           `yaml:"version"`
	Home     string        `yaml:"home"`
	ClientID string        `yaml:"client_id"`
	App      AppConfig     `yaml:"app"`
	Chains   ChainsConfig  `yaml:"chains"`
	Session  SessionConfig `yaml:"session"`
	Storage  StorageConfig `yaml:"storage"`
	Wallets  WalletsConfig `yaml:"wallets"`
	Login    LoginConfig   `yaml:"login"`
	Output   OutputConfig  `yaml:"output"`
	Logging  LoggingConfig `yaml:"logging"`
}

// AppConfig describes the application presented to wallets during connect.
type AppConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons,omitempty"`
}

// ChainsConfig defines chain selection settings.
type ChainsConfig struct {
	Active       int64            `yaml:"active"`
	AutoSwitch   bool             `yaml:"auto_switch"`
	RPCOverrides map[int64]string `yaml:"rpc_overrides,omitempty"`
}

// SessionConfig defines connection session behavior.
type SessionConfig struct {
	AutoConnect          bool   `yaml:"auto_connect"`
	AutoConnectTimeoutMS int    `yaml:"auto_connect_timeout_ms"`
	// SignerWallet names a headless wallet connected at startup instead
	// of restoring the last session.
	SignerWallet         string `yaml:"signer_wallet,omitempty"`
}

// StorageConfig selects and configures the key-value store backend.
type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig defines the redis backend connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// WalletsConfig configures the built-in wallet kinds.
type WalletsConfig struct {
	FrameURL            string              `yaml:"frame_url"`
	InjectedURL         string              `yaml:"injected_url"`
	PollIntervalSeconds int                 `yaml:"poll_interval_seconds"`
	RateLimitPerSecond  float64             `yaml:"rate_limit_per_second"`
	WalletConnect       WalletConnectConfig `yaml:"walletconnect"`
	Smart               SmartWalletConfig   `yaml:"smart"`
}

// WalletConnectConfig configures the WalletConnect bridge wallet.
type WalletConnectConfig struct {
	Bridge         string `yaml:"bridge"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SmartWalletConfig configures the smart wallet wrapper.
type SmartWalletConfig struct {
	Personal       string `yaml:"personal"`
	FactoryAddress string `yaml:"factory_address"`
	InitCodeHash   string `yaml:"init_code_hash"`
}

// LoginConfig configures the browser login flow.
type LoginConfig struct {
	DashboardURL   string `yaml:"dashboard_url"`
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// GetHome returns the walletlink home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetClientID returns the application client id.
func (c *Config) GetClientID() string {
	return c.ClientID
}

// GetActiveChain returns the configured active chain id.
func (c *Config) GetActiveChain() int64 {
	return c.Chains.Active
}

// GetAutoConnectTimeout returns the per-stage auto-connect bound.
func (c *Config) GetAutoConnectTimeout() time.Duration {
	if c.Session.AutoConnectTimeoutMS <= 0 {
		return DefaultAutoConnectTimeout
	}
	return time.Duration(c.Session.AutoConnectTimeoutMS) * time.Millisecond
}

// GetStoragePath returns the storage path with the home directory expanded.
func (c *Config) GetStoragePath() string {
	path := c.Storage.Path
	if path == "" {
		path = filepath.Join(c.Home, "storage")
	}
	return ExpandHome(path)
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default walletlink home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".walletlink"
	}
	return filepath.Join(home, ".walletlink")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
