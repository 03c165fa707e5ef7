package config

import "time"

// DefaultAutoConnectTimeout bounds each auto-connect stage.
const DefaultAutoConnectTimeout = 15 * time.Second

// DefaultFrameURL is the JSON-RPC endpoint exposed by the Frame desktop wallet.
const DefaultFrameURL = "http://127.0.0.1:1248"

// DefaultBridgeURL is the public WalletConnect v1 bridge.
const DefaultBridgeURL = "https://bridge.walletconnect.org"

// DefaultLoginPort is the local port the login callback server listens on.
const DefaultLoginPort = 8976

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.walletlink",
		App: AppConfig{
			Name:        "walletlink",
			Description: "walletlink command line session",
			URL:         "https://github.com/mrz1836/walletlink",
		},
		Chains: ChainsConfig{
			Active:     1,
			AutoSwitch: false,
		},
		Session: SessionConfig{
			AutoConnect:          true,
			AutoConnectTimeoutMS: int(DefaultAutoConnectTimeout / time.Millisecond),
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "~/.walletlink/storage",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "walletlink",
			},
		},
		Wallets: WalletsConfig{
			FrameURL:            DefaultFrameURL,
			InjectedURL:         "http://127.0.0.1:8545",
			PollIntervalSeconds: 4,
			RateLimitPerSecond:  10,
			WalletConnect: WalletConnectConfig{
				Bridge:         DefaultBridgeURL,
				TimeoutSeconds: 120,
			},
			Smart: SmartWalletConfig{
				Personal:       "local",
				FactoryAddress: "0x9406Cc6185a346906296840746125a0E44976454",
			},
		},
		Login: LoginConfig{
			DashboardURL:   "https://thirdweb.com/cli",
			Port:           DefaultLoginPort,
			TimeoutSeconds: 120,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.walletlink/walletlink.log",
		},
	}
}
