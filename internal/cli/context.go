package cli

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/login"
	"github.com/mrz1836/walletlink/internal/metrics"
	"github.com/mrz1836/walletlink/internal/output"
	"github.com/mrz1836/walletlink/internal/storage"
	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets"
)

type cmdContextKey struct{}

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Config    *config.Config
	Logger    *config.Logger
	Formatter *output.Formatter
	Metrics   *metrics.Metrics

	// Backend overrides the configured storage backend.
	Backend storage.Backend
	// Wallets overrides the supported wallet set built from Config.
	Wallets []*wallet.Descriptor
	// Keyring holds the login secret. Nil uses the OS keyring.
	Keyring storage.Backend

	mu     sync.Mutex
	opened storage.Backend
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(
	cfg *config.Config,
	logger *config.Logger,
	formatter *output.Formatter,
) *CommandContext {
	return &CommandContext{
		Config:    cfg,
		Logger:    logger,
		Formatter: formatter,
		Metrics:   metrics.Global,
	}
}

// WithBackend sets the storage backend.
func (c *CommandContext) WithBackend(b storage.Backend) *CommandContext {
	c.Backend = b
	return c
}

// WithWallets sets the supported wallet set.
func (c *CommandContext) WithWallets(list []*wallet.Descriptor) *CommandContext {
	c.Wallets = list
	return c
}

// WithKeyring sets the backend holding the login secret.
func (c *CommandContext) WithKeyring(b storage.Backend) *CommandContext {
	c.Keyring = b
	return c
}

// Log returns the logger, or a null logger.
func (c *CommandContext) Log() *config.Logger {
	if c.Logger == nil {
		return config.NullLogger()
	}
	return c.Logger
}

// Storage returns the session storage backend, opening the configured one
// on first use.
func (c *CommandContext) Storage(ctx context.Context) (storage.Backend, error) {
	if c.Backend != nil {
		return c.Backend, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened != nil {
		return c.opened, nil
	}

	b, err := storage.Open(ctx, storage.Options{
		Backend: c.Config.Storage.Backend,
		Path:    c.Config.GetStoragePath(),
		Redis: storage.RedisOptions{
			Addr:     c.Config.Storage.Redis.Addr,
			DB:       c.Config.Storage.Redis.DB,
			Password: c.Config.Storage.Redis.Password,
			Prefix:   c.Config.Storage.Redis.Prefix,
		},
	})
	if err != nil {
		return nil, err
	}
	c.opened = b
	return b, nil
}

// LoginStore returns the store of the cached login secret.
func (c *CommandContext) LoginStore() storage.Store {
	if c.Keyring != nil {
		return c.Keyring.Scope(login.Scope)
	}
	return storage.NewKeyring(nil).Scope(login.Scope)
}

// SupportedWallets returns the wallet set, built from Config unless
// overridden.
func (c *CommandContext) SupportedWallets(deps wallets.Deps) ([]*wallet.Descriptor, error) {
	if c.Wallets != nil {
		return c.Wallets, nil
	}
	return wallets.Supported(c.Config, deps)
}

// Close releases the storage backend opened by Storage.
func (c *CommandContext) Close() {
	c.mu.Lock()
	b := c.opened
	c.opened = nil
	c.mu.Unlock()

	if b != nil {
		_ = b.Close()
	}
}

// SetCmdContext attaches cc to cmd.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the context attached to cmd, or the one built by
// the root command.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok {
			return cc
		}
	}
	if cmdCtx == nil {
		return NewCommandContext(config.Defaults(), config.NullLogger(), output.NewFormatter(output.FormatText, cmd.OutOrStdout()))
	}
	return cmdCtx
}
