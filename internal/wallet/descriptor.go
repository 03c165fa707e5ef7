package wallet

import (
	"context"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/metrics"
	"github.com/mrz1836/walletlink/internal/storage"
)

// Meta is display metadata for a wallet kind.
type Meta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IconURL     string `json:"iconURL,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Descriptor describes a wallet kind and how to instantiate it.
// Descriptors are immutable once built.
type Descriptor struct {
	ID   string
	Meta Meta

	// PersonalWallets lists the wallets a composite requires to be
	// connected before its own connect can run.
	PersonalWallets []*Descriptor

	Create      func(opts Options) Instance
	IsInstalled func(ctx context.Context) bool

	// Headless wallets connect without any user interaction.
	Headless    bool
	Recommended bool
	// RedirectSignIn wallets leave the process during sign-in, so a
	// provisional session record is written before connecting.
	RedirectSignIn bool
}

// IsComposite reports whether the wallet wraps personal wallets.
func (d *Descriptor) IsComposite() bool {
	return len(d.PersonalWallets) > 0
}

// PersonalOption returns the declared personal wallet with the given id.
func (d *Descriptor) PersonalOption(id string) *Descriptor {
	for _, p := range d.PersonalWallets {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Installed reports whether the wallet is reachable. Wallets without a
// probe are always considered installed.
func (d *Descriptor) Installed(ctx context.Context) bool {
	if d.IsInstalled == nil {
		return true
	}
	return d.IsInstalled(ctx)
}

// AppMeta describes the application to wallets that display it.
type AppMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

// Options are handed to Descriptor.Create.
type Options struct {
	InstanceID string
	Chain      chains.Chain
	Chains     []chains.Chain
	ClientID   string
	App        AppMeta

	// Coordinator is the store shared by all wallet kinds.
	Coordinator storage.Store
	// Store is private to the wallet kind.
	Store storage.Store

	Logger  Logger
	Metrics *metrics.Metrics
}

// Log returns the configured logger, or a no-op logger.
func (o Options) Log() Logger {
	if o.Logger == nil {
		return NopLogger()
	}
	return o.Logger
}

// Meter returns the configured metrics, or metrics.Global.
func (o Options) Meter() *metrics.Metrics {
	if o.Metrics == nil {
		return metrics.Global
	}
	return o.Metrics
}

// LookupChain returns the configured chain with id, falling back to the
// metadata table and then to a minimal placeholder.
func (o Options) LookupChain(id int64) chains.Chain {
	for _, c := range o.Chains {
		if c.ChainID == id {
			return c
		}
	}
	if o.Chain.ChainID == id {
		return o.Chain
	}
	if c, err := chains.Lookup(id); err == nil {
		return c
	}
	return chains.Minimal(id)
}
