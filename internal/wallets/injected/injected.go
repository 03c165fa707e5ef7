// Package injected connects to wallets that expose an EIP-1193 style
// JSON-RPC provider over HTTP, such as the Frame desktop wallet or a local
// development node.
package injected

import (
	"context"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets/rpc"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// Wallet ids.
const (
	FrameID = "frame"
	ID      = "injected"
)

const (
	// DefaultPollInterval is how often the provider is polled for account
	// and chain changes.
	DefaultPollInterval = 4 * time.Second
	// maxPollFailures is the number of consecutive failed polls treated as
	// the provider going away.
	maxPollFailures = 3
	probeTimeout    = 2 * time.Second
)

// Config configures an injected wallet kind.
type Config struct {
	URL          string
	PollInterval time.Duration
	// Limiter is shared by every instance of the kind.
	Limiter    *rpc.RateLimiter
	HTTPClient *http.Client
}

// FrameDescriptor describes the Frame desktop wallet.
func FrameDescriptor(cfg Config) *wallet.Descriptor {
	return newDescriptor(FrameID, wallet.Meta{
		Name:        "Frame",
		Description: "Frame desktop wallet",
		IconURL:     "https://frame.sh/favicon.ico",
		URL:         "https://frame.sh",
	}, cfg)
}

// Descriptor describes a generic JSON-RPC provider at cfg.URL.
func Descriptor(cfg Config) *wallet.Descriptor {
	return newDescriptor(ID, wallet.Meta{
		Name:        "Injected",
		Description: "JSON-RPC wallet provider at " + cfg.URL,
	}, cfg)
}

func newDescriptor(id string, meta wallet.Meta, cfg Config) *wallet.Descriptor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &wallet.Descriptor{
		ID:   id,
		Meta: meta,
		Create: func(opts wallet.Options) wallet.Instance {
			return wallet.NewBase(id, opts, NewConnector(newClient(cfg, opts), opts, cfg.PollInterval))
		},
		IsInstalled: func(ctx context.Context) bool {
			ctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			_, err := newClient(cfg, wallet.Options{}).ChainID(ctx)
			return err == nil
		},
	}
}

func newClient(cfg Config, opts wallet.Options) *rpc.Client {
	clientOpts := []rpc.Option{rpc.WithMetrics(opts.Meter())}
	if cfg.Limiter != nil {
		clientOpts = append(clientOpts, rpc.WithRateLimiter(cfg.Limiter))
	}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, rpc.WithHTTPClient(cfg.HTTPClient))
	}
	return rpc.NewClient(cfg.URL, clientOpts...)
}

// Connector is the transport of an injected wallet. While connected it
// polls the provider and reports account and chain changes as events.
type Connector struct {
	client   *rpc.Client
	opts     wallet.Options
	interval time.Duration
	feed     event.Feed

	mu      sync.Mutex
	account common.Address
	chainID int64
	stop    context.CancelFunc
	done    chan struct{}
}

// NewConnector creates a connector over client.
func NewConnector(client *rpc.Client, opts wallet.Options, interval time.Duration) *Connector {
	return &Connector{client: client, opts: opts, interval: interval}
}

// Connect requests the provider's accounts, prompting if needed, and
// moves the provider to params.ChainID when it differs.
func (c *Connector) Connect(ctx context.Context, params wallet.Params) (wallet.ConnectResult, error) {
	accounts, err := c.client.RequestAccounts(ctx)
	if err != nil {
		return wallet.ConnectResult{}, err
	}
	if len(accounts) == 0 {
		return wallet.ConnectResult{}, walleterr.ErrNotAuthorized
	}

	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return wallet.ConnectResult{}, err
	}
	if params.ChainID != 0 && params.ChainID != chainID {
		if err := c.switchChain(ctx, params.ChainID); err != nil {
			return wallet.ConnectResult{}, err
		}
		chainID = params.ChainID
	}

	c.mu.Lock()
	c.account = accounts[0]
	c.chainID = chainID
	c.mu.Unlock()

	c.startWatch()
	return wallet.ConnectResult{Account: accounts[0], ChainID: chainID}, nil
}

// IsAuthorized reports whether the provider exposes accounts without a
// prompt.
func (c *Connector) IsAuthorized(ctx context.Context, _ wallet.Params) (bool, error) {
	accounts, err := c.client.Accounts(ctx)
	if err != nil {
		return false, err
	}
	return len(accounts) > 0, nil
}

// Disconnect stops watching the provider. Providers keep their own
// authorization; there is nothing to revoke remotely.
func (c *Connector) Disconnect(_ context.Context) error {
	c.Discard()
	return nil
}

// Discard stops the watcher and forgets the account.
func (c *Connector) Discard() {
	c.stopWatch()

	c.mu.Lock()
	c.account = common.Address{}
	c.chainID = 0
	c.mu.Unlock()
}

// Signer returns a signer that forwards requests to the provider.
func (c *Connector) Signer(_ context.Context) (wallet.Signer, error) {
	c.mu.Lock()
	account := c.account
	c.mu.Unlock()

	if account == (common.Address{}) {
		return nil, walleterr.ErrWalletNotConnected
	}
	return &Signer{client: c.client, account: account}, nil
}

// ChainID asks the provider for its current chain.
func (c *Connector) ChainID(ctx context.Context) (int64, error) {
	return c.client.ChainID(ctx)
}

// SwitchChain moves the provider to chainID, adding the chain first when
// the provider does not know it.
func (c *Connector) SwitchChain(ctx context.Context, chainID int64) error {
	if err := c.switchChain(ctx, chainID); err != nil {
		return err
	}

	c.mu.Lock()
	c.chainID = chainID
	c.mu.Unlock()
	return nil
}

func (c *Connector) switchChain(ctx context.Context, chainID int64) error {
	chain := c.opts.LookupChain(chainID)

	err := c.client.SwitchChain(ctx, chain)
	if err == nil || !rpc.IsCode(err, rpc.CodeUnrecognizedChain) {
		return err
	}

	if err := c.client.AddChain(ctx, chain, c.opts.ClientID); err != nil {
		return err
	}
	return c.client.SwitchChain(ctx, chain)
}

// Subscribe delivers provider events to ch.
func (c *Connector) Subscribe(ch chan<- wallet.Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

func (c *Connector) startWatch() {
	c.stopWatch()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.stop = cancel
	c.done = done
	c.mu.Unlock()

	go c.watch(ctx, done)
}

func (c *Connector) stopWatch() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// watch polls the provider until ctx ends or the provider goes away.
func (c *Connector) watch(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ev, err := c.poll(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			failures++
			c.opts.Log().Debug("poll %s: %v", c.client.URL(), err)
			if failures < maxPollFailures {
				continue
			}
			ev = &wallet.Event{Kind: wallet.EventDisconnect}
		default:
			failures = 0
		}

		if ev == nil {
			continue
		}
		c.feed.Send(*ev)
		if ev.Kind == wallet.EventDisconnect {
			return
		}
	}
}

// poll compares the provider's account and chain to the last known values.
func (c *Connector) poll(ctx context.Context) (*wallet.Event, error) {
	accounts, err := c.client.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return &wallet.Event{Kind: wallet.EventDisconnect}, nil
	}
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if accounts[0] == c.account && chainID == c.chainID {
		return nil, nil
	}
	c.account = accounts[0]
	c.chainID = chainID
	return &wallet.Event{Kind: wallet.EventChange, Account: accounts[0], ChainID: chainID}, nil
}

// Signer signs through the provider.
type Signer struct {
	client  *rpc.Client
	account common.Address
}

// Address returns the provider account.
func (s *Signer) Address() common.Address {
	return s.account
}

// SignMessage asks the provider for a personal_sign signature.
func (s *Signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return s.client.PersonalSign(ctx, msg, s.account)
}

// SignTransaction asks the provider to sign tx.
func (s *Signer) SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if tx == nil {
		return nil, wallet.ErrNilTransaction
	}
	return s.client.SignTransaction(ctx, tx, s.account, chainID)
}
