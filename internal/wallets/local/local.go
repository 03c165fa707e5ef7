// Package local implements a private key wallet kept on this machine. The
// key is generated or imported once and stored encrypted with age in the
// wallet's own store.
package local

import (
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/walletlink/internal/wallet"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// ID is the local wallet id.
const ID = "local"

// Connect params. All three are secret and never persisted.
const (
	ParamPassword   = "password"
	ParamPrivateKey = "privateKey"
	ParamMnemonic   = "mnemonic"
)

// PasswordFunc supplies the key password when connect params carry none.
type PasswordFunc func(ctx context.Context) (string, error)

// Config configures the local wallet kind.
type Config struct {
	// Password is consulted when params have no password, notably during
	// auto-connect.
	Password PasswordFunc
	// ScryptWorkFactor overrides age's scrypt work factor.
	ScryptWorkFactor int
}

// Descriptor describes the local wallet. It needs no user interaction
// once a password source is configured, so it can serve as a headless
// signer wallet.
func Descriptor(cfg Config) *wallet.Descriptor {
	return &wallet.Descriptor{
		ID: ID,
		Meta: wallet.Meta{
			Name:        "Local Wallet",
			Description: "Private key stored encrypted on this machine",
		},
		Headless: cfg.Password != nil,
		Create: func(opts wallet.Options) wallet.Instance {
			return wallet.NewBase(ID, opts, NewConnector(cfg, opts), ParamPassword, ParamPrivateKey, ParamMnemonic)
		},
		IsInstalled: func(context.Context) bool { return true },
	}
}

// Connector unlocks the stored key, importing or generating it on first
// use.
type Connector struct {
	cfg  Config
	keys keystore
	feed event.Feed

	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	chainID int64
}

// NewConnector creates a connector storing its key in opts.Store.
func NewConnector(cfg Config, opts wallet.Options) *Connector {
	return &Connector{cfg: cfg, keys: keystore{store: opts.Store, workFactor: cfg.ScryptWorkFactor}}
}

// Connect unlocks the wallet. A privateKey or mnemonic param replaces the
// stored key; without either and without a stored key a new key is
// generated.
func (c *Connector) Connect(ctx context.Context, params wallet.Params) (wallet.ConnectResult, error) {
	password, err := c.password(ctx, params)
	if err != nil {
		return wallet.ConnectResult{}, err
	}

	key, err := c.resolveKey(ctx, params, password)
	if err != nil {
		return wallet.ConnectResult{}, err
	}

	c.mu.Lock()
	c.key = key
	c.chainID = params.ChainID
	c.mu.Unlock()

	return wallet.ConnectResult{Account: crypto.PubkeyToAddress(key.PublicKey), ChainID: params.ChainID}, nil
}

func (c *Connector) resolveKey(ctx context.Context, params wallet.Params, password string) (*ecdsa.PrivateKey, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	switch {
	case params.String(ParamPrivateKey) != "":
		key, err = parsePrivateKey(params.String(ParamPrivateKey))
	case params.String(ParamMnemonic) != "":
		key, err = keyFromMnemonic(params.String(ParamMnemonic))
	default:
		exists, existsErr := c.keys.exists(ctx)
		if existsErr != nil {
			return nil, existsErr
		}
		if exists {
			return c.keys.load(ctx, password)
		}
		key, err = crypto.GenerateKey()
	}
	if err != nil {
		return nil, err
	}

	if err := c.keys.save(ctx, key, password); err != nil {
		return nil, err
	}
	return key, nil
}

// IsAuthorized reports whether a key is stored and a password is at hand.
func (c *Connector) IsAuthorized(ctx context.Context, params wallet.Params) (bool, error) {
	exists, err := c.keys.exists(ctx)
	if err != nil || !exists {
		return false, err
	}
	if _, err := c.password(ctx, params); err != nil {
		return false, nil //nolint:nilerr // a missing password means not authorized
	}
	return true, nil
}

// Disconnect drops the unlocked key. The encrypted key stays stored.
func (c *Connector) Disconnect(_ context.Context) error {
	c.Discard()
	return nil
}

// Discard drops the unlocked key.
func (c *Connector) Discard() {
	c.mu.Lock()
	c.key = nil
	c.chainID = 0
	c.mu.Unlock()
}

// Signer returns a signer over the unlocked key.
func (c *Connector) Signer(_ context.Context) (wallet.Signer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == nil {
		return nil, walleterr.ErrWalletNotConnected
	}
	return wallet.NewKeySigner(c.key), nil
}

// ChainID returns the chain the wallet signs for.
func (c *Connector) ChainID(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == nil {
		return 0, walleterr.ErrWalletNotConnected
	}
	return c.chainID, nil
}

// SwitchChain changes the chain the wallet signs for. A local key is valid
// on every chain.
func (c *Connector) SwitchChain(_ context.Context, chainID int64) error {
	if chainID <= 0 {
		return walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"chainId": "must be positive"})
	}

	c.mu.Lock()
	c.chainID = chainID
	c.mu.Unlock()

	c.feed.Send(wallet.Event{Kind: wallet.EventChange, ChainID: chainID})
	return nil
}

// Subscribe delivers wallet events to ch.
func (c *Connector) Subscribe(ch chan<- wallet.Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

func (c *Connector) password(ctx context.Context, params wallet.Params) (string, error) {
	if pw := params.String(ParamPassword); pw != "" {
		return pw, nil
	}
	if c.cfg.Password != nil {
		pw, err := c.cfg.Password(ctx)
		if err != nil {
			return "", err
		}
		if pw != "" {
			return pw, nil
		}
	}
	return "", walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"reason": "local wallet password required"})
}
