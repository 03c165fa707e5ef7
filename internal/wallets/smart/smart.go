// Package smart implements a smart contract account owned by a personal
// wallet. The account address is derived counterfactually from the owner,
// so it is known before the account is deployed; the personal wallet signs
// everything on the account's behalf.
package smart

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/walletlink/internal/wallet"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// ID is the smart wallet id.
const ID = "smart"

// accountABI is the account method owners call to act through the account.
const accountABI = `[{"type":"function","name":"execute","stateMutability":"nonpayable",` +
	`"inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]}]`

// Config configures the smart wallet kind.
type Config struct {
	// Factory deploys accounts with CREATE2.
	Factory common.Address
	// InitCodeHash is the keccak256 of the account creation code the
	// factory deploys.
	InitCodeHash common.Hash
}

// AccountAddress returns the account the factory deploys for owner.
func AccountAddress(factory, owner common.Address, initCodeHash common.Hash) common.Address {
	salt := crypto.Keccak256Hash(owner.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// Wrap returns a smart wallet descriptor whose only personal wallet is
// personal.
func Wrap(personal *wallet.Descriptor, cfg Config) *wallet.Descriptor {
	return &wallet.Descriptor{
		ID: ID,
		Meta: wallet.Meta{
			Name:        "Smart Wallet",
			Description: "Smart contract account owned by " + personal.Meta.Name,
		},
		PersonalWallets: []*wallet.Descriptor{personal},
		Headless:        personal.Headless,
		Create: func(opts wallet.Options) wallet.Instance {
			conn := &connector{cfg: cfg}
			return &Wallet{Base: wallet.NewBase(ID, opts, conn), conn: conn}
		},
		IsInstalled: personal.IsInstalled,
	}
}

// Wallet is a connected smart account.
type Wallet struct {
	*wallet.Base
	conn *connector
}

// PersonalWallet returns the owner wallet.
func (w *Wallet) PersonalWallet() wallet.Instance {
	return w.conn.owner()
}

// Owner returns the address of the personal wallet that controls the
// account.
func (w *Wallet) Owner() common.Address {
	w.conn.mu.Lock()
	defer w.conn.mu.Unlock()
	return w.conn.ownerAddr
}

// connector derives the account from the personal wallet passed in
// Params.Personal and follows that wallet's events.
type connector struct {
	cfg  Config
	feed event.Feed

	mu        sync.Mutex
	personal  wallet.Instance
	ownerAddr common.Address
	stop      context.CancelFunc
	done      chan struct{}
}

func (c *connector) Connect(ctx context.Context, params wallet.Params) (wallet.ConnectResult, error) {
	personal := params.Personal
	if personal == nil {
		return wallet.ConnectResult{}, walleterr.Template(walleterr.ErrPersonalWalletRequired, map[string]string{"walletId": ID})
	}

	signer, err := personal.Signer(ctx)
	if err != nil {
		return wallet.ConnectResult{}, walleterr.WithCause(walleterr.ErrPersonalWalletRequired, err)
	}

	chainID, err := personal.ChainID(ctx)
	if err != nil {
		return wallet.ConnectResult{}, err
	}
	if params.ChainID != 0 && params.ChainID != chainID {
		if err := personal.SwitchChain(ctx, params.ChainID); err != nil {
			return wallet.ConnectResult{}, err
		}
		chainID = params.ChainID
	}

	c.stopFollow()
	c.mu.Lock()
	c.personal = personal
	c.ownerAddr = signer.Address()
	c.mu.Unlock()
	c.follow(personal)

	return wallet.ConnectResult{Account: c.account(signer.Address()), ChainID: chainID}, nil
}

func (c *connector) account(owner common.Address) common.Address {
	return AccountAddress(c.cfg.Factory, owner, c.cfg.InitCodeHash)
}

// IsAuthorized reports whether the personal wallet can sign.
func (c *connector) IsAuthorized(ctx context.Context, params wallet.Params) (bool, error) {
	if params.Personal == nil {
		return false, nil
	}
	if _, err := params.Personal.Signer(ctx); err != nil {
		return false, nil //nolint:nilerr // an unconnected owner means not authorized
	}
	return true, nil
}

// Disconnect forgets the personal wallet. The personal wallet's own
// session is left to its owner.
func (c *connector) Disconnect(_ context.Context) error {
	c.Discard()
	return nil
}

// Discard stops following the personal wallet and forgets it.
func (c *connector) Discard() {
	c.stopFollow()
	c.mu.Lock()
	c.personal = nil
	c.ownerAddr = common.Address{}
	c.mu.Unlock()
}

func (c *connector) owner() wallet.Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.personal
}

func (c *connector) Signer(ctx context.Context) (wallet.Signer, error) {
	personal := c.owner()
	if personal == nil {
		return nil, walleterr.ErrWalletNotConnected
	}
	owner, err := personal.Signer(ctx)
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(strings.NewReader(accountABI))
	if err != nil {
		return nil, err
	}
	return &Signer{account: c.account(owner.Address()), owner: owner, abi: parsed}, nil
}

func (c *connector) ChainID(ctx context.Context) (int64, error) {
	personal := c.owner()
	if personal == nil {
		return 0, walleterr.ErrWalletNotConnected
	}
	return personal.ChainID(ctx)
}

func (c *connector) SwitchChain(ctx context.Context, chainID int64) error {
	personal := c.owner()
	if personal == nil {
		return walleterr.ErrWalletNotConnected
	}
	return personal.SwitchChain(ctx, chainID)
}

func (c *connector) Subscribe(ch chan<- wallet.Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

// follow mirrors the personal wallet's events: an owner change moves the
// account, and the owner disconnecting ends the smart session.
func (c *connector) follow(personal wallet.Instance) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	events := make(chan wallet.Event, 16)
	sub := personal.Subscribe(events)

	c.mu.Lock()
	c.stop = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Err():
				return
			case ev := <-events:
				switch ev.Kind {
				case wallet.EventChange:
					out := wallet.Event{Kind: wallet.EventChange, ChainID: ev.ChainID}
					if ev.Account != (common.Address{}) {
						c.mu.Lock()
						c.ownerAddr = ev.Account
						c.mu.Unlock()
						out.Account = c.account(ev.Account)
					}
					c.feed.Send(out)
				case wallet.EventDisconnect:
					c.feed.Send(wallet.Event{Kind: wallet.EventDisconnect})
					return
				case wallet.EventConnect, wallet.EventMessage, wallet.EventError:
				}
			}
		}
	}()
}

func (c *connector) stopFollow() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// Signer signs for the smart account with the owner's key.
type Signer struct {
	account common.Address
	owner   wallet.Signer
	abi     abi.ABI
}

// Address returns the smart account address.
func (s *Signer) Address() common.Address {
	return s.account
}

// Owner returns the address that signs for the account.
func (s *Signer) Owner() common.Address {
	return s.owner.Address()
}

// SignMessage returns the owner's signature, which the account accepts
// through EIP-1271.
func (s *Signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return s.owner.SignMessage(ctx, msg)
}

// SignTransaction wraps tx in a call to the account's execute method and
// has the owner sign that call. The returned transaction is sent from the
// owner, so its nonce must be the owner's.
func (s *Signer) SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if tx == nil {
		return nil, wallet.ErrNilTransaction
	}
	if tx.To() == nil {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"reason": "smart accounts cannot deploy contracts through execute",
		})
	}

	data, err := s.abi.Pack("execute", *tx.To(), tx.Value(), tx.Data())
	if err != nil {
		return nil, err
	}

	account := s.account
	var call types.TxData
	if tx.Type() == types.DynamicFeeTxType {
		call = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     tx.Nonce(),
			GasTipCap: tx.GasTipCap(),
			GasFeeCap: tx.GasFeeCap(),
			Gas:       tx.Gas(),
			To:        &account,
			Value:     new(big.Int),
			Data:      data,
		}
	} else {
		call = &types.LegacyTx{
			Nonce:    tx.Nonce(),
			GasPrice: tx.GasPrice(),
			Gas:      tx.Gas(),
			To:       &account,
			Value:    new(big.Int),
			Data:     data,
		}
	}
	return s.owner.SignTransaction(ctx, types.NewTx(call), chainID)
}

// Unpack decodes execute calldata back into target, value and data.
func Unpack(calldata []byte) (common.Address, *big.Int, []byte, error) {
	parsed, err := abi.JSON(strings.NewReader(accountABI))
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	if len(calldata) < 4 {
		return common.Address{}, nil, nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"reason": "calldata too short"})
	}
	method, err := parsed.MethodById(calldata[:4])
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return values[0].(common.Address), values[1].(*big.Int), values[2].([]byte), nil //nolint:forcetypeassert // fixed abi
}
