// Package wallettest provides scriptable wallet transports for tests.
//
// A Transport plays the role of the wallet software outside the process:
// it outlives the instances connected to it, so authorization granted to
// one instance is visible to the next one, the way an extension remembers
// an approved site.
package wallettest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/walletlink/internal/wallet"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// ErrPersonalMissing is returned by a composite connect without a
// connected personal wallet.
var ErrPersonalMissing = errors.New("composite wallet requires a connected personal wallet")

// Journal records transport calls across transports in order.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry.
func (j *Journal) Add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

// Entries returns a copy of the journal.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// Transport is the shared, scriptable state behind fake connectors.
type Transport struct {
	Name    string
	Journal *Journal

	key *ecdsa.PrivateKey

	mu            sync.Mutex
	chainID       int64
	authorized    bool
	connectErr    error
	disconnectErr error
	switchErr     error
	noSwitch      bool
	connectGate   chan struct{}
	authorizeGate chan struct{}
	lastParams    wallet.Params
	connects      int
	feed          event.Feed
}

// NewTransport creates a transport with a fresh key on chainID.
func NewTransport(name string, chainID int64) *Transport {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &Transport{Name: name, key: key, chainID: chainID}
}

// Account returns the transport's account.
func (t *Transport) Account() common.Address {
	return crypto.PubkeyToAddress(t.key.PublicKey)
}

// SetAuthorized sets whether connects succeed without prompting.
func (t *Transport) SetAuthorized(v bool) {
	t.mu.Lock()
	t.authorized = v
	t.mu.Unlock()
}

// Authorized reports the current authorization.
func (t *Transport) Authorized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authorized
}

// FailConnect makes every connect fail with err; nil restores success.
func (t *Transport) FailConnect(err error) {
	t.mu.Lock()
	t.connectErr = err
	t.mu.Unlock()
}

// FailDisconnect makes every disconnect fail with err.
func (t *Transport) FailDisconnect(err error) {
	t.mu.Lock()
	t.disconnectErr = err
	t.mu.Unlock()
}

// FailSwitch makes chain switches fail with err.
func (t *Transport) FailSwitch(err error) {
	t.mu.Lock()
	t.switchErr = err
	t.mu.Unlock()
}

// DisableSwitch builds connectors without chain switching support.
func (t *Transport) DisableSwitch() {
	t.mu.Lock()
	t.noSwitch = true
	t.mu.Unlock()
}

// HoldConnect blocks connects until the returned release func is called or
// the caller's context ends.
func (t *Transport) HoldConnect() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.connectGate = gate
	t.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// HangAuthorize makes the authorization check block, ignoring the
// caller's context, until release is called.
func (t *Transport) HangAuthorize() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.authorizeGate = gate
	t.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// ChainID returns the transport's chain.
func (t *Transport) ChainID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chainID
}

// Connects returns how many connects succeeded.
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// LastParams returns the params of the last connect.
func (t *Transport) LastParams() wallet.Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastParams.Clone()
}

// Emit pushes a transport event to every live connector.
func (t *Transport) Emit(ev wallet.Event) {
	if ev.Kind == wallet.EventChange && ev.ChainID != 0 {
		t.mu.Lock()
		t.chainID = ev.ChainID
		t.mu.Unlock()
	}
	t.feed.Send(ev)
}

// Signer returns a signer for the transport's key.
func (t *Transport) Signer() wallet.Signer {
	return wallet.NewKeySigner(t.key)
}

type connector struct {
	t *Transport
}

func (c *connector) Connect(ctx context.Context, params wallet.Params) (wallet.ConnectResult, error) {
	t := c.t
	t.mu.Lock()
	gate, err := t.connectGate, t.connectErr
	t.mu.Unlock()

	t.Journal.Add("connect:%s", t.Name)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return wallet.ConnectResult{}, ctx.Err()
		}
	}
	if err != nil {
		return wallet.ConnectResult{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if params.ChainID != 0 {
		t.chainID = params.ChainID
	}
	t.authorized = true
	t.lastParams = params.Clone()
	t.connects++
	return wallet.ConnectResult{Account: crypto.PubkeyToAddress(t.key.PublicKey), ChainID: t.chainID}, nil
}

func (c *connector) IsAuthorized(_ context.Context, _ wallet.Params) (bool, error) {
	t := c.t
	t.mu.Lock()
	gate, ok := t.authorizeGate, t.authorized
	t.mu.Unlock()

	t.Journal.Add("authorize:%s", t.Name)
	if gate != nil {
		<-gate
	}
	return ok, nil
}

func (c *connector) Disconnect(_ context.Context) error {
	c.t.Journal.Add("disconnect:%s", c.t.Name)
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	return c.t.disconnectErr
}

func (c *connector) Discard() {
	c.t.Journal.Add("discard:%s", c.t.Name)
}

func (c *connector) Signer(_ context.Context) (wallet.Signer, error) {
	return c.t.Signer(), nil
}

func (c *connector) ChainID(_ context.Context) (int64, error) {
	return c.t.ChainID(), nil
}

func (c *connector) Subscribe(ch chan<- wallet.Event) event.Subscription {
	return c.t.feed.Subscribe(ch)
}

type switchingConnector struct {
	*connector
}

func (c switchingConnector) SwitchChain(_ context.Context, chainID int64) error {
	t := c.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.switchErr != nil {
		return t.switchErr
	}
	t.chainID = chainID
	return nil
}

// Connector returns a connector bound to t.
func (t *Transport) Connector() wallet.Connector {
	t.mu.Lock()
	noSwitch := t.noSwitch
	t.mu.Unlock()

	c := &connector{t: t}
	if noSwitch {
		return c
	}
	return switchingConnector{c}
}

// Descriptor returns a simple wallet descriptor backed by t.
func Descriptor(id string, t *Transport) *wallet.Descriptor {
	return &wallet.Descriptor{
		ID:   id,
		Meta: wallet.Meta{Name: id},
		Create: func(opts wallet.Options) wallet.Instance {
			return wallet.NewBase(id, opts, t.Connector(), "secret")
		},
	}
}

// Composite is a fake composite wallet: it connects only on top of a
// connected personal wallet and reports that wallet's account as owner.
type Composite struct {
	*wallet.Base

	mu       sync.Mutex
	personal wallet.Instance
}

// PersonalWallet returns the wallet passed in through Params.Personal.
func (c *Composite) PersonalWallet() wallet.Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.personal
}

// Connect requires params.Personal to be a connected instance.
func (c *Composite) Connect(ctx context.Context, params wallet.Params) (common.Address, error) {
	if params.Personal == nil {
		return common.Address{}, ErrPersonalMissing
	}
	if _, err := params.Personal.Signer(ctx); err != nil {
		return common.Address{}, walleterr.WithCause(walleterr.ErrPersonalWalletRequired, err)
	}

	addr, err := c.Base.Connect(ctx, params)
	if err != nil {
		return common.Address{}, err
	}

	c.mu.Lock()
	c.personal = params.Personal
	c.mu.Unlock()
	return addr, nil
}

// AutoConnect requires params.Personal, like Connect.
func (c *Composite) AutoConnect(ctx context.Context, params *wallet.Params) (common.Address, error) {
	if params == nil || params.Personal == nil {
		return common.Address{}, ErrPersonalMissing
	}

	ok, err := c.Connector().IsAuthorized(ctx, *params)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, walleterr.ErrNotAuthorized
	}
	return c.Connect(ctx, *params)
}

// Disconnect ends the composite session and forgets the personal wallet.
func (c *Composite) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.personal = nil
	c.mu.Unlock()
	return c.Base.Disconnect(ctx)
}

// CompositeDescriptor returns a composite wrapping personal, backed by t.
func CompositeDescriptor(id string, personal *wallet.Descriptor, t *Transport) *wallet.Descriptor {
	return &wallet.Descriptor{
		ID:              id,
		Meta:            wallet.Meta{Name: id},
		PersonalWallets: []*wallet.Descriptor{personal},
		Create: func(opts wallet.Options) wallet.Instance {
			return &Composite{Base: wallet.NewBase(id, opts, t.Connector())}
		},
	}
}
