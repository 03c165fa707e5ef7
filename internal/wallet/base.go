package wallet

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// persistTimeout bounds storage writes made outside a caller's context.
const persistTimeout = 5 * time.Second

// Connector is the transport capability set a Base drives.
type Connector interface {
	// Connect establishes the transport session, prompting if needed.
	Connect(ctx context.Context, params Params) (ConnectResult, error)
	// IsAuthorized reports whether Connect would succeed without prompting.
	IsAuthorized(ctx context.Context, params Params) (bool, error)
	Disconnect(ctx context.Context) error
	Signer(ctx context.Context) (Signer, error)
	ChainID(ctx context.Context) (int64, error)
	// Subscribe delivers change, disconnect, message and error events.
	Subscribe(ch chan<- Event) event.Subscription
}

// ChainSwitcher is implemented by connectors that can change chains.
type ChainSwitcher interface {
	SwitchChain(ctx context.Context, chainID int64) error
}

// Discarder is implemented by connectors that hold local resources, such
// as a watcher goroutine or an unlocked key, which must be released when the
// instance is discarded.
type Discarder interface {
	Discard()
}

// ConnectResult is returned by a successful Connector.Connect.
type ConnectResult struct {
	Account common.Address
	ChainID int64
}

// Base implements Instance on top of a Connector and owns the session
// persistence every stored wallet follows:
//
//   - on connect it writes its params (minus secret fields) and chain to
//     its wallet store and claims the coordinator's lastConnectedWallet key;
//   - on disconnect it drops that claim only while it still holds it.
type Base struct {
	id     string
	opts   Options
	conn   Connector
	secret []string
	log    Logger

	feed event.Feed

	mu        sync.Mutex
	connected bool
	account   common.Address
	chainID   int64
	params    *Params
	relay     event.Subscription
}

// NewBase creates a wallet with kind id over conn. secretFields name
// params fields that must never reach storage.
func NewBase(id string, opts Options, conn Connector, secretFields ...string) *Base {
	return &Base{
		id:     id,
		opts:   opts,
		conn:   conn,
		secret: secretFields,
		log:    opts.Log(),
	}
}

// ID returns the wallet kind id.
func (b *Base) ID() string { return b.id }

// InstanceID returns the id assigned by the factory.
func (b *Base) InstanceID() string { return b.opts.InstanceID }

// Options returns the options the wallet was created with.
func (b *Base) Options() Options { return b.opts }

// Connector returns the underlying transport.
func (b *Base) Connector() Connector { return b.conn }

// Connect establishes the session and emits EventConnect once on success.
func (b *Base) Connect(ctx context.Context, params Params) (common.Address, error) {
	if params.ChainID == 0 {
		params.ChainID = b.opts.Chain.ChainID
	}

	res, err := b.conn.Connect(ctx, params)
	if err != nil {
		return common.Address{}, err
	}

	b.onConnected(ctx, params, res)
	return res.Account, nil
}

// AutoConnect reconnects with params, or with the stored params when nil.
// It never prompts: an unauthorized transport fails with ErrNotAuthorized.
func (b *Base) AutoConnect(ctx context.Context, params *Params) (common.Address, error) {
	var p Params
	if params != nil {
		p = params.Clone()
	} else if stored, ok := b.StoredParams(ctx); ok {
		p = stored
	}
	if p.ChainID == 0 {
		if chainID, ok := b.storedChain(ctx); ok {
			p.ChainID = chainID
		}
	}

	ok, err := b.conn.IsAuthorized(ctx, p)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, walleterr.WithDetails(walleterr.ErrNotAuthorized, map[string]string{
			"wallet": b.id,
		})
	}

	return b.Connect(ctx, p)
}

// Disconnect ends the session. Local state and the coordinator claim are
// released even when the transport fails; that error is returned.
func (b *Base) Disconnect(ctx context.Context) error {
	b.stopRelay()
	err := b.conn.Disconnect(ctx)
	if b.release(ctx) {
		b.feed.Send(Event{Kind: EventDisconnect})
	}
	return err
}

// Discard stops relaying transport events and clears local state. It
// never calls the transport's Disconnect, emits no event and leaves the
// coordinator claim alone.
func (b *Base) Discard() {
	b.stopRelay()
	if d, ok := b.conn.(Discarder); ok {
		d.Discard()
	}
	b.clearSession()
}

// Signer returns the transport's signer.
func (b *Base) Signer(ctx context.Context) (Signer, error) {
	if !b.Connected() {
		return nil, walleterr.ErrWalletNotConnected
	}
	return b.conn.Signer(ctx)
}

// SwitchChain asks the transport to move to chainID.
func (b *Base) SwitchChain(ctx context.Context, chainID int64) error {
	if !b.Connected() {
		return walleterr.ErrWalletNotConnected
	}

	switcher, ok := b.conn.(ChainSwitcher)
	if !ok {
		return walleterr.WithDetails(walleterr.ErrSwitchChainUnsupported, map[string]string{
			"wallet": b.id,
		})
	}
	if err := switcher.SwitchChain(ctx, chainID); err != nil {
		return err
	}

	b.mu.Lock()
	b.chainID = chainID
	if b.params != nil {
		b.params.ChainID = chainID
	}
	b.mu.Unlock()

	b.persistChain(ctx, chainID)
	return nil
}

// ChainID returns the transport's current chain, falling back to the last
// known chain when the transport cannot answer.
func (b *Base) ChainID(ctx context.Context) (int64, error) {
	b.mu.Lock()
	connected, cached := b.connected, b.chainID
	b.mu.Unlock()

	if !connected {
		return 0, walleterr.ErrWalletNotConnected
	}

	id, err := b.conn.ChainID(ctx)
	if err != nil {
		if cached != 0 {
			b.log.Debug("wallet %s: chain id from cache after transport error: %v", b.id, err)
			return cached, nil
		}
		return 0, err
	}

	b.mu.Lock()
	b.chainID = id
	b.mu.Unlock()
	return id, nil
}

// ConnectParams returns a copy of the current connection's params without
// secret fields.
func (b *Base) ConnectParams() *Params {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil {
		return nil
	}
	p := b.params.Clone()
	return &p
}

// PersonalWallet returns nil; composites override it.
func (b *Base) PersonalWallet() Instance { return nil }

// Subscribe delivers wallet events to ch. Subscribers must keep ch drained.
func (b *Base) Subscribe(ch chan<- Event) event.Subscription {
	return b.feed.Subscribe(ch)
}

// Emit publishes ev to subscribers.
func (b *Base) Emit(ev Event) {
	b.feed.Send(ev)
}

// Connected reports whether a session is established.
func (b *Base) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Account returns the connected account.
func (b *Base) Account() common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account
}

// StoredParams returns the params persisted by the last successful connect.
// A corrupt entry is removed and reported absent.
func (b *Base) StoredParams(ctx context.Context) (Params, bool) {
	if b.opts.Store == nil {
		return Params{}, false
	}

	raw, ok, err := b.opts.Store.Get(ctx, KeyLastConnectedParams)
	if err != nil {
		b.storageFailed("read params", err)
		return Params{}, false
	}
	if !ok || raw == "" {
		return Params{}, false
	}

	var p Params
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		b.log.Error("wallet %s: discarding corrupt stored params: %v", b.id, err)
		if rmErr := b.opts.Store.Remove(ctx, KeyLastConnectedParams); rmErr != nil {
			b.storageFailed("remove params", rmErr)
		}
		return Params{}, false
	}
	return p, true
}

func (b *Base) storedChain(ctx context.Context) (int64, bool) {
	if b.opts.Store == nil {
		return 0, false
	}

	raw, ok, err := b.opts.Store.Get(ctx, KeyLastConnectedChain)
	if err != nil {
		b.storageFailed("read chain", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (b *Base) onConnected(ctx context.Context, params Params, res ConnectResult) {
	chainID := res.ChainID
	if chainID == 0 {
		chainID = params.ChainID
	}

	stored := params.Without(b.secret...)
	stored.ChainID = chainID
	stored.Personal = nil

	ch := make(chan Event, 16)
	sub := b.conn.Subscribe(ch)

	b.mu.Lock()
	prev := b.relay
	b.connected = true
	b.account = res.Account
	b.chainID = chainID
	b.params = &stored
	b.relay = sub
	b.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
	go b.relayEvents(sub, ch)

	b.persist(ctx, stored)
	b.feed.Send(Event{Kind: EventConnect, Account: res.Account, ChainID: chainID})
}

// relayEvents forwards transport events to subscribers until sub ends.
// Connect events are dropped; Base emits its own.
func (b *Base) relayEvents(sub event.Subscription, ch <-chan Event) {
	for {
		select {
		case ev := <-ch:
			if !b.isRelay(sub) {
				return
			}
			b.handleTransportEvent(ev)
		case <-sub.Err():
			return
		}
	}
}

func (b *Base) isRelay(sub event.Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.relay == sub
}

func (b *Base) handleTransportEvent(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	switch ev.Kind {
	case EventConnect:
		return
	case EventChange:
		b.mu.Lock()
		if ev.Account != (common.Address{}) {
			b.account = ev.Account
		}
		if ev.ChainID != 0 {
			b.chainID = ev.ChainID
			if b.params != nil {
				b.params.ChainID = ev.ChainID
			}
		}
		b.mu.Unlock()
		if ev.ChainID != 0 {
			b.persistChain(ctx, ev.ChainID)
		}
	case EventDisconnect:
		b.stopRelay()
		if !b.release(ctx) {
			return
		}
	case EventMessage, EventError:
	}

	b.feed.Send(ev)
}

func (b *Base) stopRelay() {
	b.mu.Lock()
	sub := b.relay
	b.relay = nil
	b.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// release clears session state and drops the coordinator claim. It reports
// whether a session was actually held.
func (b *Base) release(ctx context.Context) bool {
	was := b.clearSession()

	if c := b.opts.Coordinator; c != nil {
		current, ok, err := c.Get(ctx, KeyLastConnectedWallet)
		switch {
		case err != nil:
			b.storageFailed("read coordinator", err)
		case ok && current == b.id:
			if err := c.Remove(ctx, KeyLastConnectedWallet); err != nil {
				b.storageFailed("remove coordinator", err)
			}
		}
	}
	return was
}

// clearSession resets session state and reports whether a session was held.
func (b *Base) clearSession() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	was := b.connected
	b.connected = false
	b.account = common.Address{}
	b.chainID = 0
	b.params = nil
	return was
}

func (b *Base) persist(ctx context.Context, params Params) {
	if b.opts.Store != nil {
		data, err := json.Marshal(params)
		if err != nil {
			b.log.Error("wallet %s: encoding params: %v", b.id, err)
		} else if err := b.opts.Store.Set(ctx, KeyLastConnectedParams, string(data)); err != nil {
			b.storageFailed("write params", err)
		}
	}

	b.persistChain(ctx, params.ChainID)

	if c := b.opts.Coordinator; c != nil {
		if err := c.Set(ctx, KeyLastConnectedWallet, b.id); err != nil {
			b.storageFailed("write coordinator", err)
		}
	}
}

func (b *Base) persistChain(ctx context.Context, chainID int64) {
	if b.opts.Store == nil || chainID == 0 {
		return
	}
	if err := b.opts.Store.Set(ctx, KeyLastConnectedChain, strconv.FormatInt(chainID, 10)); err != nil {
		b.storageFailed("write chain", err)
	}
}

func (b *Base) storageFailed(op string, err error) {
	b.opts.Meter().RecordStorageError()
	b.log.Error("wallet %s: %s: %v", b.id, op, err)
}
