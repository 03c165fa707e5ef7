// Package connection owns the single active wallet session: it connects,
// restores, switches chains on and disconnects wallets, keeps the derived
// signer in sync with wallet events and persists the session record used
// to resume in a later process.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/atomic"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/metrics"
	"github.com/mrz1836/walletlink/internal/storage"
	"github.com/mrz1836/walletlink/internal/wallet"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// DefaultAutoConnectTimeout bounds each auto-connect stage.
const DefaultAutoConnectTimeout = 15 * time.Second

// eventTimeout bounds transport calls made while handling wallet events.
const eventTimeout = 15 * time.Second

// Config configures a Controller.
type Config struct {
	// Wallets is the supported wallet set.
	Wallets []*wallet.Descriptor

	// Chain is the active chain handed to wallets as their default.
	Chain  chains.Chain
	Chains []chains.Chain
	// ChainToConnect is merged into connect params as chainId. Zero means
	// Chain.ChainID.
	ChainToConnect int64

	ClientID string
	App      wallet.AppMeta

	// Coordinator holds the session record and the last connected wallet id.
	Coordinator storage.Store
	// Stores returns the private store of a wallet kind.
	Stores storage.ScopeFunc

	// SkipAutoConnect resolves the initial status to disconnected without
	// reading the session record.
	SkipAutoConnect bool
	// AutoConnectTimeout bounds each auto-connect stage. Zero means
	// DefaultAutoConnectTimeout.
	AutoConnectTimeout time.Duration
	// SignerWallet is a headless wallet connected by AutoConnect instead of
	// restoring the session record.
	SignerWallet *wallet.Descriptor

	Logger  wallet.Logger
	Metrics *metrics.Metrics

	// Factory is shared with child controllers. Nil builds one from the
	// fields above.
	Factory *wallet.Factory
}

// Controller manages exactly one active wallet at a time.
//
// State is guarded by mu, which is never held across a wallet call. At most
// one Connect, auto-connect or Disconnect runs at a time; overlapping calls
// fail with ErrConnectInProgress.
type Controller struct {
	cfg     Config
	factory *wallet.Factory
	log     wallet.Logger
	metrics *metrics.Metrics

	// child controllers run the personal stage of a composite connect and
	// never own the session record.
	child bool

	autoTriggered atomic.Bool
	inFlight      atomic.Bool

	mu         sync.RWMutex
	status     Status
	active     wallet.Instance
	activeDesc *wallet.Descriptor
	signer     wallet.Signer
	chainID    int64
	bridge     *bridge
	closed     bool

	feed event.Feed
}

// New creates a controller in StatusUnknown.
func New(cfg Config) *Controller {
	if cfg.AutoConnectTimeout <= 0 {
		cfg.AutoConnectTimeout = DefaultAutoConnectTimeout
	}
	if cfg.ChainToConnect == 0 {
		cfg.ChainToConnect = cfg.Chain.ChainID
	}
	if cfg.Logger == nil {
		cfg.Logger = wallet.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}
	if cfg.Factory == nil {
		cfg.Factory = wallet.NewFactory(wallet.Options{
			Chain:       cfg.Chain,
			Chains:      cfg.Chains,
			ClientID:    cfg.ClientID,
			App:         cfg.App,
			Coordinator: cfg.Coordinator,
			Logger:      cfg.Logger,
			Metrics:     cfg.Metrics,
		}, cfg.Stores)
	}

	return &Controller{
		cfg:     cfg,
		factory: cfg.Factory,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// newChild creates the controller for the personal stage of a composite
// connect. It shares the factory and supports only personal.
func (c *Controller) newChild(personal []*wallet.Descriptor) *Controller {
	cfg := c.cfg
	cfg.Wallets = personal
	cfg.SkipAutoConnect = true
	cfg.SignerWallet = nil

	child := New(cfg)
	child.child = true
	child.status = StatusDisconnected
	child.autoTriggered.Store(true)
	return child
}

// Status returns the connection status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ActiveWallet returns the active instance, or nil.
func (c *Controller) ActiveWallet() wallet.Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// ActiveDescriptor returns the descriptor of the active instance, or nil.
func (c *Controller) ActiveDescriptor() *wallet.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeDesc
}

// Signer returns the active wallet's signer, or nil when nothing is active.
func (c *Controller) Signer() wallet.Signer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signer
}

// ChainID returns the connected chain, or zero.
func (c *Controller) ChainID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainID
}

// Wallets returns the supported wallet set.
func (c *Controller) Wallets() []*wallet.Descriptor {
	return c.cfg.Wallets
}

// Factory returns the factory instances are created with.
func (c *Controller) Factory() *wallet.Factory {
	return c.factory
}

// CreateWalletInstance creates an instance of desc through the factory.
func (c *Controller) CreateWalletInstance(desc *wallet.Descriptor) wallet.Instance {
	return c.factory.Create(desc)
}

// DescriptorFor returns the descriptor that created inst.
func (c *Controller) DescriptorFor(inst wallet.Instance) *wallet.Descriptor {
	return c.factory.DescriptorFor(inst)
}

// Lookup returns the supported descriptor with id, or nil.
func (c *Controller) Lookup(id string) *wallet.Descriptor {
	for _, d := range c.cfg.Wallets {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Subscribe delivers state events to ch. Subscribers must keep ch drained.
func (c *Controller) Subscribe(ch chan<- StateEvent) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Close stops event bridging. The active wallet stays connected.
func (c *Controller) Close() {
	c.mu.Lock()
	b := c.bridge
	c.bridge = nil
	c.closed = true
	c.mu.Unlock()

	if b != nil {
		b.detach()
	}
}

// Connect connects desc and makes it the active wallet. Explicit params win
// over the controller's chainId default. A composite descriptor without a
// live personal wallet in params runs the two-stage CompositeFlow.
func (c *Controller) Connect(ctx context.Context, desc *wallet.Descriptor, params wallet.Params) (wallet.Instance, error) {
	if err := c.checkSupported(desc); err != nil {
		return nil, err
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, walleterr.ErrConnectInProgress
	}
	defer c.inFlight.Store(false)

	if desc.IsComposite() && params.Personal == nil {
		flow, err := c.NewCompositeFlow(desc, nil)
		if err != nil {
			return nil, err
		}
		return flow.run(ctx, params)
	}

	return c.connect(ctx, desc, params)
}

func (c *Controller) connect(ctx context.Context, desc *wallet.Descriptor, params wallet.Params) (wallet.Instance, error) {
	c.setStatus(StatusConnecting)

	merged := wallet.Merge(wallet.Params{ChainID: c.cfg.ChainToConnect}, params)
	if desc.RedirectSignIn {
		c.saveRecord(ctx, wallet.Record{WalletID: desc.ID, ConnectParams: storable(merged)})
	}

	inst := c.factory.Create(desc)
	if _, err := inst.Connect(ctx, merged); err != nil {
		c.factory.Release(inst)
		c.connectFailed()
		c.metrics.RecordConnect(err)
		c.log.Error("connect %s: %v", desc.ID, err)
		return nil, err
	}

	if err := c.SetActiveWallet(ctx, inst, &merged, false); err != nil {
		c.factory.Release(inst)
		if dErr := inst.Disconnect(ctx); dErr != nil {
			c.log.Debug("disconnect %s after failed activation: %v", desc.ID, dErr)
		}
		c.connectFailed()
		c.metrics.RecordConnect(err)
		return nil, err
	}

	c.metrics.RecordConnect(nil)
	return inst, nil
}

// SetActiveWallet promotes inst, which must come from this controller's
// factory, to the active wallet. The signer and chain id are fetched before
// the status becomes connected. Unless isAutoConnect, the session record
// is persisted, folding in the personal wallet of a composite.
func (c *Controller) SetActiveWallet(ctx context.Context, inst wallet.Instance, params *wallet.Params, isAutoConnect bool) error {
	desc := c.factory.DescriptorFor(inst)
	if desc == nil {
		return walleterr.ErrUnknownInstance
	}

	signer, err := inst.Signer(ctx)
	if err != nil {
		return err
	}

	chainID, err := inst.ChainID(ctx)
	if err != nil {
		c.log.Debug("chain id of %s: %v", desc.ID, err)
		if params != nil {
			chainID = params.ChainID
		}
	}

	b := newBridge(c, inst)

	c.mu.Lock()
	prev, prevBridge := c.active, c.bridge
	c.active = inst
	c.activeDesc = desc
	c.signer = signer
	c.chainID = chainID
	c.status = StatusConnected
	closed := c.closed
	if !closed {
		c.bridge = b
	}
	c.mu.Unlock()

	if prevBridge != nil {
		prevBridge.detach()
	}
	if closed {
		b.detach()
	} else {
		b.start()
	}
	if prev != nil && prev != inst {
		c.retire(ctx, prev, inst)
	}

	if !isAutoConnect && !c.child {
		c.saveRecord(ctx, c.recordFor(desc, inst, params))
	}

	c.publish(StateEvent{})
	return nil
}

// SwitchChain moves the active wallet to chainID and refreshes the signer.
// The stored record's chain is updated best-effort.
func (c *Controller) SwitchChain(ctx context.Context, chainID int64) error {
	inst := c.ActiveWallet()
	if inst == nil {
		return walleterr.ErrNoActiveWallet
	}

	err := inst.SwitchChain(ctx, chainID)
	c.metrics.RecordChainSwitch(err)
	if err != nil {
		return err
	}

	signer, err := inst.Signer(ctx)
	if err != nil {
		return err
	}
	if !c.child {
		c.storeChain(ctx, chainID)
	}

	c.mu.Lock()
	if c.active == inst {
		c.signer = signer
		c.chainID = chainID
	}
	c.mu.Unlock()

	c.publish(StateEvent{})
	return nil
}

// Disconnect disconnects the active wallet, and the personal wallet of a
// composite, then clears the session record. With nothing active it only
// resets state. State is reset even when the wallet fails to disconnect;
// that error is returned. It fails with ErrConnectInProgress while a
// connect or auto-connect is running.
func (c *Controller) Disconnect(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return walleterr.ErrConnectInProgress
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	inst, b := c.active, c.bridge
	c.bridge = nil
	c.mu.Unlock()

	if b != nil {
		b.detach()
	}

	var err error
	if inst != nil {
		personal := inst.PersonalWallet()
		err = inst.Disconnect(ctx)
		if err != nil {
			c.log.Error("disconnect %s: %v", inst.ID(), err)
		}
		if personal != nil {
			if pErr := personal.Disconnect(ctx); pErr != nil {
				c.log.Error("disconnect personal wallet %s: %v", personal.ID(), pErr)
			}
			c.factory.Release(personal)
		}
		c.factory.Release(inst)
		c.metrics.RecordDisconnect(false)
	}

	c.reset(ctx, inst)
	return err
}

// reset clears session state if inst is still the active wallet.
func (c *Controller) reset(ctx context.Context, inst wallet.Instance) {
	if !c.child {
		c.clearRecord(ctx)
	}

	c.mu.Lock()
	if c.active != inst {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.activeDesc = nil
	c.signer = nil
	c.chainID = 0
	c.status = StatusDisconnected
	c.mu.Unlock()

	c.publish(StateEvent{})
}

// retire tears down a replaced instance and its personal wallet. Instances
// of the incoming wallet's kinds share its transport session and its
// coordinator claim, so they are discarded instead of disconnected.
func (c *Controller) retire(ctx context.Context, prev, next wallet.Instance) {
	shared := map[string]bool{next.ID(): true}
	nextPersonal := next.PersonalWallet()
	if nextPersonal != nil {
		shared[nextPersonal.ID()] = true
	}

	olds := []wallet.Instance{prev}
	if p := prev.PersonalWallet(); p != nil {
		olds = append(olds, p)
	}

	for _, old := range olds {
		if old == next || old == nextPersonal {
			continue
		}
		c.factory.Release(old)
		if shared[old.ID()] {
			old.Discard()
			continue
		}
		if err := old.Disconnect(ctx); err != nil {
			c.log.Debug("disconnect replaced wallet %s: %v", old.ID(), err)
		}
	}
}

func (c *Controller) checkSupported(desc *wallet.Descriptor) error {
	if desc == nil {
		return walleterr.Template(walleterr.ErrUnsupportedWallet, map[string]string{"walletId": "<nil>"})
	}
	if c.Lookup(desc.ID) != desc {
		return walleterr.Template(walleterr.ErrUnsupportedWallet, map[string]string{"walletId": desc.ID})
	}
	return nil
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	c.mu.Unlock()

	if changed {
		c.publish(StateEvent{})
	}
}

// connectFailed settles a failed connect. A session still held from before
// stays connected.
func (c *Controller) connectFailed() {
	c.mu.Lock()
	if c.active != nil {
		c.status = StatusConnected
	} else {
		c.status = StatusDisconnected
	}
	c.mu.Unlock()

	c.publish(StateEvent{})
}

// publish fills ev with the current state and sends it to subscribers.
func (c *Controller) publish(ev StateEvent) {
	c.mu.RLock()
	ev.Status = c.status
	ev.ChainID = c.chainID
	if c.activeDesc != nil {
		ev.WalletID = c.activeDesc.ID
	}
	if c.signer != nil {
		ev.Account = c.signer.Address()
	}
	c.mu.RUnlock()

	c.feed.Send(ev)
}
