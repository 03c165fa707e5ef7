package connection

import (
	"context"

	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/walletlink/internal/wallet"
)

// bridge relays one active wallet's events into controller state. A bridge
// is detached when its wallet stops being active; events that arrive after
// that are dropped.
type bridge struct {
	c    *Controller
	inst wallet.Instance
	ch   chan wallet.Event
	sub  event.Subscription
}

// newBridge subscribes to inst. Events queue until start.
func newBridge(c *Controller, inst wallet.Instance) *bridge {
	b := &bridge{c: c, inst: inst, ch: make(chan wallet.Event, 16)}
	b.sub = inst.Subscribe(b.ch)
	return b
}

func (b *bridge) start() {
	go b.run(b.sub)
}

func (b *bridge) detach() {
	b.sub.Unsubscribe()
}

func (b *bridge) run(sub event.Subscription) {
	for {
		select {
		case ev := <-b.ch:
			if !b.c.isCurrent(b) {
				return
			}
			b.c.handleWalletEvent(b, ev)
		case <-sub.Err():
			return
		}
	}
}

func (c *Controller) isCurrent(b *bridge) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bridge == b
}

func (c *Controller) handleWalletEvent(b *bridge, ev wallet.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch ev.Kind {
	case wallet.EventChange:
		c.refresh(ctx, b)
	case wallet.EventDisconnect:
		c.walletDisconnected(ctx, b)
	case wallet.EventMessage:
		c.log.Debug("wallet %s: message: %s", b.inst.ID(), ev.Message)
		c.publish(StateEvent{Message: ev.Message})
	case wallet.EventError:
		c.log.Error("wallet %s: %v", b.inst.ID(), ev.Err)
		c.publish(StateEvent{Err: ev.Err})
	case wallet.EventConnect:
	}
}

// refresh re-reads chain id and signer after an account or chain change.
// The status is left alone.
func (c *Controller) refresh(ctx context.Context, b *bridge) {
	chainID, err := b.inst.ChainID(ctx)
	if err != nil {
		c.log.Error("refresh chain id of %s: %v", b.inst.ID(), err)
		return
	}
	signer, err := b.inst.Signer(ctx)
	if err != nil {
		c.log.Error("refresh signer of %s: %v", b.inst.ID(), err)
		return
	}

	c.mu.Lock()
	if c.bridge != b {
		c.mu.Unlock()
		return
	}
	c.chainID = chainID
	c.signer = signer
	c.mu.Unlock()

	c.publish(StateEvent{})
}

// walletDisconnected handles a wallet-initiated disconnect with the same
// reset path as Disconnect.
func (c *Controller) walletDisconnected(ctx context.Context, b *bridge) {
	c.mu.Lock()
	if c.bridge != b {
		c.mu.Unlock()
		return
	}
	c.bridge = nil
	c.mu.Unlock()

	b.detach()

	if personal := b.inst.PersonalWallet(); personal != nil {
		if err := personal.Disconnect(ctx); err != nil {
			c.log.Debug("disconnect personal wallet %s: %v", personal.ID(), err)
		}
		c.factory.Release(personal)
	}
	c.factory.Release(b.inst)
	c.metrics.RecordDisconnect(true)
	c.log.Debug("wallet %s disconnected", b.inst.ID())

	c.reset(ctx, b.inst)
}
