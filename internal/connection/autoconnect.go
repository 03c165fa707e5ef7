package connection

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/walletlink/internal/wallet"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// errNoSession marks an auto-connect with nothing to restore.
var errNoSession = errors.New("no session to restore")

// AutoConnect leaves StatusUnknown. It runs at most once per controller:
//
//   - a configured signer wallet is connected instead of restoring;
//   - with auto-connect disabled the status becomes disconnected;
//   - otherwise the stored session is restored without prompting.
//
// Failures are logged, never returned; the status settles to disconnected.
// The session record and the lastConnectedWallet claim are cleared only
// when a stage times out.
func (c *Controller) AutoConnect(ctx context.Context) {
	if !c.autoTriggered.CompareAndSwap(false, true) {
		return
	}

	if c.cfg.SignerWallet != nil {
		c.connectSignerWallet(ctx)
		return
	}

	c.mu.RLock()
	status, active := c.status, c.active
	c.mu.RUnlock()
	if status != StatusUnknown || active != nil {
		return
	}

	if c.cfg.SkipAutoConnect {
		c.settleUnknown()
		return
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		c.settleUnknown()
		return
	}
	defer c.inFlight.Store(false)

	err := c.restore(ctx)
	switch {
	case err == nil:
		c.metrics.RecordAutoConnect(nil, false)
		return
	case errors.Is(err, errNoSession):
		c.log.Debug("auto connect: %v", err)
	default:
		timedOut := errors.Is(err, walleterr.ErrAutoConnectTimeout)
		c.metrics.RecordAutoConnect(err, timedOut)
		c.log.Error("auto connect: %v", err)
		if timedOut {
			c.clearRecord(ctx)
			c.clearClaim(ctx)
		}
	}
	c.settleUnknown()
}

// restore reconnects the wallet named by the session record.
func (c *Controller) restore(ctx context.Context) error {
	rec := c.loadRecord(ctx)
	if rec == nil {
		return errNoSession
	}

	desc, personalRec := c.resolveRecord(rec)
	if desc == nil {
		return errNoSession
	}

	params := rec.Params()
	var personal wallet.Instance
	if personalRec != nil {
		personalDesc := desc.PersonalOption(personalRec.WalletID)
		if personalDesc == nil {
			return errNoSession
		}

		var err error
		personal, err = c.autoConnectStage(ctx, personalDesc, personalRec.Params())
		if err != nil {
			return err
		}
		params.Personal = personal
		params.PersonalWallet = nil
	}

	inst, err := c.autoConnectStage(ctx, desc, params)
	if err != nil {
		if personal != nil {
			c.factory.Release(personal)
			if dErr := personal.Disconnect(ctx); dErr != nil {
				c.log.Debug("disconnect personal wallet %s: %v", personal.ID(), dErr)
			}
		}
		return err
	}

	if err := c.SetActiveWallet(ctx, inst, &params, true); err != nil {
		c.factory.Release(inst)
		if dErr := inst.Disconnect(ctx); dErr != nil {
			c.log.Debug("disconnect %s after failed activation: %v", desc.ID, dErr)
		}
		return err
	}
	return nil
}

// resolveRecord finds the supported descriptor a record refers to and the
// personal wallet sub-record to connect first.
//
// A redirect sign-in of a composite's personal wallet is stored before the
// composite ever connected, so the record names the personal wallet and
// carries the oauthProvider marker. The composite descriptor is then
// resolved from its declared personal options and the sub-record is
// synthesized from the outer record.
func (c *Controller) resolveRecord(rec *wallet.Record) (*wallet.Descriptor, *wallet.Record) {
	params := rec.Params()
	desc := c.Lookup(rec.WalletID)
	redirect := params.Has(wallet.ParamOAuthProvider)

	if redirect && (desc == nil || !desc.IsComposite()) {
		if comp := c.compositeWrapping(rec.WalletID); comp != nil {
			desc = comp
		}
	}
	if desc == nil {
		return nil, nil
	}

	personal := params.PersonalWallet
	if personal == nil && redirect && desc.IsComposite() {
		personal = &wallet.Record{WalletID: rec.WalletID, ConnectParams: rec.ConnectParams}
	}
	return desc, personal
}

// compositeWrapping returns the supported composite declaring id as a
// personal wallet option.
func (c *Controller) compositeWrapping(id string) *wallet.Descriptor {
	for _, d := range c.cfg.Wallets {
		if d.IsComposite() && d.PersonalOption(id) != nil {
			return d
		}
	}
	return nil
}

// autoConnectStage creates an instance of desc and auto-connects it within
// the configured bound. A late result after a timeout is discarded.
func (c *Controller) autoConnectStage(ctx context.Context, desc *wallet.Descriptor, params wallet.Params) (wallet.Instance, error) {
	inst := c.factory.Create(desc)

	_, err := withTimeout(ctx, c.cfg.AutoConnectTimeout, desc.ID, func(ctx context.Context) (common.Address, error) {
		return inst.AutoConnect(ctx, &params)
	})
	if err != nil {
		c.factory.Release(inst)
		return nil, err
	}
	return inst, nil
}

// connectSignerWallet connects the configured headless signer wallet
// without persisting a session record.
func (c *Controller) connectSignerWallet(ctx context.Context) {
	desc := c.cfg.SignerWallet
	inst := c.factory.Create(desc)

	params := wallet.Params{ChainID: c.cfg.ChainToConnect}
	if _, err := inst.Connect(ctx, params); err != nil {
		c.factory.Release(inst)
		c.log.Error("connect signer wallet %s: %v", desc.ID, err)
		c.settleUnknown()
		return
	}
	if err := c.SetActiveWallet(ctx, inst, &params, true); err != nil {
		c.factory.Release(inst)
		c.log.Error("activate signer wallet %s: %v", desc.ID, err)
		c.settleUnknown()
	}
}

// settleUnknown moves StatusUnknown to StatusDisconnected.
func (c *Controller) settleUnknown() {
	c.mu.Lock()
	changed := c.status == StatusUnknown
	if changed {
		c.status = StatusDisconnected
	}
	c.mu.Unlock()

	if changed {
		c.publish(StateEvent{})
	}
}
