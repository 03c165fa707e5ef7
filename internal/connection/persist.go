package connection

import (
	"context"

	"github.com/mrz1836/walletlink/internal/wallet"
)

// recordFor builds the session record for inst. The wallet's own view of
// its params is preferred; a composite's personal wallet is folded in as a
// nested record.
func (c *Controller) recordFor(desc *wallet.Descriptor, inst wallet.Instance, params *wallet.Params) wallet.Record {
	p := inst.ConnectParams()
	if p == nil && params != nil {
		p = storable(*params)
	}
	if p == nil {
		p = &wallet.Params{}
	}

	if personal := inst.PersonalWallet(); personal != nil {
		id := personal.ID()
		if pd := c.factory.DescriptorFor(personal); pd != nil {
			id = pd.ID
		}
		p.PersonalWallet = &wallet.Record{WalletID: id, ConnectParams: personal.ConnectParams()}
	}

	return wallet.Record{WalletID: desc.ID, ConnectParams: p}
}

// storable returns a copy of p without the live personal instance.
func storable(p wallet.Params) *wallet.Params {
	out := p.Clone()
	out.Personal = nil
	return &out
}

// loadRecord reads the session record. A corrupt record is removed and
// reported absent.
func (c *Controller) loadRecord(ctx context.Context) *wallet.Record {
	if c.cfg.Coordinator == nil {
		return nil
	}

	raw, ok, err := c.cfg.Coordinator.Get(ctx, wallet.KeyLastConnectedWalletInfo)
	if err != nil {
		c.storageFailed("read session record", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	rec, err := wallet.ParseRecord(raw)
	if err != nil {
		c.log.Error("discarding corrupt session record: %v", err)
		c.clearRecord(ctx)
		return nil
	}
	return rec
}

func (c *Controller) saveRecord(ctx context.Context, rec wallet.Record) {
	if c.cfg.Coordinator == nil {
		return
	}

	raw, err := rec.Encode()
	if err != nil {
		c.log.Error("encoding session record for %s: %v", rec.WalletID, err)
		return
	}
	if err := c.cfg.Coordinator.Set(ctx, wallet.KeyLastConnectedWalletInfo, raw); err != nil {
		c.storageFailed("write session record", err)
	}
}

func (c *Controller) clearRecord(ctx context.Context) {
	if c.cfg.Coordinator == nil {
		return
	}
	if err := c.cfg.Coordinator.Remove(ctx, wallet.KeyLastConnectedWalletInfo); err != nil {
		c.storageFailed("remove session record", err)
	}
}

// clearClaim removes the coordinator's lastConnectedWallet key.
func (c *Controller) clearClaim(ctx context.Context) {
	if c.cfg.Coordinator == nil {
		return
	}
	if err := c.cfg.Coordinator.Remove(ctx, wallet.KeyLastConnectedWallet); err != nil {
		c.storageFailed("remove last connected wallet", err)
	}
}

// storeChain rewrites the chain id inside the stored record.
func (c *Controller) storeChain(ctx context.Context, chainID int64) {
	rec := c.loadRecord(ctx)
	if rec == nil {
		return
	}
	if rec.ConnectParams == nil {
		rec.ConnectParams = &wallet.Params{}
	}
	rec.ConnectParams.ChainID = chainID
	c.saveRecord(ctx, *rec)
}

func (c *Controller) storageFailed(op string, err error) {
	c.metrics.RecordStorageError()
	c.log.Error("%s: %v", op, err)
}
