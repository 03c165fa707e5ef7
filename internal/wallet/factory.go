package wallet

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mrz1836/walletlink/internal/storage"
)

// Factory instantiates wallets and remembers which descriptor created each
// live instance. The table holds instance ids, not instances, so it never
// keeps a discarded instance alive; Release drops the entry.
type Factory struct {
	opts   Options
	stores storage.ScopeFunc

	mu    sync.RWMutex
	table map[string]*Descriptor
}

// NewFactory creates a factory. stores returns the private store for a
// wallet kind; a nil stores leaves Options.Store unset.
func NewFactory(opts Options, stores storage.ScopeFunc) *Factory {
	return &Factory{
		opts:   opts,
		stores: stores,
		table:  make(map[string]*Descriptor),
	}
}

// Create builds a fresh instance of desc and records the association.
func (f *Factory) Create(desc *Descriptor) Instance {
	opts := f.opts
	opts.InstanceID = uuid.NewString()
	if f.stores != nil {
		opts.Store = f.stores(desc.ID)
	}

	inst := desc.Create(opts)

	f.mu.Lock()
	f.table[inst.InstanceID()] = desc
	f.mu.Unlock()

	return inst
}

// DescriptorFor returns the descriptor that created inst, or nil when inst
// was not created by this factory or has been released.
func (f *Factory) DescriptorFor(inst Instance) *Descriptor {
	if inst == nil {
		return nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.table[inst.InstanceID()]
}

// Release forgets inst. Call it when an instance is discarded.
func (f *Factory) Release(inst Instance) {
	if inst == nil {
		return
	}

	f.mu.Lock()
	delete(f.table, inst.InstanceID())
	f.mu.Unlock()
}

// Len returns the number of tracked instances.
func (f *Factory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.table)
}

// Options returns the options instances are created with.
func (f *Factory) Options() Options {
	return f.opts
}
