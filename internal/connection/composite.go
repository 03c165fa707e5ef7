package connection

import (
	"context"
	"sync"

	"github.com/mrz1836/walletlink/internal/wallet"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// Stage is a step of a composite connect.
type Stage int

// Composite connect stages.
const (
	// StagePersonal connects the personal wallet through the inner controller.
	StagePersonal Stage = iota + 1
	// StageFinalize connects the composite on top of the personal wallet.
	StageFinalize
	StageDone
	StageFailed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StagePersonal:
		return "personal"
	case StageFinalize:
		return "finalize"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CompositeFlow connects a composite wallet in two strictly ordered
// stages. The personal wallet is connected by an inner controller that
// shares the parent's factory; the composite is connected by the parent
// only once the inner controller reports StatusConnected.
type CompositeFlow struct {
	parent   *Controller
	desc     *wallet.Descriptor
	personal *wallet.Descriptor
	inner    *Controller

	mu    sync.Mutex
	stage Stage
	err   error
}

// NewCompositeFlow prepares a composite connect of desc. personal selects
// one of desc's personal wallet options; nil picks the first.
func (c *Controller) NewCompositeFlow(desc, personal *wallet.Descriptor) (*CompositeFlow, error) {
	if err := c.checkSupported(desc); err != nil {
		return nil, err
	}
	if !desc.IsComposite() {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"wallet": desc.ID,
			"reason": "not a composite wallet",
		})
	}
	if personal == nil {
		personal = desc.PersonalWallets[0]
	} else if desc.PersonalOption(personal.ID) != personal {
		return nil, walleterr.Template(walleterr.ErrUnsupportedWallet, map[string]string{"walletId": personal.ID})
	}

	return &CompositeFlow{
		parent:   c,
		desc:     desc,
		personal: personal,
		inner:    c.newChild([]*wallet.Descriptor{personal}),
		stage:    StagePersonal,
	}, nil
}

// Stage returns the current stage.
func (f *CompositeFlow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// Err returns the error that failed the flow.
func (f *CompositeFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Inner returns the controller of the personal stage.
func (f *CompositeFlow) Inner() *Controller {
	return f.inner
}

// Personal returns the personal wallet descriptor.
func (f *CompositeFlow) Personal() *wallet.Descriptor {
	return f.personal
}

// ConnectPersonal runs the personal stage. The parent reports
// StatusConnecting from here until Finalize settles it. On success the flow
// moves to StageFinalize.
func (f *CompositeFlow) ConnectPersonal(ctx context.Context, params wallet.Params) (wallet.Instance, error) {
	if st := f.Stage(); st != StagePersonal {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"stage": st.String(),
		})
	}

	f.parent.setStatus(StatusConnecting)
	inst, err := f.inner.Connect(ctx, f.personal, params)
	if err != nil {
		f.fail(err)
		f.parent.connectFailed()
		return nil, err
	}

	f.advance(StageFinalize)
	return inst, nil
}

// Finalize connects the composite on top of the inner controller's active
// wallet. It fails with ErrPersonalWalletRequired unless the inner
// controller is connected. A failed composite connect disconnects the
// personal wallet it was built on.
func (f *CompositeFlow) Finalize(ctx context.Context, params wallet.Params) (wallet.Instance, error) {
	if !f.parent.inFlight.CompareAndSwap(false, true) {
		return nil, walleterr.ErrConnectInProgress
	}
	defer f.parent.inFlight.Store(false)

	return f.finalize(ctx, params)
}

func (f *CompositeFlow) finalize(ctx context.Context, params wallet.Params) (wallet.Instance, error) {
	if f.inner.Status() != StatusConnected {
		return nil, walleterr.Template(walleterr.ErrPersonalWalletRequired, map[string]string{"walletId": f.desc.ID})
	}

	params.Personal = f.inner.ActiveWallet()
	params.PersonalWallet = nil
	if params.ChainID == 0 {
		params.ChainID = f.inner.ChainID()
	}

	inst, err := f.parent.connect(ctx, f.desc, params)
	if err != nil {
		f.fail(err)
		if dErr := f.inner.Disconnect(ctx); dErr != nil {
			f.parent.log.Debug("disconnect personal wallet %s: %v", f.personal.ID, dErr)
		}
		return nil, err
	}

	// The composite now owns the personal wallet's lifecycle.
	f.inner.Close()
	f.advance(StageDone)
	return inst, nil
}

// run drives both stages.
func (f *CompositeFlow) run(ctx context.Context, params wallet.Params) (wallet.Instance, error) {
	personalParams := wallet.Params{ChainID: params.ChainID}
	if params.PersonalWallet != nil {
		personalParams = wallet.Merge(personalParams, params.PersonalWallet.Params())
	}

	if _, err := f.ConnectPersonal(ctx, personalParams); err != nil {
		return nil, err
	}
	return f.finalize(ctx, params)
}

func (f *CompositeFlow) advance(s Stage) {
	f.mu.Lock()
	f.stage = s
	f.mu.Unlock()
}

func (f *CompositeFlow) fail(err error) {
	f.mu.Lock()
	f.stage = StageFailed
	f.err = err
	f.mu.Unlock()
}
