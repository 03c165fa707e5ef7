// Package wallet defines the contract every wallet kind implements, the
// reusable session persistence logic shared by transport-backed wallets,
// and the factory that instantiates wallets from descriptors.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Storage keys shared by wallets and the connection controller.
const (
	// CoordinatorScope is the storage scope shared by all wallet kinds.
	CoordinatorScope = "coordinatorStorage"

	// KeyLastConnectedWallet holds the id of the last wallet that connected.
	KeyLastConnectedWallet = "lastConnectedWallet"
	// KeyLastConnectedWalletInfo holds the controller's JSON session record.
	KeyLastConnectedWalletInfo = "lastConnectedWalletInfo"
	// KeyLastConnectedParams holds a wallet's own last connect params.
	KeyLastConnectedParams = "lastConnectedParams"
	// KeyLastConnectedChain holds a wallet's last connected chain id.
	KeyLastConnectedChain = "lastConnectedChain"
)

// Instance is a live, stateful wallet created by a Descriptor.
// An instance is discarded after it disconnects.
type Instance interface {
	// ID returns the wallet kind identifier.
	ID() string
	// InstanceID returns the unique id assigned at creation.
	InstanceID() string

	Connect(ctx context.Context, params Params) (common.Address, error)
	// AutoConnect reconnects without prompting. It fails with
	// ErrNotAuthorized when the transport has not already authorized us.
	AutoConnect(ctx context.Context, params *Params) (common.Address, error)
	Disconnect(ctx context.Context) error
	// Discard drops the instance's local session after a newer instance of
	// the same kind took it over. The wallet-side session and the
	// coordinator claim are left to the newer instance.
	Discard()

	Signer(ctx context.Context) (Signer, error)
	SwitchChain(ctx context.Context, chainID int64) error
	ChainID(ctx context.Context) (int64, error)

	// ConnectParams returns the params of the current connection, or nil.
	ConnectParams() *Params
	// PersonalWallet returns the nested wallet of a composite, or nil.
	PersonalWallet() Instance

	// Subscribe delivers wallet events to ch until the subscription ends.
	Subscribe(ch chan<- Event) event.Subscription
}

// Signer authorizes operations on behalf of a connected account.
type Signer interface {
	Address() common.Address
	// SignMessage signs msg with the EIP-191 personal message prefix.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// EventKind names a wallet event.
type EventKind int

// Wallet event kinds.
const (
	EventConnect EventKind = iota + 1
	EventChange
	EventDisconnect
	EventMessage
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventChange:
		return "change"
	case EventDisconnect:
		return "disconnect"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by a wallet or its transport.
// Account and ChainID are zero when unchanged or unknown.
type Event struct {
	Kind    EventKind
	Account common.Address
	ChainID int64
	Message string
	Err     error
}

// Logger is the logging surface wallets and the controller write to.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
