package connection

import (
	"github.com/ethereum/go-ethereum/common"
)

// Status is the controller's connection status.
type Status int

// Connection statuses. StatusUnknown is only held until the first
// auto-connect attempt settles.
const (
	StatusUnknown Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// MarshalText renders the status name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateEvent is published to controller subscribers on every state change
// and for wallet messages and errors.
type StateEvent struct {
	Status   Status         `json:"status"`
	WalletID string         `json:"walletId,omitempty"`
	Account  common.Address `json:"account"`
	ChainID  int64          `json:"chainId,omitempty"`
	Message  string         `json:"message,omitempty"`
	Err      error          `json:"-"`
}
