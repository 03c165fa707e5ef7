package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidSignature indicates a signature that is not 65 bytes or
	// carries an unknown recovery id.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNilTransaction indicates a nil transaction was passed for signing.
	ErrNilTransaction = errors.New("transaction is nil")
)

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner creates a signer for key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the signing account.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignMessage returns a 65-byte [R || S || V] signature over the EIP-191
// hash of msg, with V in {27, 28}.
func (s *KeySigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignTransaction signs tx for chainID with the latest applicable signer.
func (s *KeySigner) SignTransaction(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// RecoverMessageSigner returns the account that produced sig over msg.
// Both {0, 1} and {27, 28} recovery ids are accepted.
func RecoverMessageSigner(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
