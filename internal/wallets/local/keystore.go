package local

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/walletlink/internal/storage"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// Keys in the local wallet's store.
const (
	keyEncryptedKey = "encryptedKey"
	keyAddress      = "address"
)

// DerivationPath is the BIP-44 path used for mnemonic imports.
const DerivationPath = "m/44'/60'/0'/0/0"

// keystore keeps one age-encrypted private key in a wallet store.
type keystore struct {
	store storage.Store
	// workFactor is the scrypt log2 work factor; zero uses age's default.
	workFactor int
}

// exists reports whether an encrypted key is stored.
func (k keystore) exists(ctx context.Context) (bool, error) {
	if k.store == nil {
		return false, nil
	}
	raw, ok, err := k.store.Get(ctx, keyEncryptedKey)
	if err != nil {
		return false, err
	}
	return ok && raw != "", nil
}

// save encrypts key under password and stores it.
func (k keystore) save(ctx context.Context, key *ecdsa.PrivateKey, password string) error {
	if k.store == nil {
		return walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"reason": "local wallet has no store"})
	}

	plaintext := []byte(common.Bytes2Hex(crypto.FromECDSA(key)))
	defer zero(plaintext)

	ciphertext, err := encrypt(plaintext, password, k.workFactor)
	if err != nil {
		return err
	}
	if err := k.store.Set(ctx, keyEncryptedKey, string(ciphertext)); err != nil {
		return err
	}
	return k.store.Set(ctx, keyAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

// load decrypts the stored key.
func (k keystore) load(ctx context.Context, password string) (*ecdsa.PrivateKey, error) {
	if k.store == nil {
		return nil, walleterr.ErrNotFound
	}
	raw, ok, err := k.store.Get(ctx, keyEncryptedKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, walleterr.WithDetails(walleterr.ErrNotFound, map[string]string{"key": keyEncryptedKey})
	}

	plaintext, err := decrypt([]byte(raw), password)
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrDecryptionFailed, err)
	}
	defer pin(plaintext)()

	return parsePrivateKey(string(plaintext))
}

// encrypt seals plaintext with an armored age scrypt recipient.
func encrypt(plaintext []byte, password string, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}

	buf := &bytes.Buffer{}
	aw := armor.NewWriter(buf)
	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.Bytes(), nil
}

func decrypt(ciphertext []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}

// parsePrivateKey parses a hex private key with or without 0x.
func parsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{"reason": "invalid private key"})
	}
	return key, nil
}

// keyFromMnemonic derives the account key at DerivationPath.
func keyFromMnemonic(mnemonic string) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, walleterr.WithCause(walleterr.ErrInvalidMnemonic, err)
	}
	defer pin(seed)()

	node, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}
	for _, idx := range []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild,
		0,
		0,
	} {
		if node, err = node.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("deriving %s: %w", DerivationPath, err)
		}
	}
	return crypto.ToECDSA(node.Key)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
