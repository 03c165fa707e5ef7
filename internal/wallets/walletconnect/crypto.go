package walletconnect

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeySize is the length of a session's symmetric key.
const KeySize = 32

var (
	// ErrBadMAC indicates a payload whose HMAC does not match.
	ErrBadMAC = errors.New("walletconnect payload hmac mismatch")
	// ErrBadPadding indicates a payload that does not decrypt cleanly.
	ErrBadPadding = errors.New("walletconnect payload padding invalid")
)

// Payload is an encrypted JSON-RPC message as carried by the bridge.
type Payload struct {
	Data string `json:"data"`
	HMAC string `json:"hmac"`
	IV   string `json:"iv"`
}

// NewKey returns a random session key.
func NewKey() ([]byte, error) {
	return randomBytes(KeySize)
}

// Encrypt seals plaintext with AES-256-CBC and authenticates the
// ciphertext and IV with HMAC-SHA256 under the same key.
func Encrypt(plaintext, key []byte) (Payload, error) {
	iv, err := randomBytes(aes.BlockSize)
	if err != nil {
		return Payload{}, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Payload{}, fmt.Errorf("creating cipher: %w", err)
	}
	padded := pad(plaintext, aes.BlockSize)
	data := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(data, padded)

	return Payload{
		Data: hex.EncodeToString(data),
		HMAC: hex.EncodeToString(mac(data, iv, key)),
		IV:   hex.EncodeToString(iv),
	}, nil
}

// Decrypt verifies and opens p.
func Decrypt(p Payload, key []byte) ([]byte, error) {
	data, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, fmt.Errorf("decoding iv: %w", err)
	}
	sum, err := hex.DecodeString(p.HMAC)
	if err != nil {
		return nil, fmt.Errorf("decoding hmac: %w", err)
	}
	if !hmac.Equal(sum, mac(data, iv, key)) {
		return nil, ErrBadMAC
	}
	if len(iv) != aes.BlockSize || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return unpad(out, aes.BlockSize)
}

func mac(data, iv, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	h.Write(iv)
	return h.Sum(nil)
}

// pad applies PKCS#7 padding.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}
