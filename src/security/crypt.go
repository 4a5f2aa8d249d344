// Package security encrypts venue API credentials at rest. Ciphertexts are
// nacl/secretbox envelopes (24-byte nonce prepended), base64 encoded for
// storage in env vars and config rows.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecryptFailed = errors.New("credential decryption failed")

func secretKey() (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(GetConfig().VenueCRKey)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(raw))
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptString seals a plaintext credential under the configured key.
func EncryptString(plaintext string) (string, error) {
	key, err := secretKey()
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("nonce generation: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a sealed credential produced by EncryptString.
func DecryptString(ciphertext string) (string, error) {
	key, err := secretKey()
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(sealed) < 24 {
		return "", ErrDecryptFailed
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
