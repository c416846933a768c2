// Package vault encrypts OAuth tokens before they are written to the database.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrDecrypt is returned when a ciphertext is malformed or was not sealed with this key.
var ErrDecrypt = errors.New("vault: unable to decrypt value")

// Vault seals and opens short secrets with a static symmetric key.
type Vault struct {
	key [keySize]byte
}

// New builds a Vault from a base64 encoded 32 byte key.
func New(encodedKey string) (*Vault, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keySize, len(raw))
	}
	v := &Vault{}
	copy(v.key[:], raw)
	return v, nil
}

// Encrypt returns base64(nonce || secretbox(plaintext)).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
