// internal/crypto/crypto.go
//
// AES-256-GCM encryption for secrets stored at rest. Keys are derived from a
// passphrase with scrypt; the salt travels with the encrypted payload.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the scrypt salt length in bytes.
	SaltSize = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	ErrEmptyPassphrase = errors.New("empty passphrase")
	ErrCipherTooShort  = errors.New("ciphertext too short")
	// ErrAuthentication is returned when the passphrase is wrong or the data was tampered with.
	ErrAuthentication = errors.New("decryption failed: wrong passphrase or corrupted data")
)

// Cipher is an AES-256-GCM cipher bound to one derived key.
type Cipher struct {
	key  []byte
	salt []byte
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches passphrase into a KeySize key.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// NewCipher derives a key from passphrase and salt.
func NewCipher(passphrase string, salt []byte) (*Cipher, error) {
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return &Cipher{key: key, salt: append([]byte(nil), salt...)}, nil
}

// Salt returns the salt the key was derived with, hex encoded.
func (c *Cipher) Salt() string {
	return hex.EncodeToString(c.salt)
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext and returns hex(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encryptedHex string) (string, error) {
	combined, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}

	aead, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := aead.NonceSize()
	if len(combined) < nonceSize {
		return "", ErrCipherTooShort
	}

	plaintext, err := aead.Open(nil, combined[:nonceSize], combined[nonceSize:], nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}
