package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// Broker API credentials are stored encrypted at rest and only decrypted when
// an account adapter is constructed. The key comes from the environment,
// base64-encoded, 32 bytes.

var errInvalidKey = errors.New("BROKER_CREDENTIALS_KEY must be 32 bytes, base64-encoded")

func loadKey() (*[32]byte, error) {
	config := GetConfig()
	if config.BrokerCredentialsKey == "" {
		return nil, errInvalidKey
	}

	raw, err := base64.StdEncoding.DecodeString(config.BrokerCredentialsKey)
	if err != nil || len(raw) != 32 {
		return nil, errInvalidKey
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptString seals the plaintext with a random nonce and returns it
// base64-encoded for storage in a text column.
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credential decode failed: %w", err)
	}
	if len(raw) < 24 {
		return "", errors.New("credential ciphertext too short")
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, key)
	if !ok {
		return "", errors.New("credential decryption failed")
	}

	return string(plaintext), nil
}
