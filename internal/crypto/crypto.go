// Package crypto implements the symmetric encryption of chat message
// payloads: AES-256-GCM with a fresh nonce per message, packed as
// base64(nonce):base64(ciphertext). The format matches what the other
// room participants produce, so the algorithm is fixed.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the length of the raw symmetric key in bytes.
const KeySize = 32

const nonceSize = 12

var (
	// ErrInvalidKey reports key material that cannot be imported.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrMalformedPacket reports a packed ciphertext that does not split
	// into a nonce and a ciphertext part.
	ErrMalformedPacket = errors.New("malformed message packet")

	// ErrDecryptionFailed reports an authentication failure: the packet
	// was tampered with or encrypted under a different key.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// GenerateKey produces new symmetric key material in its transportable
// base64 form.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Cipher is a usable key handle for encrypting and decrypting payloads.
type Cipher struct {
	aead cipher.AEAD
}

// ImportKey reconstructs a Cipher from transportable key material.
func ImportKey(material string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), KeySize)
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{aead: aead}, nil
}

// Encode encrypts the plaintext with a fresh random nonce and packs the
// result. Two calls with identical plaintext never produce the same output.
func (c *Cipher) Encode(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ct := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(ct), nil
}

// Decode unpacks and decrypts a packed ciphertext.
func (c *Cipher) Decode(packed string) (string, error) {
	nonceB64, ctB64, found := strings.Cut(packed, ":")
	if !found || nonceB64 == "" || ctB64 == "" {
		return "", ErrMalformedPacket
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if len(nonce) != nonceSize {
		return "", ErrMalformedPacket
	}

	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
