// Package crypto implements the reversible body transform applied to message
// text before storage and after retrieval. The codec is a pure value type:
// construct once from the configured key and share freely across sessions.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

// Codec encrypts and decrypts message bodies with AES-256-GCM. Ciphertexts
// are base64-encoded with the nonce prepended, so a stored value is always a
// printable token.
type Codec struct {
	aead cipher.AEAD
}

// ErrEmptyKey is returned when constructing a Codec without key material.
var ErrEmptyKey = errors.New("crypto: key must not be empty")

// NewCodec derives a 256-bit key from the given secret (SHA-256 of the raw
// bytes) and returns a ready-to-use Codec. Any non-empty secret is accepted;
// key hygiene is the deployment's concern.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt transforms plaintext into a storable token. A nil input passes
// through as nil so callers do not have to special-case absent bodies.
func (c *Codec) Encrypt(plaintext *string) *string {
	if plaintext == nil {
		return nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		// rand.Reader failing means the process is in a state where nothing
		// else works either; surface the original text as unreadable.
		return nil
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(*plaintext), nil)
	token := base64.StdEncoding.EncodeToString(sealed)
	return &token
}

// Decrypt reverses Encrypt. Failure never raises: an undecodable or
// tampered token yields nil, which the store layer surfaces as a null body.
// A nil input passes through as nil.
func (c *Codec) Decrypt(token *string) *string {
	if token == nil {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(*token)
	if err != nil {
		return nil
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return nil
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil
	}
	out := string(plain)
	return &out
}
