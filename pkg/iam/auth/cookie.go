package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// CookieCodec seals token strings into opaque cookie values with AES-GCM.
// The key must be 16, 24 or 32 bytes.
type CookieCodec struct {
	aead cipher.AEAD
}

func NewCookieCodec(key []byte) (*CookieCodec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cookie codec: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cookie codec: %w", err)
	}
	return &CookieCodec{aead: aead}, nil
}

// Encrypt seals the token and returns a base64 cookie value.
func (c *CookieCodec) Encrypt(token string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cookie codec: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a cookie value produced by Encrypt. Tampered or truncated
// values fail authentication and return an error.
func (c *CookieCodec) Decrypt(value string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("cookie codec: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("cookie codec: value too short")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("cookie codec: %w", err)
	}
	return string(plain), nil
}
