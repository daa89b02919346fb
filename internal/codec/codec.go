// Package codec turns upstream URLs into opaque path tokens and back.
//
// A token is the unpadded base64url encoding of an XChaCha20-Poly1305 nonce
// followed by the sealed URL. The alphabet never contains '.', so clients may
// append a file extension (token.jpg) which Decode ignores.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"tgme-proxy-go/internal/config"
)

var errShortToken = errors.New("token shorter than nonce")

// Codec seals and opens URL tokens with a pre-shared key.
type Codec struct {
	aead cipher.AEAD
}

// New creates a Codec for a 32-byte key.
func New(key []byte) (*Codec, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// NewFromConfig creates a Codec from proxy.cipher_key.
func NewFromConfig(cfg *config.Config) (*Codec, error) {
	key, err := cfg.Proxy.Key()
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Encode seals rawURL under a fresh random nonce.
func (c *Codec) Encode(rawURL string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(rawURL)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(rawURL), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token. Anything from the first '.' on is ignored.
func (c *Codec) Decode(token string) (string, error) {
	if i := strings.IndexByte(token, '.'); i >= 0 {
		token = token[:i]
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("codec: decode: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("codec: %w", errShortToken)
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("codec: open: %w", err)
	}
	return string(plain), nil
}
