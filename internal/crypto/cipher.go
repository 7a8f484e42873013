// Package crypto implements the per-chunk cipher for the storage pipeline.
//
// Every chunk is encrypted independently with AES-256-CBC and PKCS7 padding,
// and the ciphertext carries its own random IV as a 16-byte prefix:
//
//	IV[16] ‖ AES-256-CBC(plaintext + PKCS7 padding)
//
// Self-contained chunks can be decrypted in any order, and re-encrypting an
// identical chunk on retry produces a different ciphertext. The layout is
// part of the wire format and must not change.
package crypto

import (
	"crypto/aes"
	aescipher "crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/discloud/discloud/internal/errs"
)

const (
	KeySize = 32 // 256-bit key for AES-256
	IVSize  = 16 // 128-bit IV for AES-CBC
)

// Cipher encrypts and decrypts chunks with a single 32-byte key bound at
// construction. One Cipher per logical file; instances are safe for
// sequential use within a single upload or download.
type Cipher struct {
	key   []byte
	block aescipher.Block
}

// NewRandomKey generates a cryptographically strong 256-bit key.
func NewRandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// New creates a Cipher bound to key. The key must be exactly 32 bytes.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", errs.ErrUsage, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k, block: block}, nil
}

// Encrypt encrypts one plaintext chunk and returns IV-prefixed ciphertext.
// A fresh random IV is drawn per call. Empty plaintext is legal and yields
// 16 bytes of IV plus one padded block.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, IVSize+len(padded))
	copy(out, iv)

	mode := aescipher.NewCBCEncrypter(c.block, iv)
	mode.CryptBlocks(out[IVSize:], padded)

	return out, nil
}

// Decrypt reverses Encrypt. The input must be at least 16 bytes (the IV)
// and the remainder must be block-aligned; violations and bad padding fail
// with ErrMalformedChunk.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < IVSize {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes, need at least %d for IV)",
			errs.ErrMalformedChunk, len(ciphertext), IVSize)
	}

	iv := ciphertext[:IVSize]
	body := ciphertext[IVSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext body (%d bytes) is not a multiple of the AES block size",
			errs.ErrMalformedChunk, len(body))
	}

	plaintext := make([]byte, len(body))
	mode := aescipher.NewCBCDecrypter(c.block, iv)
	mode.CryptBlocks(plaintext, body)

	unpadded, err := pkcs7Unpad(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedChunk, err)
	}
	return unpadded, nil
}

// pkcs7Pad applies PKCS7 padding to the data.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padText := make([]byte, padding)
	for i := range padText {
		padText[i] = byte(padding)
	}
	return append(append([]byte{}, data...), padText...)
}

// pkcs7Unpad removes PKCS7 padding from the data.
// Verifies that all padding bytes have the correct value for defense-in-depth.
func pkcs7Unpad(data []byte) ([]byte, error) {
	length := len(data)
	if length == 0 {
		return nil, fmt.Errorf("invalid padding: empty data")
	}
	padding := int(data[length-1])
	if padding > length || padding > aes.BlockSize || padding == 0 {
		return nil, fmt.Errorf("invalid padding size: %d", padding)
	}
	for i := 0; i < padding; i++ {
		if data[length-1-i] != byte(padding) {
			return nil, fmt.Errorf("invalid padding byte at position %d: expected %d, got %d", i, padding, data[length-1-i])
		}
	}
	return data[:length-padding], nil
}
