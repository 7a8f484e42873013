package crypto

import (
	"bytes"
	"crypto/aes"
	"errors"
	"testing"

	"github.com/discloud/discloud/internal/errs"
)

// TestNewRandomKey tests that key generation produces correct-length keys
func TestNewRandomKey(t *testing.T) {
	key, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey() failed: %v", err)
	}

	if len(key) != KeySize {
		t.Errorf("Expected key length %d, got %d", KeySize, len(key))
	}

	// Verify randomness: generate two keys, they should be different
	key2, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey() second call failed: %v", err)
	}

	if bytes.Equal(key, key2) {
		t.Error("Two consecutive key generations produced identical keys (highly unlikely!)")
	}
}

// TestNewRejectsBadKeySizes tests that Cipher construction enforces key size
func TestNewRejectsBadKeySizes(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		if _, err := New(make([]byte, size)); err == nil {
			t.Errorf("New() accepted a %d-byte key", size)
		} else if !errors.Is(err, errs.ErrUsage) {
			t.Errorf("New() with %d-byte key: expected ErrUsage, got %v", size, err)
		}
	}
}

// TestEncryptDecryptRoundTrip tests the core round-trip property across sizes
func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey() failed: %v", err)
	}
	c, err := New(key)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"one_byte", []byte{0x42}},
		{"block_minus_one", bytes.Repeat([]byte{0xAA}, aes.BlockSize-1)},
		{"exact_block", bytes.Repeat([]byte{0xBB}, aes.BlockSize)},
		{"block_plus_one", bytes.Repeat([]byte{0xCC}, aes.BlockSize+1)},
		{"large", bytes.Repeat([]byte{0x41}, 1<<20)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ct, err := c.Encrypt(tc.data)
			if err != nil {
				t.Fatalf("Encrypt() failed: %v", err)
			}

			if len(ct) < IVSize+aes.BlockSize {
				t.Errorf("ciphertext too short: %d bytes", len(ct))
			}
			if (len(ct)-IVSize)%aes.BlockSize != 0 {
				t.Errorf("ciphertext body not block-aligned: %d bytes", len(ct)-IVSize)
			}

			pt, err := c.Decrypt(ct)
			if err != nil {
				t.Fatalf("Decrypt() failed: %v", err)
			}
			if !bytes.Equal(pt, tc.data) {
				t.Errorf("round-trip mismatch: got %d bytes, want %d bytes", len(pt), len(tc.data))
			}
		})
	}
}

// TestEncryptEmptyPlaintextLayout tests the fixed layout for empty input:
// 16-byte IV plus exactly one padded block.
func TestEncryptEmptyPlaintextLayout(t *testing.T) {
	key, _ := NewRandomKey()
	c, err := New(key)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ct, err := c.Encrypt(nil)
	if err != nil {
		t.Fatalf("Encrypt(nil) failed: %v", err)
	}
	if len(ct) != IVSize+aes.BlockSize {
		t.Errorf("Expected %d bytes for empty plaintext, got %d", IVSize+aes.BlockSize, len(ct))
	}
}

// TestEncryptProducesFreshIV tests that identical plaintexts produce
// different ciphertexts under the same key.
func TestEncryptProducesFreshIV(t *testing.T) {
	key, _ := NewRandomKey()
	c, err := New(key)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	plaintext := []byte("the same chunk twice")
	ct1, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("first Encrypt() failed: %v", err)
	}
	ct2, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("second Encrypt() failed: %v", err)
	}

	if bytes.Equal(ct1, ct2) {
		t.Error("Two encryptions of the same plaintext produced identical ciphertexts (highly unlikely!)")
	}
	if bytes.Equal(ct1[:IVSize], ct2[:IVSize]) {
		t.Error("Two encryptions reused the same IV (highly unlikely!)")
	}
}

// TestDecryptShortCiphertext tests that anything shorter than the IV fails
// with ErrMalformedChunk.
func TestDecryptShortCiphertext(t *testing.T) {
	key, _ := NewRandomKey()
	c, err := New(key)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for _, size := range []int{0, 1, 15} {
		_, err := c.Decrypt(make([]byte, size))
		if err == nil {
			t.Errorf("Decrypt() accepted %d-byte input", size)
			continue
		}
		if !errors.Is(err, errs.ErrMalformedChunk) {
			t.Errorf("Decrypt() with %d bytes: expected ErrMalformedChunk, got %v", size, err)
		}
	}
}

// TestDecryptUnalignedBody tests that a non-block-aligned body is rejected
func TestDecryptUnalignedBody(t *testing.T) {
	key, _ := NewRandomKey()
	c, _ := New(key)

	_, err := c.Decrypt(make([]byte, IVSize+aes.BlockSize+5))
	if !errors.Is(err, errs.ErrMalformedChunk) {
		t.Errorf("Expected ErrMalformedChunk for unaligned body, got %v", err)
	}

	// IV only, empty body
	_, err = c.Decrypt(make([]byte, IVSize))
	if !errors.Is(err, errs.ErrMalformedChunk) {
		t.Errorf("Expected ErrMalformedChunk for empty body, got %v", err)
	}
}

// TestDecryptWithWrongKey tests that decrypting with the wrong key either
// fails or yields data unequal to the original. It must never round-trip.
func TestDecryptWithWrongKey(t *testing.T) {
	keyA, _ := NewRandomKey()
	keyB, _ := NewRandomKey()

	ca, err := New(keyA)
	if err != nil {
		t.Fatalf("New(keyA) failed: %v", err)
	}
	cb, err := New(keyB)
	if err != nil {
		t.Fatalf("New(keyB) failed: %v", err)
	}

	secret := []byte("secret")
	ct, err := ca.Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}

	pt, err := cb.Decrypt(ct)
	if err == nil && bytes.Equal(pt, secret) {
		t.Error("Decryption with the wrong key recovered the plaintext")
	}
	if err != nil && !errors.Is(err, errs.ErrMalformedChunk) {
		t.Errorf("Wrong-key decrypt failure should be ErrMalformedChunk, got %v", err)
	}
}

// TestPKCS7Padding tests PKCS7 padding and unpadding
func TestPKCS7Padding(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected int // expected padding bytes
	}{
		{"empty", []byte{}, 16},
		{"one_byte", []byte{0x01}, 15},
		{"fifteen_bytes", make([]byte, 15), 1},
		{"sixteen_bytes", make([]byte, 16), 16},
		{"seventeen_bytes", make([]byte, 17), 15},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			padded := pkcs7Pad(tc.data, aes.BlockSize)
			if len(padded)%aes.BlockSize != 0 {
				t.Errorf("Padded data not block-aligned: %d bytes", len(padded))
			}
			if got := len(padded) - len(tc.data); got != tc.expected {
				t.Errorf("Expected %d padding bytes, got %d", tc.expected, got)
			}

			unpadded, err := pkcs7Unpad(padded)
			if err != nil {
				t.Fatalf("pkcs7Unpad() failed: %v", err)
			}
			if !bytes.Equal(unpadded, tc.data) {
				t.Error("Unpadded data does not match original")
			}
		})
	}
}

// TestPKCS7UnpadRejectsCorruption tests unpad validation of bad padding
func TestPKCS7UnpadRejectsCorruption(t *testing.T) {
	padded := pkcs7Pad([]byte("hello"), aes.BlockSize)

	// Corrupt one padding byte
	corrupted := append([]byte{}, padded...)
	corrupted[len(corrupted)-2] ^= 0xFF
	if _, err := pkcs7Unpad(corrupted); err == nil {
		t.Error("pkcs7Unpad() accepted corrupted padding")
	}

	// Padding length larger than block size
	bad := append([]byte{}, padded...)
	bad[len(bad)-1] = 0x77
	if _, err := pkcs7Unpad(bad); err == nil {
		t.Error("pkcs7Unpad() accepted oversized padding length")
	}

	if _, err := pkcs7Unpad([]byte{}); err == nil {
		t.Error("pkcs7Unpad() accepted empty input")
	}
}
