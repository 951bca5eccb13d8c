package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// LoadDEK decodes a base64 Data Encryption Key (32 bytes after decoding).
func LoadDEK(dekB64 string) ([]byte, error) {
	if dekB64 == "" {
		return nil, errors.New("data encryption key not set")
	}
	dek, err := base64.StdEncoding.DecodeString(dekB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data encryption key: %w", err)
	}
	if len(dek) != 32 {
		return nil, errors.New("data encryption key must be 32 bytes (base64-encoded)")
	}
	return dek, nil
}

// GenerateDEK returns a fresh random key in the form LoadDEK accepts.
func GenerateDEK() (string, error) {
	dek := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(dek), nil
}

// Cipher seals values with AES-256-GCM and a random nonce. A nil *Cipher
// passes values through untouched.
type Cipher struct {
	gcm cipher.AEAD
}

func NewCipher(dek []byte) (*Cipher, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

// Encrypt returns nonce || ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if c == nil {
		return plaintext, nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if c == nil {
		return ciphertext, nil
	}
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return c.gcm.Open(nil, nonce, ct, nil)
}
