package auth

import (
	"errors"
)

var ErrNoKey = errors.New("no signing key configured")

// KeyProvider resolves the HMAC key for a token's kid header.
type KeyProvider interface {
	GetKey(kid string) ([]byte, error)
}

// StaticKeyProvider returns the same secret for every kid (JWT_SECRET).
type StaticKeyProvider struct {
	Secret []byte
}

func (p *StaticKeyProvider) GetKey(kid string) ([]byte, error) {
	if len(p.Secret) == 0 {
		return nil, ErrNoKey
	}
	return p.Secret, nil
}
