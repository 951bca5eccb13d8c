// Package seal signs and verifies token digests so the integrity step has
// something real to check against.
package seal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"healthsnap/types/ids"
)

const (
	AlgorithmEd25519 = "Ed25519"
	AlgorithmSchnorr = "Schnorr"
)

var (
	ErrUnknownSigner     = errors.New("signer is not in the allow-list")
	ErrUnsupported       = errors.New("unsupported seal algorithm")
	ErrBadSignature      = errors.New("seal signature verification failed")
	ErrDigestMismatch    = errors.New("seal covers a different digest")
	ErrMalformedSealData = errors.New("malformed seal data")
)

// Signature contains all seal metadata
type Signature struct {
	Algorithm         string    `json:"algorithm"`
	Signature         string    `json:"signature"`         // base64
	SignedPayloadHash string    `json:"signedPayloadHash"` // hex digest
	SignerAddress     string    `json:"signerAddress"`
	Timestamp         time.Time `json:"timestamp"`
}

// Signer seals a digest.
type Signer interface {
	Algorithm() string
	Address() string
	Sign(digest ids.ID) (Signature, error)
}

// Verifier checks a seal over digest.
type Verifier interface {
	Verify(sig Signature, digest ids.ID) error
}

// AddressFor derives a short signer address from raw public key bytes.
func AddressFor(pub []byte) string {
	h := sha256.Sum256(pub)
	return "0x" + hex.EncodeToString(h[:20])
}

// Verifiers dispatches on Signature.Algorithm.
type Verifiers map[string]Verifier

func (vs Verifiers) Verify(sig Signature, digest ids.ID) error {
	v, ok := vs[sig.Algorithm]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupported, sig.Algorithm)
	}
	return v.Verify(sig, digest)
}

func checkDigest(sig Signature, digest ids.ID) error {
	if sig.SignedPayloadHash != digest.String() {
		return ErrDigestMismatch
	}
	return nil
}
