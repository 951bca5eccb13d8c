package seal

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"healthsnap/types/ids"
)

// Ed25519Signer seals digests with an in-memory private key (never log it).
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	addr string
	Now  func() time.Time
}

func NewEd25519Signer(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid Ed25519 private key size %d", len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Ed25519Signer{priv: priv, addr: AddressFor(pub)}, nil
}

func (s *Ed25519Signer) Algorithm() string { return AlgorithmEd25519 }
func (s *Ed25519Signer) Address() string   { return s.addr }

// PublicKey returns the verification key for this signer.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

func (s *Ed25519Signer) Sign(digest ids.ID) (Signature, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	sig := ed25519.Sign(s.priv, digest[:])
	return Signature{
		Algorithm:         AlgorithmEd25519,
		Signature:         base64.StdEncoding.EncodeToString(sig),
		SignedPayloadHash: digest.String(),
		SignerAddress:     s.addr,
		Timestamp:         now().UTC(),
	}, nil
}

// Ed25519Verifier implements Verifier for an allow-list of Ed25519 keys.
type Ed25519Verifier struct {
	mu         sync.RWMutex
	publicKeys map[string]ed25519.PublicKey
}

func NewEd25519Verifier(keys ...ed25519.PublicKey) *Ed25519Verifier {
	v := &Ed25519Verifier{publicKeys: make(map[string]ed25519.PublicKey)}
	for _, k := range keys {
		v.Allow(k)
	}
	return v
}

// Allow adds pub to the allow-list and returns its address.
func (v *Ed25519Verifier) Allow(pub ed25519.PublicKey) string {
	addr := AddressFor(pub)
	v.mu.Lock()
	v.publicKeys[addr] = pub
	v.mu.Unlock()
	return addr
}

func (v *Ed25519Verifier) Verify(sig Signature, digest ids.ID) error {
	if sig.Algorithm != AlgorithmEd25519 {
		return fmt.Errorf("%w: %q", ErrUnsupported, sig.Algorithm)
	}
	if err := checkDigest(sig, digest); err != nil {
		return err
	}
	v.mu.RLock()
	pub, ok := v.publicKeys[sig.SignerAddress]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSigner, sig.SignerAddress)
	}
	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSealData, err)
	}
	if !ed25519.Verify(pub, digest[:], raw) {
		return ErrBadSignature
	}
	return nil
}

// GenerateAndSaveKeypair loads the Ed25519 keypair at privPath/pubPath, or
// generates and saves one (hex encoded) if privPath does not exist yet.
func GenerateAndSaveKeypair(privPath, pubPath string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if _, err := os.Stat(privPath); err == nil {
		return LoadKeypair(privPath)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0600); err != nil {
		return nil, nil, err
	}
	if pubPath != "" {
		if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0644); err != nil {
			return nil, nil, err
		}
	}
	return pub, priv, nil
}

// LoadKeypair loads a hex encoded Ed25519 private key; the public half is derived.
func LoadKeypair(privPath string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	privHex, err := os.ReadFile(privPath)
	if err != nil {
		return nil, nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(privHex)))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", privPath, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("%s is not %d bytes after hex decoding (got %d)", privPath, ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	return priv.Public().(ed25519.PublicKey), priv, nil
}
