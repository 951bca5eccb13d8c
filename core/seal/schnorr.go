package seal

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"

	"healthsnap/types/ids"
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// challenge computes e = H(pub || R || m) as a scalar.
func challenge(pub, r kyber.Point, digest ids.ID) kyber.Scalar {
	h := sha256.New()
	h.Write([]byte(pub.String()))
	h.Write([]byte(r.String()))
	h.Write(digest[:])
	return suite.Scalar().SetBytes(h.Sum(nil))
}

// SchnorrSigner seals digests with a Schnorr signature on edwards25519.
// Signature bytes are R || s.
type SchnorrSigner struct {
	x    kyber.Scalar
	pub  kyber.Point
	addr string
	Now  func() time.Time
}

// NewSchnorrSigner wraps private scalar x. A nil x picks a fresh random key.
func NewSchnorrSigner(x kyber.Scalar) (*SchnorrSigner, error) {
	if x == nil {
		x = suite.Scalar().Pick(suite.RandomStream())
	}
	pub := suite.Point().Mul(x, nil)
	raw, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &SchnorrSigner{x: x, pub: pub, addr: AddressFor(raw)}, nil
}

func (s *SchnorrSigner) Algorithm() string      { return AlgorithmSchnorr }
func (s *SchnorrSigner) Address() string        { return s.addr }
func (s *SchnorrSigner) PublicKey() kyber.Point { return s.pub }

func (s *SchnorrSigner) Sign(digest ids.ID) (Signature, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	k := suite.Scalar().Pick(suite.RandomStream())
	r := suite.Point().Mul(k, nil)
	e := challenge(s.pub, r, digest)
	// s = k - e*x
	sc := suite.Scalar().Sub(k, suite.Scalar().Mul(e, s.x))

	rb, err := r.MarshalBinary()
	if err != nil {
		return Signature{}, err
	}
	sb, err := sc.MarshalBinary()
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		Algorithm:         AlgorithmSchnorr,
		Signature:         base64.StdEncoding.EncodeToString(append(rb, sb...)),
		SignedPayloadHash: digest.String(),
		SignerAddress:     s.addr,
		Timestamp:         now().UTC(),
	}, nil
}

// SchnorrVerifier implements Verifier for an allow-list of Schnorr keys.
type SchnorrVerifier struct {
	mu   sync.RWMutex
	keys map[string]kyber.Point
}

func NewSchnorrVerifier(keys ...kyber.Point) *SchnorrVerifier {
	v := &SchnorrVerifier{keys: make(map[string]kyber.Point)}
	for _, k := range keys {
		v.Allow(k)
	}
	return v
}

func (v *SchnorrVerifier) Allow(pub kyber.Point) string {
	raw, _ := pub.MarshalBinary()
	addr := AddressFor(raw)
	v.mu.Lock()
	v.keys[addr] = pub
	v.mu.Unlock()
	return addr
}

func (v *SchnorrVerifier) Verify(sig Signature, digest ids.ID) error {
	if sig.Algorithm != AlgorithmSchnorr {
		return fmt.Errorf("%w: %q", ErrUnsupported, sig.Algorithm)
	}
	if err := checkDigest(sig, digest); err != nil {
		return err
	}
	v.mu.RLock()
	pub, ok := v.keys[sig.SignerAddress]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSigner, sig.SignerAddress)
	}
	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSealData, err)
	}
	pointLen := suite.Point().MarshalSize()
	if len(raw) != pointLen+suite.Scalar().MarshalSize() {
		return fmt.Errorf("%w: signature is %d bytes", ErrMalformedSealData, len(raw))
	}
	r := suite.Point()
	if err := r.UnmarshalBinary(raw[:pointLen]); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSealData, err)
	}
	sc := suite.Scalar()
	if err := sc.UnmarshalBinary(raw[pointLen:]); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSealData, err)
	}
	// s*G + e*P must equal R
	e := challenge(pub, r, digest)
	check := suite.Point().Add(suite.Point().Mul(sc, nil), suite.Point().Mul(e, pub))
	if !check.Equal(r) {
		return ErrBadSignature
	}
	return nil
}

// LoadOrCreateSchnorrKey reads a hex encoded private scalar from path, or
// generates and saves one.
func LoadOrCreateSchnorrKey(path string) (kyber.Scalar, error) {
	if data, err := os.ReadFile(path); err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		x := suite.Scalar()
		if err := x.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return x, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	x := suite.Scalar().Pick(suite.RandomStream())
	raw, err := x.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, err
	}
	return x, nil
}
