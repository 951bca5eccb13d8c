package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthsnap/core/ledger"
	"healthsnap/core/seal"
	"healthsnap/core/token"
	"healthsnap/types/ids"
)

const (
	LabelDecrypt        = "Decrypting patient data"
	LabelHash           = "Computing data hash"
	LabelLedgerFetch    = "Fetching blockchain record"
	LabelIntegrityCheck = "Verifying data integrity"
)

// Work is the pluggable body of a step.
type Work interface {
	Run(ctx context.Context, s *Session) error
}

type WorkFunc func(ctx context.Context, s *Session) error

func (f WorkFunc) Run(ctx context.Context, s *Session) error { return f(ctx, s) }

// Definition is one row of the step table.
type Definition struct {
	ID    StepID
	Label string
	Work  Work
}

// Pipeline is the ordered step table.
type Pipeline []Definition

func (p Pipeline) IDs() []StepID {
	out := make([]StepID, len(p))
	for i, d := range p {
		out[i] = d.ID
	}
	return out
}

// Delays are the fixed per-step latencies.
type Delays struct {
	Hash        time.Duration
	LedgerFetch time.Duration
	Integrity   time.Duration
}

var DefaultDelays = Delays{
	Hash:        1000 * time.Millisecond,
	LedgerFetch: 2000 * time.Millisecond,
	Integrity:   1000 * time.Millisecond,
}

// UniformDelays uses d for every step.
func UniformDelays(d time.Duration) Delays {
	return Delays{Hash: d, LedgerFetch: d, Integrity: d}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Simulated waits d and succeeds.
func Simulated(d time.Duration) Work {
	return WorkFunc(func(ctx context.Context, _ *Session) error {
		return sleep(ctx, d)
	})
}

// Delayed waits d before running w.
func Delayed(d time.Duration, w Work) Work {
	if d <= 0 {
		return w
	}
	return WorkFunc(func(ctx context.Context, s *Session) error {
		if err := sleep(ctx, d); err != nil {
			return err
		}
		return w.Run(ctx, s)
	})
}

var (
	ErrNoToken  = errors.New("no decoded token on session")
	ErrNoDigest = errors.New("digest not computed")
	ErrNoAnchor = errors.New("anchor not fetched")
)

// HashStep digests the decoded token.
type HashStep struct {
	Hasher func(*token.ShareToken) ids.ID // defaults to token.Digest
}

func (h HashStep) Run(ctx context.Context, s *Session) error {
	tok := s.Token()
	if tok == nil {
		return ErrNoToken
	}
	hash := h.Hasher
	if hash == nil {
		hash = token.Digest
	}
	s.SetDigest(hash(tok))
	return ctx.Err()
}

// LedgerFetchStep looks up the anchor recorded at issue time.
type LedgerFetchStep struct {
	Ledger ledger.Ledger
}

func (l LedgerFetchStep) Run(ctx context.Context, s *Session) error {
	digest, ok := s.Digest()
	if !ok {
		return ErrNoDigest
	}
	a, err := l.Ledger.Get(ctx, digest)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("no record for digest %s, token altered or never issued: %w", digest, err)
	}
	if err != nil {
		return err
	}
	s.SetAnchor(a)
	return nil
}

// IntegrityStep checks the anchor's seal and that it describes the token.
type IntegrityStep struct {
	Verifier seal.Verifier
}

func (v IntegrityStep) Run(ctx context.Context, s *Session) error {
	a, ok := s.Anchor()
	if !ok {
		return ErrNoAnchor
	}
	digest, ok := s.Digest()
	if !ok {
		return ErrNoDigest
	}
	if err := v.Verifier.Verify(a.Seal, digest); err != nil {
		return err
	}
	tok := s.Token()
	if tok == nil {
		return ErrNoToken
	}
	if err := a.Matches(tok); err != nil {
		return err
	}
	return ctx.Err()
}

// SimulatedPipeline is hash, ledger-fetch and integrity-check as fixed delays.
func SimulatedPipeline(d Delays) Pipeline {
	return Pipeline{
		{ID: StepHash, Label: LabelHash, Work: Simulated(d.Hash)},
		{ID: StepLedgerFetch, Label: LabelLedgerFetch, Work: Simulated(d.LedgerFetch)},
		{ID: StepIntegrityCheck, Label: LabelIntegrityCheck, Work: Simulated(d.Integrity)},
	}
}

// LedgerPipeline backs each step with real work against l and v. Non-zero
// delays are kept ahead of the work.
func LedgerPipeline(l ledger.Ledger, v seal.Verifier, d Delays) Pipeline {
	return Pipeline{
		{ID: StepHash, Label: LabelHash, Work: Delayed(d.Hash, HashStep{})},
		{ID: StepLedgerFetch, Label: LabelLedgerFetch, Work: Delayed(d.LedgerFetch, LedgerFetchStep{Ledger: l})},
		{ID: StepIntegrityCheck, Label: LabelIntegrityCheck, Work: Delayed(d.Integrity, IntegrityStep{Verifier: v})},
	}
}

// WithDecrypt returns a copy of p with a decrypt step in front.
func WithDecrypt(p Pipeline, w Work) Pipeline {
	out := make(Pipeline, 0, len(p)+1)
	out = append(out, Definition{ID: StepDecrypt, Label: LabelDecrypt, Work: w})
	return append(out, p...)
}
