// Package ledger records issued share tokens so a reader can later prove a
// scanned token is one the issuer actually produced.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthsnap/core/seal"
	"healthsnap/core/token"
	"healthsnap/types/ids"
)

var (
	ErrNotFound = errors.New("anchor not found")
	ErrConflict = errors.New("a different anchor is already recorded for this digest")
)

// Anchor is the ledger record for one issued token.
type Anchor struct {
	ID        uuid.UUID      `json:"id"`
	Digest    string         `json:"digest"`
	SubjectID string         `json:"subjectId"`
	IssuedAt  time.Time      `json:"issuedAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Seal      seal.Signature `json:"seal"`
}

// Matches reports whether the anchor describes tok.
func (a Anchor) Matches(tok *token.ShareToken) error {
	switch {
	case a.Digest != token.Digest(tok).String():
		return fmt.Errorf("digest %s does not match anchor", token.Digest(tok))
	case a.SubjectID != tok.SubjectID():
		return fmt.Errorf("subject %q does not match anchor", tok.SubjectID())
	case !a.IssuedAt.Equal(tok.IssuedAt()):
		return fmt.Errorf("issue time %s does not match anchor", tok.IssuedAt().Format(token.TimestampLayout))
	case !a.ExpiresAt.Equal(tok.ExpiresAt()):
		return fmt.Errorf("expiry %s does not match anchor", tok.ExpiresAt().Format(token.TimestampLayout))
	}
	return nil
}

func (a Anchor) sameAs(b Anchor) bool {
	return a.Digest == b.Digest && a.Seal.Signature == b.Seal.Signature &&
		a.SubjectID == b.SubjectID && a.IssuedAt.Equal(b.IssuedAt)
}

// Ledger stores anchors keyed by digest. Put is idempotent for an identical
// anchor and fails with ErrConflict otherwise.
type Ledger interface {
	Put(ctx context.Context, a Anchor) error
	Get(ctx context.Context, digest ids.ID) (Anchor, error)
}

// Anchorer seals a token digest and records it.
type Anchorer struct {
	Ledger Ledger
	Signer seal.Signer
}

func (an *Anchorer) Anchor(ctx context.Context, tok *token.ShareToken) (Anchor, error) {
	digest := token.Digest(tok)
	sig, err := an.Signer.Sign(digest)
	if err != nil {
		return Anchor{}, fmt.Errorf("seal digest: %w", err)
	}
	a := Anchor{
		ID:        uuid.New(),
		Digest:    digest.String(),
		SubjectID: tok.SubjectID(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.ExpiresAt(),
		Seal:      sig,
	}
	if err := an.Ledger.Put(ctx, a); err != nil {
		return Anchor{}, err
	}
	return a, nil
}
