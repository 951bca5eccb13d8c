// Package carrier issues share tokens and presents them: redemption URL,
// QR image and a validity countdown.
package carrier

import (
	"math"
	"time"

	"github.com/google/uuid"

	"healthsnap/core/ledger"
	"healthsnap/core/token"
)

// Share is one issued token as the patient sees it.
type Share struct {
	ID     uuid.UUID
	Token  *token.ShareToken
	Opaque string
	URL    string
	QRPNG  []byte
	Anchor *ledger.Anchor // nil when no ledger is configured
}

func (s *Share) SubjectID() string { return s.Token.SubjectID() }

// Remaining is display-only; the token itself decides expiry at redemption.
func (s *Share) Remaining(now time.Time) time.Duration {
	return s.Token.Remaining(now)
}

// RemainingMinutes rounds up, so a fresh 3600s share reads 60.
func (s *Share) RemainingMinutes(now time.Time) int {
	return int(math.Ceil(s.Remaining(now).Minutes()))
}
