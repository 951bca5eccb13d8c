package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"healthsnap/core/snapshot"
)

// TimestampLayout is the wire layout for issuedAt: ISO-8601, UTC, milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrEmptySubject = errors.New("subject id is empty")
	ErrInvalidTTL   = errors.New("ttl must be greater than zero")
)

// ShareToken is the issued capability: whose data, when it was issued, how long
// it lives and the snapshot itself. It cannot be changed after New or Decode.
type ShareToken struct {
	subjectID  string
	issuedAt   time.Time
	ttlSeconds int
	payload    snapshot.Payload
}

// New builds a token issued at now. The payload is copied.
func New(subjectID string, ttlSeconds int, payload snapshot.Payload, now time.Time) (*ShareToken, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrEmptySubject
	}
	if ttlSeconds <= 0 {
		return nil, ErrInvalidTTL
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &ShareToken{
		subjectID:  subjectID,
		issuedAt:   now.UTC().Truncate(time.Millisecond),
		ttlSeconds: ttlSeconds,
		payload:    payload.Clone(),
	}, nil
}

func (t *ShareToken) SubjectID() string { return t.subjectID }
func (t *ShareToken) IssuedAt() time.Time { return t.issuedAt }
func (t *ShareToken) TTLSeconds() int { return t.ttlSeconds }

// TTL is the validity window as a duration.
func (t *ShareToken) TTL() time.Duration {
	return time.Duration(t.ttlSeconds) * time.Second
}

// Payload returns a copy of the snapshot carried by the token.
func (t *ShareToken) Payload() snapshot.Payload {
	return t.payload.Clone()
}

// ExpiresAt is issuedAt + ttl.
func (t *ShareToken) ExpiresAt() time.Time {
	return t.issuedAt.Add(t.TTL())
}

// Expired reports now > issuedAt + ttl. The boundary instant itself is still valid.
func (t *ShareToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt())
}

// Remaining is the validity left at now, never negative.
func (t *ShareToken) Remaining(now time.Time) time.Duration {
	left := t.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (t *ShareToken) String() string {
	return fmt.Sprintf("ShareToken{subject=%s issuedAt=%s ttl=%ds}", t.subjectID, t.issuedAt.Format(TimestampLayout), t.ttlSeconds)
}
