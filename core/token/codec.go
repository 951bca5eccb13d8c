package token

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"healthsnap/core/snapshot"
	"healthsnap/types/ids"
)

//go:embed schemas/share_token_schema_v1.json
var shareTokenSchemaV1 []byte

// ErrMalformed is matched by every DecodeError.
var ErrMalformed = errors.New("malformed share token")

// DecodeError reports why an opaque string could not be turned back into a token.
// It is never retryable: the holder needs a new code.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed share token: %s: %v", e.Reason, e.Err)
	}
	return "malformed share token: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }

// wireToken is the JSON form, field order fixed so Canonical is deterministic.
type wireToken struct {
	SubjectID string           `json:"subjectId"`
	Timestamp string           `json:"timestamp"`
	ExpiresIn int              `json:"expiresIn"`
	Data      snapshot.Payload `json:"data"`
}

// wireEnvelope holds data raw so it can be schema-checked on its own.
type wireEnvelope struct {
	SubjectID string          `json:"subjectId"`
	Timestamp string          `json:"timestamp"`
	ExpiresIn int             `json:"expiresIn"`
	Data      json.RawMessage `json:"data"`
}

var (
	envelopeOnce   sync.Once
	envelopeSchema *gojsonschema.Schema
	envelopeErr    error
)

func loadEnvelopeSchema() (*gojsonschema.Schema, error) {
	envelopeOnce.Do(func() {
		envelopeSchema, envelopeErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(shareTokenSchemaV1))
	})
	return envelopeSchema, envelopeErr
}

// Canonical is the deterministic JSON form of t. Both the issuer and the hash
// step digest exactly these bytes.
func Canonical(t *ShareToken) []byte {
	b, err := json.Marshal(wireToken{
		SubjectID: t.subjectID,
		Timestamp: t.issuedAt.Format(TimestampLayout),
		ExpiresIn: t.ttlSeconds,
		Data:      t.payload,
	})
	if err != nil {
		// Only plain strings, ints and time.Time go in; Marshal cannot fail.
		panic(fmt.Sprintf("token: canonical marshal: %v", err))
	}
	return b
}

// Digest is the SHA-256 of Canonical(t).
func Digest(t *ShareToken) ids.ID {
	return ids.NewID(Canonical(t))
}

// Encode turns t into its opaque, URL-safe form. The transform is reversible
// base64: it hides nothing and proves nothing.
func Encode(t *ShareToken) (string, error) {
	if t == nil {
		return "", errors.New("encode: nil token")
	}
	return base64.RawURLEncoding.EncodeToString(Canonical(t)), nil
}

// Decode reverses Encode. Standard base64 (with or without padding) is accepted
// as well, since older issuers produced it.
func Decode(opaque string) (*ShareToken, error) {
	opaque = strings.TrimSpace(opaque)
	if opaque == "" {
		return nil, &DecodeError{Reason: "empty token"}
	}
	raw, err := decodeText(opaque)
	if err != nil {
		return nil, &DecodeError{Reason: "not base64", Err: err}
	}

	schema, err := loadEnvelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("load share token schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &DecodeError{Reason: "not json", Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &DecodeError{Reason: "unexpected shape: " + strings.Join(msgs, "; ")}
	}

	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "not json", Err: err}
	}
	if err := snapshot.ValidateJSON(env.Data); err != nil {
		return nil, &DecodeError{Reason: "payload shape", Err: err}
	}
	var payload snapshot.Payload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, &DecodeError{Reason: "payload", Err: err}
	}
	if err := payload.Validate(); err != nil {
		return nil, &DecodeError{Reason: "payload", Err: err}
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	if err != nil {
		return nil, &DecodeError{Reason: "timestamp", Err: err}
	}

	return &ShareToken{
		subjectID:  env.SubjectID,
		issuedAt:   issuedAt.UTC().Truncate(time.Millisecond),
		ttlSeconds: env.ExpiresIn,
		payload:    payload.Clone(),
	}, nil
}

func decodeText(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Encoder issues and encodes tokens against a clock.
type Encoder struct {
	Now func() time.Time
}

func (e Encoder) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Encode builds a token for subjectID issued now and returns its opaque form
// together with the token itself.
func (e Encoder) Encode(subjectID string, ttlSeconds int, payload snapshot.Payload) (string, *ShareToken, error) {
	t, err := New(subjectID, ttlSeconds, payload, e.now())
	if err != nil {
		return "", nil, err
	}
	opaque, err := Encode(t)
	if err != nil {
		return "", nil, err
	}
	return opaque, t, nil
}
