package snapshot

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/payload_schema_v1.json
var payloadSchemaV1 []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

// ErrInvalidPayload is wrapped by every validation failure in this package.
var ErrInvalidPayload = errors.New("invalid snapshot payload")

func payloadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(payloadSchemaV1))
	})
	return compiledSchema, schemaErr
}

// ValidateJSON checks a raw payload document against the payload schema.
func ValidateJSON(doc []byte) error {
	schema, err := payloadSchema()
	if err != nil {
		return fmt.Errorf("load payload schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(msgs, "; "))
	}
	return nil
}

// Validate enforces the invariants the schema cannot express: known severities,
// named symptoms, well-formed dates and unique symptom ids.
func (p *Payload) Validate() error {
	if p == nil {
		return nil
	}
	seen := make(map[int]bool, len(p.Symptoms))
	for i, s := range p.Symptoms {
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate symptom id %d", ErrInvalidPayload, s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: symptom %d has no name", ErrInvalidPayload, i)
		}
		if !s.Severity.Valid() {
			return fmt.Errorf("%w: symptom %d has unknown severity %q", ErrInvalidPayload, i, s.Severity)
		}
		if !isCalendarDate(s.Date) {
			return fmt.Errorf("%w: symptom %d date %q is not YYYY-MM-DD", ErrInvalidPayload, i, s.Date)
		}
	}
	return nil
}

func isCalendarDate(s string) bool {
	if len(s) < 10 {
		return false
	}
	for i, c := range s[:10] {
		switch i {
		case 4, 7:
			if c != '-' {
				return false
			}
		default:
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
