package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"healthsnap/core/snapshot"
)

// loadPayload reads a payload document in JSON or YAML (by extension) and
// returns it as schema-checked JSON plus the bound Payload.
func loadPayload(path string) (json.RawMessage, snapshot.Payload, error) {
	var p snapshot.Payload
	if path == "" {
		return json.RawMessage(`{}`), p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, p, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, p, fmt.Errorf("parse %s: %w", path, err)
		}
		if raw, err = json.Marshal(doc); err != nil {
			return nil, p, fmt.Errorf("convert %s: %w", path, err)
		}
	}
	if err := snapshot.ValidateJSON(raw); err != nil {
		return nil, p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, p, err
	}
	if err := p.Validate(); err != nil {
		return nil, p, err
	}
	return raw, p, nil
}
