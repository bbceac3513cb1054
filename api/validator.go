package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// webhookSchema describes the registration body of POST /_config/webhooks/:id.
var webhookSchema = map[string]any{
	"type":     "object",
	"required": []any{"url", "secret"},
	"properties": map[string]any{
		"url":    map[string]any{"type": "string", "minLength": 1, "pattern": "^http"},
		"secret": map[string]any{"type": "string", "minLength": 1},
		"events": map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "string"},
		},
	},
}

// eventSchema describes the body of POST /_config/events.
var eventSchema = map[string]any{
	"type":     "object",
	"required": []any{"type"},
	"properties": map[string]any{
		"id":      map[string]any{"type": "string"},
		"type":    map[string]any{"type": "string", "minLength": 1},
		"account": map[string]any{"type": []any{"string", "null"}},
		"created": map[string]any{"type": "integer", "minimum": 0},
	},
}

// Validator validates request bodies against JSON Schema documents. Compiled
// schemas are cached by their JSON encoding.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate checks data, a decoded JSON value, against schema. A nil schema
// accepts anything.
func (v *Validator) Validate(schema, data any) error {
	if schema == nil {
		return nil
	}
	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("schema compilation error: %w", err)
	}
	return compiled.Validate(data)
}

func (v *Validator) compile(schema any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	key := string(raw)

	v.mu.RLock()
	cached, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	sum := sha256.Sum256(raw)
	url := "paysim://schema/" + hex.EncodeToString(sum[:8]) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.mu.Lock()
	v.cache[key] = compiled
	v.mu.Unlock()
	return compiled, nil
}

// toJSONValue re-decodes v through jsonschema's decoder so numbers arrive as
// json.Number, the form the validator expects.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
}
