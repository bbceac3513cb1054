package object

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xraph/paysim/internal/entity"
)

// Event is a domain event delivered to webhooks.
type Event struct {
	entity.Entity

	// ID is globally unique, e.g. "evt_1".
	ID string `json:"id"`

	// Type is the dotted event type name (e.g. "invoice.finalized").
	Type string `json:"type"`

	// Data is the JSON payload, exported under data.object.
	Data json.RawMessage `json:"data,omitempty"`
}

func (e *Event) ObjectKind() Kind { return KindEvent }
func (e *Event) ObjectID() string { return e.ID }

// Export returns the wire representation of the event.
func (e *Event) Export() (map[string]any, error) {
	var payload any
	if len(e.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(e.Data))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("object: decode event %s payload: %w", e.ID, err)
		}
	}

	out := map[string]any{
		"id":       e.ID,
		"object":   "event",
		"type":     e.Type,
		"created":  e.Created,
		"livemode": false,
		"data":     map[string]any{"object": payload},
	}
	if e.AccountID != "" {
		out["account"] = e.AccountID
	}
	return out, nil
}

// Payload renders the exported event as the exact bytes sent to webhooks:
// keys sorted, two-space indented, HTML characters left unescaped.
func (e *Event) Payload() ([]byte, error) {
	exp, err := e.Export()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return nil, fmt.Errorf("object: encode event %s: %w", e.ID, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
