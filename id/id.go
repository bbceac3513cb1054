// Package id defines TypeID-based identifiers for objects paysim mints itself.
//
// Objects supplied by callers (events, subscriptions, prices...) keep their
// own string ids. Records generated inside the emulator (delivery log entries,
// invoice items, request log entries, events raised by background jobs) get a
// K-sortable TypeID in the format "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in a TypeID.
type Prefix string

// Prefix constants for generated records.
const (
	PrefixWebhookLog  Prefix = "whl"
	PrefixInvoiceItem Prefix = "ii"
	PrefixEvent       Prefix = "evt"
	PrefixAPILog      Prefix = "log"
)

// ID wraps a TypeID.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "whl_01h455vb4pex5vsknk084sn02q".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// NewWebhookLogID generates a delivery log entry ID.
func NewWebhookLogID() ID { return New(PrefixWebhookLog) }

// NewInvoiceItemID generates an invoice item ID.
func NewInvoiceItemID() ID { return New(PrefixInvoiceItem) }

// NewEventID generates an event ID for events raised inside the emulator.
func NewEventID() ID { return New(PrefixEvent) }

// NewAPILogID generates a request log entry ID.
func NewAPILogID() ID { return New(PrefixAPILog) }

// ParseWebhookLogID parses a string and validates the "whl" prefix.
func ParseWebhookLogID(s string) (ID, error) { return ParseWithPrefix(s, PrefixWebhookLog) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
