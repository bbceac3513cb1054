package object

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned when decoding a kind with no registered type.
	ErrUnknownKind = errors.New("object: unknown kind")

	// ErrEmptyID is returned when encoding an object that has no id.
	ErrEmptyID = errors.New("object: empty id")
)

var factories = map[Kind]func() Object{
	KindEvent:         func() Object { return new(Event) },
	KindSubscription:  func() Object { return new(Subscription) },
	KindPrice:         func() Object { return new(Price) },
	KindMeter:         func() Object { return new(BillingMeter) },
	KindMeterEvent:    func() Object { return new(BillingMeterEvent) },
	KindInvoice:       func() Object { return new(Invoice) },
	KindInvoiceItem:   func() Object { return new(InvoiceItem) },
	KindMeteredPeriod: func() Object { return new(MeteredPeriod) },
}

// Known reports whether kind has a registered type.
func Known(kind Kind) bool {
	_, ok := factories[kind]
	return ok
}

// IDField returns the JSON member that carries the id of kind. Meter events
// use "identifier" like the API they mirror.
func IDField(kind Kind) string {
	if kind == KindMeterEvent {
		return "identifier"
	}
	return "id"
}

// Encode serializes o for storage. Objects without an id are rejected since
// their key could not be parsed back.
func Encode(o Object) ([]byte, error) {
	if o.ObjectID() == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyID, o.ObjectKind())
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("object: encode %s: %w", KeyOf(o), err)
	}
	return b, nil
}

// Decode deserializes raw into a new object of kind.
func Decode(kind Kind, raw []byte) (Object, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	o := f()
	if err := json.Unmarshal(raw, o); err != nil {
		return nil, fmt.Errorf("object: decode %s: %w", kind, err)
	}
	return o, nil
}

// DecodeKey deserializes raw stored under key.
func DecodeKey(key string, raw []byte) (Object, error) {
	kind, _, ok := SplitKey(key)
	if !ok {
		return nil, fmt.Errorf("object: malformed key %q", key)
	}
	return Decode(kind, raw)
}

// Resource renders o the way the API exposes it: the stored fields plus an
// "object" member naming its kind. Keys come out sorted.
func Resource(o Object) (json.RawMessage, error) {
	raw, err := Encode(o)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("object: resource %s: %w", KeyOf(o), err)
	}
	kind, _ := json.Marshal(string(o.ObjectKind()))
	fields["object"] = kind

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("object: resource %s: %w", KeyOf(o), err)
	}
	return out, nil
}
