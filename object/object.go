// Package object defines the domain objects the engine reads from and writes
// to the object store, and the codec used to persist them.
//
// Every object lives in the store under the key "{kind}:{id}". The fields
// modelled here are only the ones the webhook dispatcher and the billing jobs
// consume; anything else a client sends is dropped on decode.
package object

import "strings"

// Kind is the store key namespace of an object.
type Kind string

// Object kinds.
const (
	KindEvent         Kind = "event"
	KindSubscription  Kind = "subscription"
	KindPrice         Kind = "price"
	KindMeter         Kind = "billing.meter"
	KindMeterEvent    Kind = "billing.meter_event"
	KindInvoice       Kind = "invoice"
	KindInvoiceItem   Kind = "invoiceitem"
	KindMeteredPeriod Kind = "metered_period"
)

// Object is implemented by every stored domain object.
type Object interface {
	ObjectKind() Kind
	ObjectID() string
	// Account returns the owning account, "" for global objects.
	Account() string
}

// Key returns the store key for an object of kind with the given id.
func Key(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// KeyOf returns the store key of o.
func KeyOf(o Object) string {
	return Key(o.ObjectKind(), o.ObjectID())
}

// Prefix returns the key prefix shared by all objects of kind.
func Prefix(kind Kind) string {
	return string(kind) + ":"
}

// SplitKey splits a store key into its kind and id.
func SplitKey(key string) (Kind, string, bool) {
	kind, oid, ok := strings.Cut(key, ":")
	if !ok || kind == "" || oid == "" {
		return "", "", false
	}
	return Kind(kind), oid, true
}
