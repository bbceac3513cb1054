// Package store defines the keyed object store shared by the request path and
// the background jobs.
//
// Objects are addressed by "{kind}:{id}" keys (see object.Key). Every backend
// persists the JSON encoding produced by object.Encode, so values read back
// are always fresh copies and callers may mutate them freely before Set.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/paysim/object"
)

var (
	// ErrNotFound is returned by Get and Delete for a missing key.
	ErrNotFound = errors.New("store: not found")

	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("store: closed")

	// ErrEmptyID is returned by Set for an object without an id.
	ErrEmptyID = object.ErrEmptyID
)

// Item is one key/object pair returned by Items.
type Item struct {
	Key    string
	Object object.Object
}

// Store is the keyed object store.
type Store interface {
	// Get returns the object stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (object.Object, error)

	// Set inserts or replaces o under object.KeyOf(o). An object with an
	// empty id is rejected with ErrEmptyID.
	Set(ctx context.Context, o object.Object) error

	// Delete removes key, or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Items returns every object whose key starts with prefix, ordered by
	// key. An empty prefix returns everything.
	Items(ctx context.Context, prefix string) ([]Item, error)

	// Clear removes every object.
	Clear(ctx context.Context) error

	// Migrate prepares the backend schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Load fetches the object of kind with the given id as T.
func Load[T object.Object](ctx context.Context, s Store, kind object.Kind, oid string) (T, error) {
	var zero T

	o, err := s.Get(ctx, object.Key(kind, oid))
	if err != nil {
		return zero, err
	}

	t, ok := o.(T)
	if !ok {
		return zero, fmt.Errorf("store: %s holds %T, want %T", object.Key(kind, oid), o, zero)
	}
	return t, nil
}

// List returns every object of kind as T, ordered by key.
func List[T object.Object](ctx context.Context, s Store, kind object.Kind) ([]T, error) {
	items, err := s.Items(ctx, object.Prefix(kind))
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		t, ok := it.Object.(T)
		if !ok {
			return nil, fmt.Errorf("store: %s holds %T", it.Key, it.Object)
		}
		out = append(out, t)
	}
	return out, nil
}

// DecodeItem builds an Item from a raw stored value.
func DecodeItem(key string, raw []byte) (Item, error) {
	o, err := object.DecodeKey(key, raw)
	if err != nil {
		return Item{}, err
	}
	return Item{Key: key, Object: o}, nil
}
