package webhook

import (
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned when a webhook id is not registered.
var ErrNotFound = errors.New("webhook: not found")

// Registry maps subscriber ids to webhooks. It is safe for concurrent use and
// lists webhooks in first-registration order.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Webhook
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Webhook)}
}

// Register inserts w, or replaces the webhook with the same ID in place.
func (r *Registry) Register(w Webhook) {
	w.Events = slices.Clone(w.Events)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[w.ID]; !ok {
		r.order = append(r.order, w.ID)
	}
	r.byID[w.ID] = w
}

// Unregister removes the webhook with id.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

// Get returns a copy of the webhook with id.
func (r *Registry) Get(id string) (Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	if !ok {
		return Webhook{}, ErrNotFound
	}
	w.Events = slices.Clone(w.Events)
	return w, nil
}

// List returns a snapshot of every registered webhook. Later registry
// changes do not affect the returned slice.
func (r *Registry) List() []Webhook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Webhook, 0, len(r.order))
	for _, id := range r.order {
		w := r.byID[id]
		w.Events = slices.Clone(w.Events)
		out = append(out, w)
	}
	return out
}

// Len returns the number of registered webhooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Clear removes every webhook.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]Webhook)
	r.order = nil
}
