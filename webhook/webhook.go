// Package webhook holds the in-memory registry of webhook subscribers.
package webhook

import (
	"slices"
	"strings"

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/scope"
)

// Webhook is a registered subscriber endpoint.
type Webhook struct {
	// ID is chosen by the caller and unique within a registry.
	ID string `json:"id"`

	// URL receives the signed POST requests.
	URL string `json:"url"`

	// Secret is the HMAC signing secret shared with the subscriber.
	Secret string `json:"secret"`

	// Events is the event-type allow-list. Nil accepts every type.
	Events []string `json:"events"`

	// AccountID owns the webhook. Empty means global.
	AccountID string `json:"account,omitempty"`
}

// Accepts reports whether evt should be delivered to w: the two accounts
// must overlap and the type must pass the allow-list.
func (w Webhook) Accepts(evt *object.Event) bool {
	if !scope.Overlaps(w.AccountID, evt.AccountID) {
		return false
	}
	if w.Events != nil && !slices.Contains(w.Events, evt.Type) {
		return false
	}
	return true
}

// Input is the registration payload accepted from the config surface.
type Input struct {
	URL    string   `json:"url" form:"url"`
	Secret string   `json:"secret" form:"secret"`
	Events []string `json:"events" form:"events"`
}

// Validate checks the registration payload: url and secret are required and
// the url must use an http(s) scheme.
func (in Input) Validate() error {
	if in.URL == "" {
		return &ValidationError{Field: "url", Message: "required"}
	}
	if !strings.HasPrefix(in.URL, "http") {
		return &ValidationError{Field: "url", Message: "must be an http or https URL"}
	}
	if in.Secret == "" {
		return &ValidationError{Field: "secret", Message: "required"}
	}
	return nil
}

// ValidationError indicates invalid registration input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}
