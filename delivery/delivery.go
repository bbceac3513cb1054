// Package delivery signs and POSTs events to registered webhooks, retries
// failed attempts with exponential backoff and records one log entry per
// attempt.
package delivery

import (
	"encoding/json"
	"errors"

	"github.com/xraph/paysim/id"
)

var (
	// ErrTimeout marks an attempt that exceeded the request timeout.
	ErrTimeout = errors.New("delivery: request timeout")

	// ErrTransport marks a connection-level failure.
	ErrTransport = errors.New("delivery: transport error")

	// ErrUnexpected marks any other failure while attempting delivery.
	ErrUnexpected = errors.New("delivery: unexpected error")

	// ErrHTTPStatus marks a response outside the 2xx range.
	ErrHTTPStatus = errors.New("delivery: non-2xx response")

	// ErrLogNotFound is returned when retrying an unknown log entry.
	ErrLogNotFound = errors.New("delivery: webhook log not found")

	// ErrEventNotFound is returned when the event behind a log entry is gone.
	ErrEventNotFound = errors.New("delivery: event not found")
)

// Entry is the audit record of one delivery attempt.
type Entry struct {
	ID        id.ID  `json:"id"`
	WebhookID string `json:"webhook_id"`
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	URL       string `json:"url"`
	// Attempt is 1-based.
	Attempt int   `json:"attempt"`
	Created int64 `json:"created"`

	// RequestData is the exact payload sent.
	RequestData json.RawMessage `json:"request_data"`

	// ResponseData is the response body decoded as JSON when possible,
	// otherwise the raw text. Nil when the body was empty or unreadable.
	ResponseData any `json:"response_data"`

	// StatusCode is nil while the attempt is in flight and 0 when no HTTP
	// response was obtained.
	StatusCode     *int    `json:"status_code"`
	ResponseTimeMs *int64  `json:"response_time_ms"`
	ErrorMessage   *string `json:"error_message"`

	// RetryAt is the unix time of the next attempt when one is scheduled.
	RetryAt *int64 `json:"retry_at"`

	AccountID string `json:"account,omitempty"`
}

// Pending reports whether the attempt has not concluded yet.
func (e *Entry) Pending() bool { return e.StatusCode == nil }

// complete fills in the outcome of the attempt.
func (e *Entry) complete(res Result) {
	code := res.StatusCode
	latency := res.LatencyMs
	e.StatusCode = &code
	e.ResponseTimeMs = &latency
	e.ResponseData = res.Response
	if res.Err != nil {
		msg := res.Err.Error()
		e.ErrorMessage = &msg
	}
}

// clone returns a copy safe to hand out of the log.
func (e *Entry) clone() Entry {
	c := *e
	return c
}
