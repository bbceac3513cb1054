package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xraph/paysim/signature"
)

const maxResponseBody = 64 << 10 // 64KB cap on response body storage

// AttemptError describes why an attempt did not succeed. Msg is what gets
// recorded in the log; Kind is one of the Err* sentinels.
type AttemptError struct {
	Kind error
	Msg  string
}

func (e *AttemptError) Error() string { return e.Msg }
func (e *AttemptError) Unwrap() error { return e.Kind }

// Request is one signed POST to a webhook.
type Request struct {
	URL       string
	Secret    string
	Timestamp int64
	Body      []byte
}

// Result holds the outcome of a single delivery attempt.
type Result struct {
	// StatusCode is 0 when no response was obtained.
	StatusCode int
	Response   any
	LatencyMs  int64
	Err        error
}

// OK reports whether the attempt got a 2xx response.
func (r Result) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Sender performs HTTP webhook delivery.
type Sender struct {
	client  *http.Client
	timeout time.Duration
}

// NewSender creates a sender bounding each attempt to timeout. A nil client
// gets one whose transport is instrumented with OpenTelemetry.
func NewSender(client *http.Client, timeout time.Duration) *Sender {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Sender{client: client, timeout: timeout}
}

// Send POSTs req.Body with a Stripe-Signature header and returns the result.
func (s *Sender) Send(ctx context.Context, req Request) Result {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Err: unexpected(err)}
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set(signature.HeaderName, signature.SignHeader(req.Body, req.Secret, req.Timestamp))

	start := time.Now()
	resp, err := s.client.Do(httpReq) //nolint:gosec // G704: URL is a user-configured webhook destination.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{LatencyMs: latency, Err: classify(ctx, err)}
	}
	defer resp.Body.Close()

	res := Result{StatusCode: resp.StatusCode, LatencyMs: latency}
	if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody)); readErr == nil {
		res.Response = decodeResponse(raw)
	}
	if !res.OK() {
		res.Err = &AttemptError{Kind: ErrHTTPStatus, Msg: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return res
}

// classify maps a client error to the recorded failure kind.
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &AttemptError{Kind: ErrTimeout, Msg: "Request timeout"}
	case errors.Is(err, context.Canceled):
		return unexpected(err)
	default:
		return &AttemptError{Kind: ErrTransport, Msg: transportMessage(err)}
	}
}

// transportMessage strips the url.Error wrapper so the log carries the
// underlying connection error.
func transportMessage(err error) string {
	var ue interface{ Unwrap() error }
	if errors.As(err, &ue) {
		if inner := ue.Unwrap(); inner != nil {
			return inner.Error()
		}
	}
	return err.Error()
}

func unexpected(err error) error {
	return &AttemptError{Kind: ErrUnexpected, Msg: "Unexpected error: " + err.Error()}
}

// decodeResponse returns raw decoded as JSON, or as text when it is not JSON.
func decodeResponse(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}
