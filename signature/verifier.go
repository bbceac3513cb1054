package signature

import (
	"crypto/hmac"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMalformedHeader is returned when the header has no timestamp or no
	// v1 signature.
	ErrMalformedHeader = errors.New("signature: malformed header")

	// ErrMismatch is returned when no v1 signature matches the payload.
	ErrMismatch = errors.New("signature: no matching signature")

	// ErrExpired is returned when the timestamp is outside the tolerance.
	ErrExpired = errors.New("signature: timestamp outside tolerance")
)

// Parsed is a decoded header. A header may carry several v1 signatures while
// a secret is being rolled.
type Parsed struct {
	Timestamp  int64
	Signatures []string
}

// ParseHeader decodes a header value. Unknown schemes are ignored.
func ParseHeader(header string) (Parsed, error) {
	var (
		p     Parsed
		hasTS bool
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Parsed{}, ErrMalformedHeader
			}
			p.Timestamp, hasTS = ts, true
		case Scheme:
			p.Signatures = append(p.Signatures, v)
		}
	}
	if !hasTS || len(p.Signatures) == 0 {
		return Parsed{}, ErrMalformedHeader
	}
	return p, nil
}

// Verify reports whether sig is the signature of payload at timestamp.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyHeader checks a full header value against payload. A zero tolerance
// disables the timestamp check.
func VerifyHeader(payload []byte, secret, header string, tolerance time.Duration, now time.Time) error {
	p, err := ParseHeader(header)
	if err != nil {
		return err
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(p.Timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrExpired
		}
	}
	for _, sig := range p.Signatures {
		if Verify(payload, secret, p.Timestamp, sig) {
			return nil
		}
	}
	return ErrMismatch
}
