// Package signature implements the Stripe-Signature webhook header:
// "t={timestamp},v1={hex(HMAC-SHA256(secret, "{timestamp}.{payload}"))}".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// HeaderName is the HTTP header carrying the signature.
const HeaderName = "Stripe-Signature"

// Scheme is the versioned signature scheme name used in the header.
const Scheme = "v1"

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{payload}" keyed by secret.
func Sign(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header formats the header value for a timestamp and hex signature.
func Header(timestamp int64, sig string) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + "," + Scheme + "=" + sig
}

// SignHeader signs payload and returns the complete header value.
func SignHeader(payload []byte, secret string, timestamp int64) string {
	return Header(timestamp, Sign(payload, secret, timestamp))
}
