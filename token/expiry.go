// Package token implements the credential caches: a default-identity
// slot, a per-audience map, and a TEE-socket variant, all fronting a
// credential-issuing HTTP metadata endpoint with a five-minute expiry
// grace.
package token

import (
	"errors"
	"time"
)

// Grace is the expiry margin applied to every token record: a token is
// expired-for-client-purposes once now+Grace passes its expire time,
// even though the issuer considers it valid until then.
const Grace = 5 * time.Minute

// ErrMalformedToken marks a response the endpoint delivered but whose
// body could not be used: bad JSON, a missing required field, or a JWT
// that does not decode. Transport-level failures are reported as the
// HTTP client's own error instead.
var ErrMalformedToken = errors.New("token: malformed endpoint response")

// Record is a (session-token string, absolute expire-time) pair.
type Record struct {
	Token      string
	ExpireTime time.Time
}

// Expired reports whether r is expired-for-client-purposes as of now.
func (r Record) Expired(now time.Time) bool {
	return now.Add(Grace).After(r.ExpireTime)
}
