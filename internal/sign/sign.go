// Package sign implements capability signatures for time-limited file access.
//
// A capability is an HMAC-SHA256 over "key:expiry". It authorizes exactly one
// object key until the expiry, verifiable without any session state.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer signs and verifies capability URLs for object keys.
type Signer struct {
	key []byte
}

// New returns a Signer using secret as the HMAC key. An empty secret yields a
// signer that refuses to sign (fail closed) and verifies nothing.
func New(secret string) *Signer {
	if secret == "" {
		return &Signer{}
	}
	return &Signer{key: []byte(secret)}
}

// Configured reports whether a signing key is present.
func (s *Signer) Configured() bool {
	return len(s.key) > 0
}

// Sign returns the hex signature for key valid until expiry (epoch seconds),
// or "" when no signing key is configured. Callers receiving "" must fall back
// to authenticated access only.
func (s *Signer) Sign(key string, expiry int64) string {
	if !s.Configured() {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s:%d", key, expiry)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature for (key, expiry) and compares it to sig in
// constant time. It returns false for expired capabilities and when no signing
// key is configured.
func (s *Signer) Verify(key string, expiry int64, sig string, now time.Time) bool {
	if !s.Configured() || sig == "" {
		return false
	}
	if expiry < now.Unix() {
		return false
	}
	want := s.Sign(key, expiry)
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	wantRaw, err := hex.DecodeString(want)
	if err != nil {
		return false
	}
	return hmac.Equal(wantRaw, got)
}

// SignedURL builds a gateway URL for key, valid for ttl. Returns "" when
// signing is unavailable.
func (s *Signer) SignedURL(baseURL, key string, ttl time.Duration, now time.Time) string {
	expiry := now.Add(ttl).Unix()
	sig := s.Sign(key, expiry)
	if sig == "" {
		return ""
	}
	q := url.Values{}
	q.Set("e", strconv.FormatInt(expiry, 10))
	q.Set("sig", sig)
	return fmt.Sprintf("%s/files/%s?%s", baseURL, key, q.Encode())
}
