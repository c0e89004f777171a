// Package auth provides request signing using HMAC-SHA256 over the
// canonical query string, the scheme used by Binance-style exchanges.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrMissingCredentials is returned when a signed request is attempted
// without a configured API key and secret.
var ErrMissingCredentials = errors.New("credentials required for signed request")

// Credentials holds the API key and secret for signing requests.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// HeaderAPIKey is the header carrying the API key on authenticated calls.
const HeaderAPIKey = "X-MBX-APIKEY"

// Signer canonicalizes request parameters and computes signatures.
// The zero recvWindow disables the recvWindow parameter.
type Signer struct {
	creds      *Credentials
	clock      clock.Clock
	recvWindow time.Duration
}

// NewSigner creates a Signer. creds may be nil for public-only mode;
// signing then fails with ErrMissingCredentials.
func NewSigner(creds *Credentials, recvWindow time.Duration, clk clock.Clock) *Signer {
	if clk == nil {
		clk = clock.New()
	}
	return &Signer{creds: creds, clock: clk, recvWindow: recvWindow}
}

// CanSign reports whether credentials are configured.
func (s *Signer) CanSign() bool {
	return s.creds != nil && s.creds.APIKey != "" && s.creds.SecretKey != ""
}

// APIKey returns the configured API key, or "" in public-only mode.
func (s *Signer) APIKey() string {
	if s.creds == nil {
		return ""
	}
	return s.creds.APIKey
}

// Sign returns the final query string for a signed request: the sorted
// urlencoded logical params plus timestamp, recvWindow and signature.
// The input values are not modified.
func (s *Signer) Sign(params url.Values) (string, error) {
	if !s.CanSign() {
		return "", ErrMissingCredentials
	}

	signed := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			signed.Add(k, v)
		}
	}
	signed.Set("timestamp", strconv.FormatInt(s.clock.Now().UnixMilli(), 10))
	if s.recvWindow > 0 && signed.Get("recvWindow") == "" {
		signed.Set("recvWindow", strconv.FormatInt(s.recvWindow.Milliseconds(), 10))
	}

	query := signed.Encode()
	sig, err := s.signature(query)
	if err != nil {
		return "", err
	}

	// The signature must come last and must not be re-encoded.
	return query + "&signature=" + sig, nil
}

func (s *Signer) signature(query string) (string, error) {
	if s.creds.SecretKey == "" {
		return "", ErrMissingCredentials
	}

	mac := hmac.New(sha256.New, []byte(s.creds.SecretKey))
	if _, err := mac.Write([]byte(query)); err != nil {
		return "", fmt.Errorf("sign query: %w", err)
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}
