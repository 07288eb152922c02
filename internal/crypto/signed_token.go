package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrTokenExpired     = errors.New("token expired")
)

// TokenSigner provides HMAC-signed JSON envelopes with an optional expiry.
// It backs the session cookie.
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a new token signer
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithClock returns a copy of the signer that reads time from now.
func (ts TokenSigner) WithClock(now func() time.Time) TokenSigner {
	ts.now = now
	return ts
}

// TTL returns the lifetime applied to signed envelopes.
func (ts *TokenSigner) TTL() time.Duration {
	return ts.ttl
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt int64           `json:"exp,omitempty"`
}

// Sign marshals v, wraps it with the expiry and returns "<payload>.<signature>".
func (ts *TokenSigner) Sign(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	env := envelope{Data: data}
	if ts.ttl > 0 {
		env.ExpiresAt = ts.now().Add(ts.ttl).Unix()
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + SignData(payload, ts.signingKey), nil
}

// Verify checks the signature and expiry and unmarshals the data into v.
func (ts *TokenSigner) Verify(token string, v any) error {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || payload == "" || signature == "" {
		return fmt.Errorf("invalid token format")
	}

	if !ValidateSignedData(payload, signature, ts.signingKey) {
		return ErrInvalidSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	if env.ExpiresAt != 0 && ts.now().Unix() >= env.ExpiresAt {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}
