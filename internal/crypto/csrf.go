package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// csrfClockSkew tolerates issue times slightly ahead of the validating clock
const csrfClockSkew = 30 * time.Second

// CSRFProtection issues stateless tokens for the login form.
// Tokens are nonce:timestamp:signature and expire after ttl.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewCSRFProtection creates a CSRF token issuer signing with signingKey
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithClock returns a copy reading time from now.
func (c CSRFProtection) WithClock(now func() time.Time) CSRFProtection {
	c.now = now
	return c
}

// Generate creates a token bound to the current time
func (c *CSRFProtection) Generate() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := nonce + ":" + strconv.FormatInt(c.now().Unix(), 10)
	return data + ":" + SignData(data, c.signingKey), nil
}

// Validate checks the signature and that the token was issued within ttl
func (c *CSRFProtection) Validate(token string) bool {
	nonce, rest, ok := strings.Cut(token, ":")
	if !ok || nonce == "" {
		return false
	}
	stamp, signature, ok := strings.Cut(rest, ":")
	if !ok {
		return false
	}

	issued, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return false
	}
	age := c.now().Sub(time.Unix(issued, 0))
	if age > c.ttl || age < -csrfClockSkew {
		return false
	}

	return ValidateSignedData(nonce+":"+stamp, signature, c.signingKey)
}
