// Package authtoken issues and validates the short-lived tokens that carry a
// user identity from one origin to another during a handshake.
package authtoken

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/cdsso/internal/crypto"
	"github.com/dgellow/cdsso/internal/identity"
	"github.com/dgellow/cdsso/internal/log"
)

// DefaultTTL is the validity window of a freshly issued token.
const DefaultTTL = 60 * time.Second

const macDomain = "cdsso-auth"

var (
	ErrMalformed  = errors.New("malformed auth token")
	ErrInvalidTTL = errors.New("token ttl must be at least one second")
	ErrNoSubject  = errors.New("token subject is required")
)

// AuthToken is a signed statement that Subject was authenticated on the
// canonical origin. The wire form is subject|expiresAt|issuedAt|hexmac.
type AuthToken struct {
	Subject   identity.UserID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Signature []byte
}

// String returns the wire form of the token.
func (t AuthToken) String() string {
	return fmt.Sprintf("%d|%d|%d|%s",
		t.Subject, t.ExpiresAt.Unix(), t.IssuedAt.Unix(), hex.EncodeToString(t.Signature))
}

// ID identifies the token for single-use bookkeeping.
func (t AuthToken) ID() string {
	return hex.EncodeToString(t.Signature)
}

// Parse decodes the wire form without checking the signature.
func Parse(raw string) (AuthToken, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 4 {
		return AuthToken{}, ErrMalformed
	}

	subject, err := identity.ParseUserID(parts[0])
	if err != nil {
		return AuthToken{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return AuthToken{}, fmt.Errorf("%w: bad expiry", ErrMalformed)
	}
	issued, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return AuthToken{}, fmt.Errorf("%w: bad issue time", ErrMalformed)
	}
	sig, err := hex.DecodeString(parts[3])
	if err != nil || len(sig) == 0 {
		return AuthToken{}, fmt.Errorf("%w: bad signature encoding", ErrMalformed)
	}

	tok := AuthToken{
		Subject:   subject,
		ExpiresAt: time.Unix(expires, 0),
		IssuedAt:  time.Unix(issued, 0),
		Signature: sig,
	}
	// One token, one spelling: "042" or upper-case hex are refused.
	if tok.String() != raw {
		return AuthToken{}, fmt.Errorf("%w: non-canonical encoding", ErrMalformed)
	}
	return tok, nil
}

// Service signs and checks tokens with a key dedicated to this purpose.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	key []byte
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service. key must be at least 32 bytes.
func NewService(key []byte, opts ...Option) (*Service, error) {
	if len(key) < crypto.MinSecretLength {
		return nil, fmt.Errorf("token key must be at least %d bytes", crypto.MinSecretLength)
	}
	s := &Service{
		key: append([]byte(nil), key...),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a token for subject valid for ttl, bound to audience (the
// host expected to redeem it). An empty audience binds to no particular host.
func (s *Service) Issue(subject identity.UserID, audience string, ttl time.Duration) (AuthToken, error) {
	if !subject.Valid() {
		return AuthToken{}, ErrNoSubject
	}
	if ttl < time.Second {
		return AuthToken{}, ErrInvalidTTL
	}

	now := s.now().Truncate(time.Second)
	tok := AuthToken{
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl.Truncate(time.Second)),
	}
	tok.Signature = s.sign(tok, audience)

	log.LogTraceWithFields("token", "Issued auth token", map[string]any{
		"subject":  subject.String(),
		"audience": audience,
		"expires":  tok.ExpiresAt.Unix(),
	})
	return tok, nil
}

// Validate returns the subject of raw if it is well formed, correctly signed
// for audience and not expired. Every failure is reported as false.
func (s *Service) Validate(raw, audience string) (identity.UserID, bool) {
	tok, ok := s.ValidateToken(raw, audience)
	if !ok {
		return 0, false
	}
	return tok.Subject, true
}

// ValidateToken is Validate returning the decoded token.
func (s *Service) ValidateToken(raw, audience string) (AuthToken, bool) {
	tok, err := Parse(raw)
	if err != nil {
		log.LogDebugWithFields("token", "Rejected malformed token", map[string]any{"error": err.Error()})
		return AuthToken{}, false
	}

	if !crypto.Equal(tok.Signature, s.sign(tok, audience)) {
		log.LogDebugWithFields("token", "Rejected token with bad signature", map[string]any{
			"subject":  tok.Subject.String(),
			"audience": audience,
		})
		return AuthToken{}, false
	}

	if !s.now().Before(tok.ExpiresAt) {
		log.LogDebugWithFields("token", "Rejected expired token", map[string]any{
			"subject": tok.Subject.String(),
			"expired": tok.ExpiresAt.Unix(),
		})
		return AuthToken{}, false
	}

	return tok, true
}

func (s *Service) sign(tok AuthToken, audience string) []byte {
	msg := strings.Join([]string{
		macDomain,
		tok.Subject.String(),
		strconv.FormatInt(tok.ExpiresAt.Unix(), 10),
		strconv.FormatInt(tok.IssuedAt.Unix(), 10),
		strings.ToLower(audience),
	}, "|")
	return crypto.MAC(s.key, []byte(msg))
}
