package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSignData(t *testing.T) {
	key := []byte("key")
	sig := SignData("payload", key)

	assert.True(t, ValidateSignedData("payload", sig, key))
	assert.False(t, ValidateSignedData("payload2", sig, key))
	assert.False(t, ValidateSignedData("payload", sig, []byte("other")))
	assert.False(t, ValidateSignedData("payload", "%%%not-base64", key))
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey(testSecret, PurposeAuthToken)
	require.NoError(t, err)
	assert.Len(t, a, 32)

	again, err := DeriveKey(testSecret, PurposeAuthToken)
	require.NoError(t, err)
	assert.Equal(t, a, again, "derivation is deterministic")

	b, err := DeriveKey(testSecret, PurposeSession)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "purposes get independent keys")

	_, err = DeriveKey([]byte("short"), PurposeSession)
	assert.Error(t, err)

	_, err = DeriveKey(testSecret, "")
	assert.Error(t, err)
}

func TestTokenSigner(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	signer := NewTokenSigner([]byte("session-key"), time.Minute).WithClock(clock)

	type payload struct {
		UID int64 `json:"uid"`
	}

	token, err := signer.Sign(payload{UID: 42})
	require.NoError(t, err)

	t.Run("verifies", func(t *testing.T) {
		var got payload
		require.NoError(t, signer.Verify(token, &got))
		assert.Equal(t, int64(42), got.UID)
	})

	t.Run("tampered payload", func(t *testing.T) {
		p, sig, _ := strings.Cut(token, ".")
		tampered := p[:len(p)-1] + flip(p[len(p)-1]) + "." + sig
		var got payload
		assert.Error(t, signer.Verify(tampered, &got))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewTokenSigner([]byte("other-key"), time.Minute).WithClock(clock)
		var got payload
		assert.ErrorIs(t, other.Verify(token, &got), ErrInvalidSignature)
	})

	t.Run("expired at boundary", func(t *testing.T) {
		later := signer.WithClock(func() time.Time { return now.Add(time.Minute) })
		var got payload
		assert.ErrorIs(t, later.Verify(token, &got), ErrTokenExpired)
	})

	t.Run("malformed", func(t *testing.T) {
		var got payload
		assert.Error(t, signer.Verify("nodot", &got))
		assert.Error(t, signer.Verify(".sig", &got))
	})
}

func TestCSRFProtection(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	csrf := NewCSRFProtection([]byte("csrf-key"), time.Hour).WithClock(clock)

	token, err := csrf.Generate()
	require.NoError(t, err)
	assert.True(t, csrf.Validate(token))

	assert.False(t, csrf.Validate("garbage"))
	assert.False(t, csrf.Validate(token+"x"))
	assert.False(t, csrf.Validate(":1700000000:sig"))

	other := NewCSRFProtection([]byte("other-key"), time.Hour).WithClock(clock)
	assert.False(t, other.Validate(token))

	t.Run("expired", func(t *testing.T) {
		later := csrf.WithClock(func() time.Time { return now.Add(time.Hour + time.Second) })
		assert.False(t, later.Validate(token))
	})

	t.Run("issued in the future", func(t *testing.T) {
		earlier := csrf.WithClock(func() time.Time { return now.Add(-time.Minute) })
		assert.False(t, earlier.Validate(token))

		skewed := csrf.WithClock(func() time.Time { return now.Add(-10 * time.Second) })
		assert.True(t, skewed.Validate(token))
	})
}

func flip(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}
