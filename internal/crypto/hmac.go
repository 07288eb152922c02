package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// MAC returns the raw HMAC-SHA256 of data under key.
func MAC(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Equal compares two MACs in constant time.
func Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// SignData returns the base64url HMAC-SHA256 signature of data.
func SignData(data string, key []byte) string {
	return base64.URLEncoding.EncodeToString(MAC(key, []byte(data)))
}

// ValidateSignedData reports whether signature is the signature of data under key.
func ValidateSignedData(data, signature string, key []byte) bool {
	got, err := base64.URLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, MAC(key, []byte(data)))
}
