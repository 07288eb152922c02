package urlutil

import (
	"net/url"
)

// AddQueryArg sets key=value on the query of rawURL, replacing any existing
// value. Unparseable input is returned unchanged.
func AddQueryArg(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// RemoveQueryArg removes key from the query of rawURL.
func RemoveQueryArg(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if !q.Has(key) {
		return rawURL
	}
	q.Del(key)
	u.RawQuery = q.Encode()
	return u.String()
}

// HasQueryArg reports whether rawURL carries key=value.
func HasQueryArg(rawURL, key, value string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get(key) == value
}
