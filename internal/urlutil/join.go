package urlutil

import (
	"net/url"
	"strings"
)

// JoinPath appends path segments to the path of base. Segments are escaped,
// empty ones are skipped and a trailing slash on the last one is kept, so
// "site/", "dm-sso-endpoint", "1700000000/" yields "site/dm-sso-endpoint/1700000000/".
// The query and fragment of base are dropped.
func JoinPath(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Fragment = ""

	trailing := len(segments) > 0 && strings.HasSuffix(segments[len(segments)-1], "/")

	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	u = u.JoinPath(parts...)

	if trailing && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		u.RawPath = ""
	}
	if !trailing && len(parts) > 0 {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}
	return u.String(), nil
}

// MustJoinPath is JoinPath for bases built from resolved origins
func MustJoinPath(base string, segments ...string) string {
	result, err := JoinPath(base, segments...)
	if err != nil {
		panic(err)
	}
	return result
}
