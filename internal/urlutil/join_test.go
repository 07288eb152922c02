package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		segments []string
		want     string
	}{
		{
			name:     "endpoint on root origin",
			base:     "http://shop.example",
			segments: []string{"dm-sso-endpoint", "1700000000/"},
			want:     "http://shop.example/dm-sso-endpoint/1700000000/",
		},
		{
			name:     "endpoint on subdirectory site",
			base:     "https://network.example.com/blog/",
			segments: []string{"dm-sso-endpoint", "1700000000/"},
			want:     "https://network.example.com/blog/dm-sso-endpoint/1700000000/",
		},
		{
			name:     "no trailing slash",
			base:     "https://network.example.com",
			segments: []string{"wp-admin", "admin-ajax.php"},
			want:     "https://network.example.com/wp-admin/admin-ajax.php",
		},
		{
			name:     "empty segments skipped",
			base:     "https://network.example.com/",
			segments: []string{"", "wp-login.php"},
			want:     "https://network.example.com/wp-login.php",
		},
		{
			name:     "no segments",
			base:     "https://network.example.com",
			segments: nil,
			want:     "https://network.example.com",
		},
		{
			name:     "query dropped",
			base:     "http://shop.example/?p=12",
			segments: []string{"dm-sso-endpoint/"},
			want:     "http://shop.example/dm-sso-endpoint/",
		},
		{
			name:     "segment escaped",
			base:     "http://shop.example",
			segments: []string{"a b"},
			want:     "http://shop.example/a%20b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.segments...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinPathInvalidBase(t *testing.T) {
	_, err := JoinPath("http://[::1", "x")
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustJoinPath("http://[::1", "x")
	})
}
