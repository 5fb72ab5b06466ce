package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathMatcherDefaultExcludes(t *testing.T) {
	t.Parallel()

	m := NewPathMatcher(nil, DefaultExcludePatterns)
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", true},
		{"https://example.com/about", true},
		{"https://example.com/admin/users", false},
		{"https://example.com/wp-admin/", false},
		{"https://example.com/admin", true},
		{"https://example.com/files/brochure.PDF", false},
		{"https://example.com/static/app.js", false},
		{"https://example.com/static/app.json", true},
		{"https://example.com/img/logo.png?v=2", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, m.Allowed(tt.url), tt.url)
	}
}

func TestPathMatcherInclude(t *testing.T) {
	t.Parallel()

	m := NewPathMatcher([]string{"/blog/*", " "}, nil)
	require.True(t, m.Allowed("https://example.com/blog/post-1"))
	require.False(t, m.Allowed("https://example.com/pricing"))
	require.False(t, m.Allowed("://bad"))
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("HTTPS://Example.com:443?b=2&a=1#top")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/?a=1&b=2", got)

	_, err = NormalizeURL("http://[::1")
	require.Error(t, err)
}
