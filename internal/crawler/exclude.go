package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// PathMatcher applies include and exclude glob patterns to URL paths. A
// pattern's "*" matches any run of characters, including "/", and the
// pattern must cover the whole path: "/admin/*" matches everything under
// /admin/ and "*.pdf" matches any path ending in .pdf.
type PathMatcher struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewPathMatcher compiles the patterns. Blank patterns are ignored.
func NewPathMatcher(include, exclude []string) *PathMatcher {
	return &PathMatcher{
		include: compileGlobs(include),
		exclude: compileGlobs(exclude),
	}
}

func compileGlobs(patterns []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		parts := strings.Split(p, "*")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		out = append(out, regexp.MustCompile("(?i)^"+strings.Join(parts, ".*")+"$"))
	}
	return out
}

// Allowed reports whether rawURL passes the include and exclude lists. A
// URL that cannot be parsed is rejected.
func (m *PathMatcher) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if m == nil {
		return true
	}
	for _, re := range m.exclude {
		if re.MatchString(path) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, re := range m.include {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
