package store

import (
	"net/url"
	"strings"
)

// Row browser page sizes.
const (
	DefaultPerPage = 50
	MaxPerPage     = 1000
)

// ValidWebsiteURL reports whether raw is an absolute http or https URL.
func ValidWebsiteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// ClampPerPage applies the row browser's default and hard cap.
func ClampPerPage(perPage int) int {
	if perPage <= 0 {
		return DefaultPerPage
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}

// ClampPage returns page, or 1 when page is not positive.
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

var protectedDatabases = map[string]struct{}{
	"postgres":  {},
	"template0": {},
	"template1": {},
}

// IsProtectedDatabase reports whether name is a system database that must
// never be dropped.
func IsProtectedDatabase(name string) bool {
	_, ok := protectedDatabases[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
