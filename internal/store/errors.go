package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every repository implementation. Handlers map
// them onto HTTP status codes with errors.Is.
var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks missing or malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that collides with existing state.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrNoFields is returned by partial updates that carry no fields.
	ErrNoFields = fmt.Errorf("%w: No fields to update", ErrValidation)
	// ErrDuplicateURL is returned when a project already tracks a website URL.
	ErrDuplicateURL = fmt.Errorf("%w: website URL already exists for this project", ErrConflict)
	// ErrCrawlInProgress is returned when a crawl is requested for a website
	// whose crawl_status is already crawling.
	ErrCrawlInProgress = fmt.Errorf("%w: crawl already in progress", ErrConflict)
	// ErrProtectedDatabase is returned when dropping a system database.
	ErrProtectedDatabase = fmt.Errorf("%w: cannot delete system database", ErrValidation)
)
