// Package store defines the onboarding domain model (projects, websites,
// pages) together with the repository interfaces that persist it.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
