// Package api hosts the HTTP server, middleware, and REST handlers for the
// onboarding manager. Notable routes:
//   - GET /healthz / readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - /api/projects/... for project and website CRUD, crawl control and
//     crawled page listings.
//   - /api/database/... for the admin database browser.
//
// Every /api response is wrapped in a {success, data, error, details,
// message} envelope.
package api
