// Package crawler defines the crawling framework the onboarding service
// depends on: discovery and scraping interfaces, the collaborators they are
// assembled from, text extraction and path exclusion helpers, and the
// WebFramework that composes fetchers, the headless detector and the rate
// limiter into a single Framework.
package crawler
