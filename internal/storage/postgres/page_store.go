package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hubspot-onboarding/internal/database"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

// PageStore implements store.PageRepository.
type PageStore struct {
	db database.DB
}

// NewPageStore wraps a pool (or any database.DB).
func NewPageStore(db database.DB) *PageStore {
	return &PageStore{db: db}
}

// UpsertPage inserts a page or refreshes the content of the existing
// (website_id, url) row.
func (s *PageStore) UpsertPage(ctx context.Context, p store.Page) error {
	query := `
		INSERT INTO pages (website_id, url, title, content, raw_html, depth, word_count, link_count,
			scraping_status, discovered_at, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (website_id, url) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			raw_html = EXCLUDED.raw_html,
			depth = EXCLUDED.depth,
			word_count = EXCLUDED.word_count,
			link_count = EXCLUDED.link_count,
			scraping_status = EXCLUDED.scraping_status,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = CURRENT_TIMESTAMP`
	status := p.ScrapingStatus
	if status == "" {
		status = store.PageCrawled
	}
	if _, err := s.db.Exec(ctx, query,
		p.WebsiteID,
		p.URL,
		p.Title,
		p.Content,
		p.RawHTML,
		p.Depth,
		p.WordCount,
		p.LinkCount,
		string(status),
		p.DiscoveredAt,
		p.ScrapedAt,
	); err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

// ListPages returns a website's pages without raw HTML, shallowest first.
func (s *PageStore) ListPages(ctx context.Context, websiteID string) ([]store.Page, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, website_id, url, title, content, depth, word_count, link_count,
			scraping_status, discovered_at, scraped_at, created_at, updated_at
		FROM pages
		WHERE website_id = $1
		ORDER BY depth ASC, created_at ASC`,
		websiteID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	pages := []store.Page{}
	for rows.Next() {
		var p store.Page
		if err := rows.Scan(
			&p.ID,
			&p.WebsiteID,
			&p.URL,
			&p.Title,
			&p.Content,
			&p.Depth,
			&p.WordCount,
			&p.LinkCount,
			&p.ScrapingStatus,
			&p.DiscoveredAt,
			&p.ScrapedAt,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}
