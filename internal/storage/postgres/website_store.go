package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/database"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

const websiteColumns = `id, project_id, url, name, description, status, crawl_status,
	total_pages_discovered, pages_crawled, pages_failed, max_pages, max_depth,
	started_at, completed_at, created_date, updated_at`

// WebsiteStore implements store.WebsiteRepository.
type WebsiteStore struct {
	db     database.DB
	logger *zap.Logger
}

// NewWebsiteStore wraps a pool (or any database.DB).
func NewWebsiteStore(db database.DB, logger *zap.Logger) *WebsiteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsiteStore{db: db, logger: logger}
}

func scanWebsite(row rowScanner) (store.Website, error) {
	var w store.Website
	err := row.Scan(
		&w.ID,
		&w.ProjectID,
		&w.URL,
		&w.Name,
		&w.Description,
		&w.Status,
		&w.CrawlStatus,
		&w.TotalPagesDiscovered,
		&w.PagesCrawled,
		&w.PagesFailed,
		&w.MaxPages,
		&w.MaxDepth,
		&w.StartedAt,
		&w.CompletedAt,
		&w.CreatedDate,
		&w.UpdatedAt,
	)
	return w, err //nolint:wrapcheck // callers wrap with context
}

// websiteWriteError maps constraint violations raised by inserts/updates.
func websiteWriteError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return store.ErrNotFound
	case pgErrorCode(err) == codeUniqueViolation:
		return store.ErrDuplicateURL
	case pgErrorCode(err) == codeForeignKeyViolation:
		return fmt.Errorf("project: %w", store.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ListWebsites returns a project's websites ordered by created_date.
func (s *WebsiteStore) ListWebsites(ctx context.Context, projectID string) ([]store.Website, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+websiteColumns+` FROM websites WHERE project_id = $1 ORDER BY created_date ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query websites: %w", err)
	}
	defer rows.Close()

	websites := []store.Website{}
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan website: %w", err)
		}
		websites = append(websites, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate websites: %w", err)
	}
	return websites, nil
}

// GetWebsite loads one website.
func (s *WebsiteStore) GetWebsite(ctx context.Context, id string) (store.Website, error) {
	w, err := scanWebsite(s.db.QueryRow(ctx, `SELECT `+websiteColumns+` FROM websites WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Website{}, store.ErrNotFound
		}
		return store.Website{}, fmt.Errorf("get website: %w", err)
	}
	return w, nil
}

// CreateWebsite inserts a website in the pending crawl state.
func (s *WebsiteStore) CreateWebsite(ctx context.Context, in store.NewWebsite) (store.Website, error) {
	in = in.WithDefaults()
	query := `
		INSERT INTO websites (project_id, url, name, description, status, max_pages, max_depth, crawl_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING ` + websiteColumns
	w, err := scanWebsite(s.db.QueryRow(ctx, query,
		in.ProjectID,
		in.URL,
		in.Name,
		in.Description,
		string(in.Status),
		in.MaxPages,
		in.MaxDepth,
	))
	if err != nil {
		return store.Website{}, websiteWriteError("create website", err)
	}
	return w, nil
}

// UpdateWebsite applies a partial update of user-editable columns.
func (s *WebsiteStore) UpdateWebsite(ctx context.Context, id string, u store.WebsiteUpdate) (store.Website, error) {
	if u.Empty() {
		return store.Website{}, store.ErrNoFields
	}
	var b setBuilder
	if u.URL != nil {
		b.add("url", *u.URL)
	}
	if u.Name != nil {
		b.add("name", *u.Name)
	}
	if u.Description != nil {
		b.add("description", *u.Description)
	}
	if u.Status != nil {
		b.add("status", string(*u.Status))
	}
	if u.MaxPages != nil {
		b.add("max_pages", *u.MaxPages)
	}
	if u.MaxDepth != nil {
		b.add("max_depth", *u.MaxDepth)
	}
	b.raw("updated_at = CURRENT_TIMESTAMP")

	query, args := b.build("websites", id, websiteColumns)
	w, err := scanWebsite(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return store.Website{}, websiteWriteError("update website", err)
	}
	return w, nil
}

// DeleteWebsite removes a website; pages cascade at the storage layer.
func (s *WebsiteStore) DeleteWebsite(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM websites WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete website: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateCrawlStatus writes crawl_status and the timestamps its entry implies.
func (s *WebsiteStore) UpdateCrawlStatus(
	ctx context.Context,
	id string,
	status store.CrawlStatus,
	counters *store.CrawlCounters,
) (store.Website, error) {
	if !status.Valid() {
		return store.Website{}, fmt.Errorf("%w: unknown crawl status %q", store.ErrValidation, status)
	}
	var b setBuilder
	b.add("crawl_status", string(status))
	switch {
	case status == store.CrawlCrawling:
		b.raw("started_at = CURRENT_TIMESTAMP")
		b.raw("completed_at = NULL")
	case status.Terminal():
		b.raw("completed_at = CURRENT_TIMESTAMP")
	}
	if counters != nil {
		b.add("total_pages_discovered", counters.TotalPagesDiscovered)
		b.add("pages_crawled", counters.PagesCrawled)
		b.add("pages_failed", counters.PagesFailed)
	}
	b.raw("updated_at = CURRENT_TIMESTAMP")

	query, args := b.build("websites", id, websiteColumns)
	w, err := scanWebsite(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Website{}, store.ErrNotFound
		}
		return store.Website{}, fmt.Errorf("update crawl status: %w", err)
	}
	return w, nil
}

// BeginCrawl claims the website for a crawl with one conditional UPDATE so
// concurrent start requests cannot both succeed.
func (s *WebsiteStore) BeginCrawl(ctx context.Context, id string) (store.Website, error) {
	query := `
		UPDATE websites
		SET crawl_status = 'crawling',
			started_at = CURRENT_TIMESTAMP,
			completed_at = NULL,
			total_pages_discovered = 0,
			pages_crawled = 0,
			pages_failed = 0,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND crawl_status <> 'crawling'
		RETURNING ` + websiteColumns
	w, err := scanWebsite(s.db.QueryRow(ctx, query, id))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Website{}, fmt.Errorf("begin crawl: %w", err)
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM websites WHERE id = $1)`, id).Scan(&exists); err != nil {
		return store.Website{}, fmt.Errorf("check website exists: %w", err)
	}
	if !exists {
		return store.Website{}, store.ErrNotFound
	}
	return store.Website{}, store.ErrCrawlInProgress
}

// UpdateCrawlCounters overwrites the aggregate counters mid-crawl.
func (s *WebsiteStore) UpdateCrawlCounters(ctx context.Context, id string, c store.CrawlCounters) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE websites
		SET total_pages_discovered = $1, pages_crawled = $2, pages_failed = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4`,
		c.TotalPagesDiscovered, c.PagesCrawled, c.PagesFailed, id,
	)
	if err != nil {
		return fmt.Errorf("update crawl counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CrawlProgress joins the website row with its per-status page counts.
func (s *WebsiteStore) CrawlProgress(ctx context.Context, id string) (store.CrawlProgress, error) {
	query := `
		SELECT w.id, w.url, w.crawl_status,
			w.total_pages_discovered, w.pages_crawled, w.pages_failed,
			w.max_pages, w.max_depth, w.started_at, w.completed_at,
			COUNT(p.id) FILTER (WHERE p.scraping_status = 'pending'),
			COUNT(p.id) FILTER (WHERE p.scraping_status = 'crawled'),
			COUNT(p.id) FILTER (WHERE p.scraping_status = 'failed'),
			COUNT(p.id) FILTER (WHERE p.scraping_status = 'processing'),
			COUNT(p.id) FILTER (WHERE p.scraping_status = 'chunked'),
			COUNT(p.id) FILTER (WHERE p.scraping_status = 'vectorized')
		FROM websites w
		LEFT JOIN pages p ON p.website_id = w.id
		WHERE w.id = $1
		GROUP BY w.id`
	var pr store.CrawlProgress
	err := s.db.QueryRow(ctx, query, id).Scan(
		&pr.WebsiteID,
		&pr.URL,
		&pr.CrawlStatus,
		&pr.Counters.TotalPagesDiscovered,
		&pr.Counters.PagesCrawled,
		&pr.Counters.PagesFailed,
		&pr.MaxPages,
		&pr.MaxDepth,
		&pr.StartedAt,
		&pr.CompletedAt,
		&pr.Pages.Pending,
		&pr.Pages.Crawled,
		&pr.Pages.Failed,
		&pr.Pages.Processing,
		&pr.Pages.Chunked,
		&pr.Pages.Vectorized,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlProgress{}, store.ErrNotFound
		}
		return store.CrawlProgress{}, fmt.Errorf("crawl progress: %w", err)
	}
	pr.ProgressPercent = store.ProgressPercent(pr.Counters)
	return pr, nil
}

// WebsiteURLExists is the duplicate check behind the (project_id, url)
// uniqueness rule.
func (s *WebsiteStore) WebsiteURLExists(ctx context.Context, projectID, url, excludeID string) (bool, error) {
	query := `SELECT COUNT(*) FROM websites WHERE project_id = $1 AND url = $2`
	args := []any{projectID, url}
	if excludeID != "" {
		query += ` AND id <> $3`
		args = append(args, excludeID)
	}
	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check duplicate website: %w", err)
	}
	return n > 0, nil
}

// WebsiteStats counts websites by status, optionally for one project.
func (s *WebsiteStore) WebsiteStats(ctx context.Context, projectID string) (store.WebsiteStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'inactive'),
			COUNT(*) FILTER (WHERE status = 'pending_review')
		FROM websites`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	var st store.WebsiteStats
	if err := s.db.QueryRow(ctx, query, args...).Scan(&st.Total, &st.Active, &st.Inactive, &st.PendingReview); err != nil {
		return store.WebsiteStats{}, fmt.Errorf("website stats: %w", err)
	}
	return st, nil
}
