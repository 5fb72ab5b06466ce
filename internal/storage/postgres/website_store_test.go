package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

var websiteColumnNames = []string{
	"id", "project_id", "url", "name", "description", "status", "crawl_status",
	"total_pages_discovered", "pages_crawled", "pages_failed", "max_pages", "max_depth",
	"started_at", "completed_at", "created_date", "updated_at",
}

func websiteRows(id string, crawl store.CrawlStatus, counters store.CrawlCounters) *pgxmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(websiteColumnNames).AddRow(
		id, "p1", "https://example.com", (*string)(nil), (*string)(nil),
		store.WebsiteActive, crawl,
		counters.TotalPagesDiscovered, counters.PagesCrawled, counters.PagesFailed,
		30, 3,
		&now, (*time.Time)(nil), now, now,
	)
}

func TestWebsiteStoreCreateAppliesDefaults(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO websites").
		WithArgs("p1", "https://example.com", (*string)(nil), (*string)(nil), "active", 30, 3).
		WillReturnRows(websiteRows("w1", store.CrawlPending, store.CrawlCounters{}))

	got, err := NewWebsiteStore(mock, nil).CreateWebsite(context.Background(), store.NewWebsite{
		ProjectID: "p1",
		URL:       "https://example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "w1", got.ID)
	require.Equal(t, store.CrawlPending, got.CrawlStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebsiteStoreCreateMapsConstraintErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		want error
	}{
		{name: "duplicate url", code: codeUniqueViolation, want: store.ErrDuplicateURL},
		{name: "missing project", code: codeForeignKeyViolation, want: store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery("INSERT INTO websites").
				WithArgs("p1", "https://example.com",
					pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(&pgconn.PgError{Code: tt.code})

			_, err = NewWebsiteStore(mock, nil).CreateWebsite(context.Background(), store.NewWebsite{
				ProjectID: "p1",
				URL:       "https://example.com",
			})
			require.ErrorIs(t, err, tt.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWebsiteStoreUpdateEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWebsiteStore(mock, nil).UpdateWebsite(context.Background(), "w1", store.WebsiteUpdate{})
	require.ErrorIs(t, err, store.ErrNoFields)
}

func TestWebsiteStoreUpdateCrawlStatusStampsTimestamps(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	counters := store.CrawlCounters{TotalPagesDiscovered: 4, PagesCrawled: 3, PagesFailed: 1}
	mock.ExpectQuery(`UPDATE websites SET crawl_status = \$1, completed_at = CURRENT_TIMESTAMP, ` +
		`total_pages_discovered = \$2, pages_crawled = \$3, pages_failed = \$4`).
		WithArgs("completed", 4, 3, 1, "w1").
		WillReturnRows(websiteRows("w1", store.CrawlCompleted, counters))

	got, err := NewWebsiteStore(mock, nil).UpdateCrawlStatus(context.Background(), "w1", store.CrawlCompleted, &counters)
	require.NoError(t, err)
	require.Equal(t, store.CrawlCompleted, got.CrawlStatus)
	require.Equal(t, 3, got.PagesCrawled)

	mock.ExpectQuery(`SET crawl_status = \$1, started_at = CURRENT_TIMESTAMP, completed_at = NULL`).
		WithArgs("crawling", "w1").
		WillReturnRows(websiteRows("w1", store.CrawlCrawling, store.CrawlCounters{}))
	_, err = NewWebsiteStore(mock, nil).UpdateCrawlStatus(context.Background(), "w1", store.CrawlCrawling, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebsiteStoreUpdateCrawlStatusRejectsUnknown(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWebsiteStore(mock, nil).UpdateCrawlStatus(context.Background(), "w1", "bogus", nil)
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestWebsiteStoreBeginCrawl(t *testing.T) {
	t.Parallel()

	t.Run("claims idle website", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`WHERE id = \$1 AND crawl_status <> 'crawling'`).
			WithArgs("w1").
			WillReturnRows(websiteRows("w1", store.CrawlCrawling, store.CrawlCounters{}))

		got, err := NewWebsiteStore(mock, nil).BeginCrawl(context.Background(), "w1")
		require.NoError(t, err)
		require.Equal(t, store.CrawlCrawling, got.CrawlStatus)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already crawling", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("UPDATE websites").WithArgs("w1").WillReturnRows(pgxmock.NewRows(websiteColumnNames))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("w1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		_, err = NewWebsiteStore(mock, nil).BeginCrawl(context.Background(), "w1")
		require.ErrorIs(t, err, store.ErrCrawlInProgress)
		require.ErrorIs(t, err, store.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing website", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("UPDATE websites").WithArgs("nope").WillReturnRows(pgxmock.NewRows(websiteColumnNames))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("nope").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		_, err = NewWebsiteStore(mock, nil).BeginCrawl(context.Background(), "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestWebsiteStoreUpdateCrawlCountersMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE websites").
		WithArgs(2, 1, 0, "w1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewWebsiteStore(mock, nil).UpdateCrawlCounters(context.Background(), "w1",
		store.CrawlCounters{TotalPagesDiscovered: 2, PagesCrawled: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWebsiteStoreCrawlProgress(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("LEFT JOIN pages").
		WithArgs("w1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "crawl_status", "d", "c", "f", "mp", "md", "s", "e",
			"pending", "crawled", "failed", "processing", "chunked", "vectorized",
		}).AddRow(
			"w1", "https://example.com", store.CrawlCrawling, 8, 5, 1, 10, 2, &started, (*time.Time)(nil),
			0, 5, 1, 0, 0, 0,
		))

	got, err := NewWebsiteStore(mock, nil).CrawlProgress(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, 75, got.ProgressPercent)
	require.Equal(t, 5, got.Pages.Crawled)
	require.Equal(t, store.CrawlCrawling, got.CrawlStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebsiteStoreURLExists(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE project_id = \$1 AND url = \$2$`).
		WithArgs("p1", "https://example.com").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`AND id <> \$3`).
		WithArgs("p1", "https://example.com", "w1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))

	s := NewWebsiteStore(mock, nil)
	exists, err := s.WebsiteURLExists(context.Background(), "p1", "https://example.com", "")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.WebsiteURLExists(context.Background(), "p1", "https://example.com", "w1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebsiteStoreStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM websites WHERE project_id = \$1`).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"t", "a", "i", "p"}).
			AddRow(int64(3), int64(2), int64(0), int64(1)))

	got, err := NewWebsiteStore(mock, nil).WebsiteStats(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, store.WebsiteStats{Total: 3, Active: 2, PendingReview: 1}, got)
}
