package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressPercent(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, ProgressPercent(CrawlCounters{}))
	require.Equal(t, 0, ProgressPercent(CrawlCounters{PagesCrawled: 4}))
	require.Equal(t, 50, ProgressPercent(CrawlCounters{TotalPagesDiscovered: 10, PagesCrawled: 4, PagesFailed: 1}))
	require.Equal(t, 33, ProgressPercent(CrawlCounters{TotalPagesDiscovered: 3, PagesCrawled: 1}))
	require.Equal(t, 100, ProgressPercent(CrawlCounters{TotalPagesDiscovered: 2, PagesCrawled: 3}))
}

func TestCrawlStatusTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, CrawlCompleted.Terminal())
	require.True(t, CrawlFailed.Terminal())
	require.False(t, CrawlCrawling.Terminal())
	require.False(t, CrawlPaused.Terminal())
	require.True(t, CrawlPaused.Valid())
	require.False(t, CrawlStatus("stopped").Valid())
}

func TestNewWebsiteDefaults(t *testing.T) {
	t.Parallel()

	w := NewWebsite{ProjectID: "p", URL: "https://example.com"}.WithDefaults()
	require.Equal(t, WebsiteActive, w.Status)
	require.Equal(t, DefaultWebsiteMaxPages, w.MaxPages)
	require.Equal(t, DefaultWebsiteMaxDepth, w.MaxDepth)

	custom := NewWebsite{Status: WebsiteInactive, MaxPages: 5, MaxDepth: 1}.WithDefaults()
	require.Equal(t, WebsiteInactive, custom.Status)
	require.Equal(t, 5, custom.MaxPages)
	require.Equal(t, 1, custom.MaxDepth)
}

func TestUpdatesEmpty(t *testing.T) {
	t.Parallel()

	require.True(t, ProjectUpdate{}.Empty())
	name := "x"
	require.False(t, ProjectUpdate{Name: &name}.Empty())
	require.False(t, ProjectUpdate{HubspotHubs: []HubTag{}}.Empty())
	require.True(t, WebsiteUpdate{}.Empty())
	require.False(t, WebsiteUpdate{Name: &name}.Empty())
}
