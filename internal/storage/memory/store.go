// Package memory provides in-process implementations of the onboarding
// repositories and the raw HTML blob store. The server falls back to them
// when no database is configured, and handler tests run against them.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type projectRow struct {
	seq int
	store.Project
}

type websiteRow struct {
	seq int
	store.Website
}

type pageRow struct {
	seq int
	store.Page
}

// Store implements store.ProjectRepository, store.WebsiteRepository and
// store.PageRepository in memory. Deleting a project removes its websites,
// and deleting a website removes its pages.
type Store struct {
	mu       sync.RWMutex
	ids      IDGenerator
	clock    Clock
	seq      int
	projects map[string]*projectRow
	websites map[string]*websiteRow
	pages    map[string]*pageRow
}

// NewStore constructs an empty Store.
func NewStore(ids IDGenerator, clock Clock) *Store {
	return &Store{
		ids:      ids,
		clock:    clock,
		projects: make(map[string]*projectRow),
		websites: make(map[string]*websiteRow),
		pages:    make(map[string]*pageRow),
	}
}

func (s *Store) next() int {
	s.seq++
	return s.seq
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func pageKey(websiteID, url string) string {
	return websiteID + "\x00" + url
}

func copyProject(p store.Project) store.Project {
	p.HubspotHubs = append([]store.HubTag{}, p.HubspotHubs...)
	return p
}

// ListProjects returns every project, newest first.
func (s *Store) ListProjects(_ context.Context) ([]store.Project, error) {
	return s.filterProjects(func(store.Project) bool { return true }), nil
}

func (s *Store) filterProjects(keep func(store.Project) bool) []store.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]*projectRow, 0, len(s.projects))
	for _, r := range s.projects {
		if keep(r.Project) {
			rows = append(rows, r)
		}
	}
	slices.SortFunc(rows, func(a, b *projectRow) int {
		if c := b.CreatedDate.Compare(a.CreatedDate); c != 0 {
			return c
		}
		return b.seq - a.seq
	})
	out := make([]store.Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, copyProject(r.Project))
	}
	return out
}

// GetProject returns store.ErrNotFound when id does not exist.
func (s *Store) GetProject(_ context.Context, id string) (store.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.projects[id]
	if !ok {
		return store.Project{}, store.ErrNotFound
	}
	return copyProject(r.Project), nil
}

// CreateProject stores a new project with pending status unless one is given.
func (s *Store) CreateProject(_ context.Context, in store.NewProject) (store.Project, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return store.Project{}, fmt.Errorf("create project: %w", err)
	}
	status := in.Status
	if status == "" {
		status = store.ProjectPending
	}
	now := s.now()
	p := store.Project{
		ID:               id,
		Name:             in.Name,
		Customer:         in.Customer,
		CreatedDate:      now,
		ProjectStartDate: in.ProjectStartDate,
		ProjectOwner:     in.ProjectOwner,
		HubspotHubs:      append([]store.HubTag{}, in.HubspotHubs...),
		Status:           status,
		Description:      in.Description,
		UpdatedAt:        now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[id] = &projectRow{seq: s.next(), Project: p}
	return copyProject(p), nil
}

// UpdateProject applies the non-nil fields of u.
func (s *Store) UpdateProject(_ context.Context, id string, u store.ProjectUpdate) (store.Project, error) {
	if u.Empty() {
		return store.Project{}, store.ErrNoFields
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.projects[id]
	if !ok {
		return store.Project{}, store.ErrNotFound
	}
	p := &r.Project
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Customer != nil {
		p.Customer = *u.Customer
	}
	if u.ProjectOwner != nil {
		p.ProjectOwner = *u.ProjectOwner
	}
	if u.ProjectStartDate != nil {
		start := *u.ProjectStartDate
		p.ProjectStartDate = &start
	}
	if u.HubspotHubs != nil {
		p.HubspotHubs = append([]store.HubTag{}, u.HubspotHubs...)
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Description != nil {
		desc := *u.Description
		p.Description = &desc
	}
	p.UpdatedAt = s.now()
	return copyProject(*p), nil
}

// DeleteProject removes the project together with its websites and pages.
func (s *Store) DeleteProject(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false, nil
	}
	delete(s.projects, id)
	for wid, w := range s.websites {
		if w.ProjectID == id {
			s.deleteWebsiteLocked(wid)
		}
	}
	return true, nil
}

// ListProjectsByStatus filters on status.
func (s *Store) ListProjectsByStatus(_ context.Context, status store.ProjectStatus) ([]store.Project, error) {
	return s.filterProjects(func(p store.Project) bool { return p.Status == status }), nil
}

// ListProjectsByCustomer matches customer names case-insensitively by substring.
func (s *Store) ListProjectsByCustomer(_ context.Context, customer string) ([]store.Project, error) {
	needle := strings.ToLower(customer)
	return s.filterProjects(func(p store.Project) bool {
		return strings.Contains(strings.ToLower(p.Customer), needle)
	}), nil
}

// ProjectStats counts projects overall, per status and per hub.
func (s *Store) ProjectStats(_ context.Context) (store.ProjectStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := store.ProjectStats{
		ByStatus: map[store.ProjectStatus]int64{},
		ByHub:    map[store.HubTag]int64{},
	}
	for _, r := range s.projects {
		stats.Total++
		stats.ByStatus[r.Status]++
		for _, h := range r.HubspotHubs {
			stats.ByHub[h]++
		}
	}
	return stats, nil
}

// ListWebsites returns a project's websites, oldest first.
func (s *Store) ListWebsites(_ context.Context, projectID string) ([]store.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]*websiteRow, 0)
	for _, w := range s.websites {
		if w.ProjectID == projectID {
			rows = append(rows, w)
		}
	}
	slices.SortFunc(rows, func(a, b *websiteRow) int {
		if c := a.CreatedDate.Compare(b.CreatedDate); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
	out := make([]store.Website, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Website)
	}
	return out, nil
}

// GetWebsite returns store.ErrNotFound when id does not exist.
func (s *Store) GetWebsite(_ context.Context, id string) (store.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.websites[id]
	if !ok {
		return store.Website{}, store.ErrNotFound
	}
	return w.Website, nil
}

func (s *Store) urlTakenLocked(projectID, url, excludeID string) bool {
	for id, w := range s.websites {
		if id != excludeID && w.ProjectID == projectID && w.URL == url {
			return true
		}
	}
	return false
}

// CreateWebsite stores a website in pending crawl state. The project must
// exist and must not already track the URL.
func (s *Store) CreateWebsite(_ context.Context, in store.NewWebsite) (store.Website, error) {
	in = in.WithDefaults()
	id, err := s.ids.NewID()
	if err != nil {
		return store.Website{}, fmt.Errorf("create website: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[in.ProjectID]; !ok {
		return store.Website{}, fmt.Errorf("project: %w", store.ErrNotFound)
	}
	if s.urlTakenLocked(in.ProjectID, in.URL, "") {
		return store.Website{}, store.ErrDuplicateURL
	}
	now := s.now()
	w := store.Website{
		ID:          id,
		ProjectID:   in.ProjectID,
		URL:         in.URL,
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		CrawlStatus: store.CrawlPending,
		MaxPages:    in.MaxPages,
		MaxDepth:    in.MaxDepth,
		CreatedDate: now,
		UpdatedAt:   now,
	}
	s.websites[id] = &websiteRow{seq: s.next(), Website: w}
	return w, nil
}

// UpdateWebsite applies the non-nil fields of u.
func (s *Store) UpdateWebsite(_ context.Context, id string, u store.WebsiteUpdate) (store.Website, error) {
	if u.Empty() {
		return store.Website{}, store.ErrNoFields
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.websites[id]
	if !ok {
		return store.Website{}, store.ErrNotFound
	}
	w := &r.Website
	if u.URL != nil {
		if s.urlTakenLocked(w.ProjectID, *u.URL, id) {
			return store.Website{}, store.ErrDuplicateURL
		}
		w.URL = *u.URL
	}
	if u.Name != nil {
		name := *u.Name
		w.Name = &name
	}
	if u.Description != nil {
		desc := *u.Description
		w.Description = &desc
	}
	if u.Status != nil {
		w.Status = *u.Status
	}
	if u.MaxPages != nil {
		w.MaxPages = *u.MaxPages
	}
	if u.MaxDepth != nil {
		w.MaxDepth = *u.MaxDepth
	}
	w.UpdatedAt = s.now()
	return *w, nil
}

// DeleteWebsite removes the website and its pages.
func (s *Store) DeleteWebsite(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.websites[id]; !ok {
		return false, nil
	}
	s.deleteWebsiteLocked(id)
	return true, nil
}

func (s *Store) deleteWebsiteLocked(id string) {
	delete(s.websites, id)
	for key, p := range s.pages {
		if p.WebsiteID == id {
			delete(s.pages, key)
		}
	}
}

// UpdateCrawlStatus moves the website to status and stamps its timestamps.
func (s *Store) UpdateCrawlStatus(
	_ context.Context,
	id string,
	status store.CrawlStatus,
	counters *store.CrawlCounters,
) (store.Website, error) {
	if !status.Valid() {
		return store.Website{}, fmt.Errorf("%w: unknown crawl status %q", store.ErrValidation, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.websites[id]
	if !ok {
		return store.Website{}, store.ErrNotFound
	}
	now := s.now()
	w := &r.Website
	w.CrawlStatus = status
	switch {
	case status == store.CrawlCrawling:
		w.StartedAt = &now
		w.CompletedAt = nil
	case status.Terminal():
		w.CompletedAt = &now
	}
	if counters != nil {
		applyCounters(w, *counters)
	}
	w.UpdatedAt = now
	return *w, nil
}

// BeginCrawl moves a website that is not crawling into crawling and resets
// its counters under the store lock.
func (s *Store) BeginCrawl(_ context.Context, id string) (store.Website, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.websites[id]
	if !ok {
		return store.Website{}, store.ErrNotFound
	}
	if r.CrawlStatus == store.CrawlCrawling {
		return store.Website{}, store.ErrCrawlInProgress
	}
	now := s.now()
	w := &r.Website
	w.CrawlStatus = store.CrawlCrawling
	w.StartedAt = &now
	w.CompletedAt = nil
	applyCounters(w, store.CrawlCounters{})
	w.UpdatedAt = now
	return *w, nil
}

// UpdateCrawlCounters overwrites the counters without touching status.
func (s *Store) UpdateCrawlCounters(_ context.Context, id string, c store.CrawlCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.websites[id]
	if !ok {
		return store.ErrNotFound
	}
	applyCounters(&r.Website, c)
	r.UpdatedAt = s.now()
	return nil
}

func applyCounters(w *store.Website, c store.CrawlCounters) {
	w.TotalPagesDiscovered = c.TotalPagesDiscovered
	w.PagesCrawled = c.PagesCrawled
	w.PagesFailed = c.PagesFailed
}

// CrawlProgress projects the website's crawl state and per-status page counts.
func (s *Store) CrawlProgress(_ context.Context, id string) (store.CrawlProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.websites[id]
	if !ok {
		return store.CrawlProgress{}, store.ErrNotFound
	}
	counters := store.CrawlCounters{
		TotalPagesDiscovered: r.TotalPagesDiscovered,
		PagesCrawled:         r.PagesCrawled,
		PagesFailed:          r.PagesFailed,
	}
	progress := store.CrawlProgress{
		WebsiteID:       r.ID,
		URL:             r.URL,
		CrawlStatus:     r.CrawlStatus,
		Counters:        counters,
		MaxPages:        r.MaxPages,
		MaxDepth:        r.MaxDepth,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		ProgressPercent: store.ProgressPercent(counters),
	}
	for _, p := range s.pages {
		if p.WebsiteID != id {
			continue
		}
		switch p.ScrapingStatus {
		case store.PagePending:
			progress.Pages.Pending++
		case store.PageCrawled:
			progress.Pages.Crawled++
		case store.PageFailed:
			progress.Pages.Failed++
		case store.PageProcessing:
			progress.Pages.Processing++
		case store.PageChunked:
			progress.Pages.Chunked++
		case store.PageVectorized:
			progress.Pages.Vectorized++
		}
	}
	return progress, nil
}

// WebsiteURLExists reports whether projectID already tracks url.
func (s *Store) WebsiteURLExists(_ context.Context, projectID, url, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.urlTakenLocked(projectID, url, excludeID), nil
}

// WebsiteStats counts websites by status.
func (s *Store) WebsiteStats(_ context.Context, projectID string) (store.WebsiteStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats store.WebsiteStats
	for _, w := range s.websites {
		if projectID != "" && w.ProjectID != projectID {
			continue
		}
		stats.Total++
		switch w.Status {
		case store.WebsiteActive:
			stats.Active++
		case store.WebsiteInactive:
			stats.Inactive++
		case store.WebsitePendingReview:
			stats.PendingReview++
		}
	}
	return stats, nil
}

// UpsertPage inserts the page or replaces the content of the existing
// (website_id, url) row, keeping its ID and creation time.
func (s *Store) UpsertPage(_ context.Context, p store.Page) error {
	if p.ScrapingStatus == "" {
		p.ScrapingStatus = store.PageCrawled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.websites[p.WebsiteID]; !ok {
		return fmt.Errorf("website: %w", store.ErrNotFound)
	}
	now := s.now()
	key := pageKey(p.WebsiteID, p.URL)
	if existing, ok := s.pages[key]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		p.DiscoveredAt = existing.DiscoveredAt
		p.UpdatedAt = now
		existing.Page = p
		return nil
	}
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	s.pages[key] = &pageRow{seq: s.next(), Page: p}
	return nil
}

// ListPages returns a website's pages ordered by depth then creation time.
// RawHTML is omitted to match the postgres listing.
func (s *Store) ListPages(_ context.Context, websiteID string) ([]store.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]*pageRow, 0)
	for _, p := range s.pages {
		if p.WebsiteID == websiteID {
			rows = append(rows, p)
		}
	}
	slices.SortFunc(rows, func(a, b *pageRow) int {
		if a.Depth != b.Depth {
			return a.Depth - b.Depth
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
	out := make([]store.Page, 0, len(rows))
	for _, r := range rows {
		p := r.Page
		p.RawHTML = nil
		out = append(out, p)
	}
	return out, nil
}

var (
	_ store.ProjectRepository = (*Store)(nil)
	_ store.WebsiteRepository = (*Store)(nil)
	_ store.PageRepository    = (*Store)(nil)
)
