package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

type crawlRequest struct {
	MaxPages *int  `json:"maxPages"`
	MaxDepth *int  `json:"maxDepth"`
	Async    *bool `json:"async"`
}

type pagesResponse struct {
	WebsiteID  string       `json:"website_id"`
	TotalPages int          `json:"total_pages"`
	Pages      []store.Page `json:"pages"`
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	projectID := chi.URLParam(r, "id")
	websiteID := chi.URLParam(r, "websiteId")
	opts := s.deps.Crawls.ResolveOptions(valueOrDefault(req.MaxPages, 0), valueOrDefault(req.MaxDepth, 0))

	if valueOrDefault(req.Async, s.cfg.Crawl.Async) && s.deps.Queue != nil {
		s.enqueueCrawl(w, r, projectID, websiteID, opts)
		return
	}

	result, err := s.deps.Crawls.Start(r.Context(), projectID, websiteID, opts)
	if err != nil {
		if isClientError(err) {
			s.writeStoreError(w, r, err, "Website not found", "Failed to start crawling")
			return
		}
		s.logger.Error("crawl failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("website_id", websiteID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, envelope{
			Error:   "Failed to crawl website",
			Details: err.Error(),
		})
		return
	}
	writeMessage(w, http.StatusOK, result, "Website crawling completed successfully")
}

// enqueueCrawl claims the website on the request path so conflicts surface as
// 409, then hands the run to the worker pool.
func (s *Server) enqueueCrawl(w http.ResponseWriter, r *http.Request, projectID, websiteID string, opts crawler.RunOptions) {
	site, err := s.deps.Crawls.Begin(r.Context(), projectID, websiteID)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to start crawling")
		return
	}
	item := crawler.QueueItem{
		ProjectID: projectID,
		WebsiteID: websiteID,
		Options:   opts,
		Submitted: time.Now().UTC(),
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.deps.Queue.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue crawl failed", zap.String("website_id", websiteID), zap.Error(err))
		if rerr := s.deps.Crawls.Release(r.Context(), websiteID); rerr != nil {
			s.logger.Error("release crawl claim failed", zap.String("website_id", websiteID), zap.Error(rerr))
		}
		writeJSON(w, http.StatusServiceUnavailable, envelope{
			Error:   "Failed to start crawling",
			Details: err.Error(),
		})
		return
	}
	writeMessage(w, http.StatusAccepted, site, "Website crawl queued")
}

func (s *Server) crawlProgress(w http.ResponseWriter, r *http.Request) {
	site, err := s.projectWebsite(r)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to get crawl status")
		return
	}
	progress, err := s.deps.Websites.CrawlProgress(r.Context(), site.ID)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to get crawl status")
		return
	}
	writeData(w, http.StatusOK, progress)
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	site, err := s.projectWebsite(r)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to fetch pages")
		return
	}
	pages, err := s.deps.Pages.ListPages(r.Context(), site.ID)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to fetch pages")
		return
	}
	pages = nonNil(pages)
	writeData(w, http.StatusOK, pagesResponse{
		WebsiteID:  site.ID,
		TotalPages: len(pages),
		Pages:      pages,
	})
}
