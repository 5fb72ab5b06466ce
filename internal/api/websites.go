package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

type websiteRequest struct {
	URL         *string              `json:"url"`
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Status      *store.WebsiteStatus `json:"status"`
	MaxPages    *int                 `json:"max_pages"`
	MaxDepth    *int                 `json:"max_depth"`
}

// validate checks the optional fields shared by create and update and
// returns the client-facing message for the first problem found.
func (req websiteRequest) validate() string {
	if req.URL != nil && !store.ValidWebsiteURL(*req.URL) {
		return "Invalid URL format"
	}
	if req.Status != nil && !req.Status.Valid() {
		return "Invalid status"
	}
	if req.MaxPages != nil && *req.MaxPages < 1 {
		return "max_pages must be positive"
	}
	if req.MaxDepth != nil && *req.MaxDepth < 0 {
		return "max_depth must not be negative"
	}
	return ""
}

// projectWebsite loads websiteId and confirms it belongs to project id.
func (s *Server) projectWebsite(r *http.Request) (store.Website, error) {
	site, err := s.deps.Websites.GetWebsite(r.Context(), chi.URLParam(r, "websiteId"))
	if err != nil {
		return store.Website{}, err
	}
	if site.ProjectID != chi.URLParam(r, "id") {
		return store.Website{}, store.ErrNotFound
	}
	return site, nil
}

func (s *Server) listWebsites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.deps.Websites.ListWebsites(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to fetch websites")
		return
	}
	writeData(w, http.StatusOK, nonNil(sites))
}

func (s *Server) createWebsite(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	var req websiteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if trimmed(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if _, err := s.deps.Projects.GetProject(r.Context(), projectID); err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to create website")
		return
	}
	url := trimmed(req.URL)
	exists, err := s.deps.Websites.WebsiteURLExists(r.Context(), projectID, url, "")
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to create website")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "Website URL already exists for this project")
		return
	}
	nw := store.NewWebsite{
		ProjectID:   projectID,
		URL:         url,
		Name:        req.Name,
		Description: req.Description,
	}
	if req.Status != nil {
		nw.Status = *req.Status
	}
	if req.MaxPages != nil {
		nw.MaxPages = *req.MaxPages
	}
	if req.MaxDepth != nil {
		nw.MaxDepth = *req.MaxDepth
	}
	site, err := s.deps.Websites.CreateWebsite(r.Context(), nw)
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to create website")
		return
	}
	writeData(w, http.StatusCreated, site)
}

func (s *Server) websiteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Websites.WebsiteStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to fetch website stats")
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *Server) getWebsite(w http.ResponseWriter, r *http.Request) {
	site, err := s.projectWebsite(r)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to fetch website")
		return
	}
	writeData(w, http.StatusOK, site)
}

func (s *Server) updateWebsite(w http.ResponseWriter, r *http.Request) {
	var req websiteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	site, err := s.projectWebsite(r)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to update website")
		return
	}
	update := store.WebsiteUpdate{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		MaxPages:    req.MaxPages,
		MaxDepth:    req.MaxDepth,
	}
	if req.URL != nil {
		url := strings.TrimSpace(*req.URL)
		exists, err := s.deps.Websites.WebsiteURLExists(r.Context(), site.ProjectID, url, site.ID)
		if err != nil {
			s.writeStoreError(w, r, err, "Website not found", "Failed to update website")
			return
		}
		if exists {
			writeError(w, http.StatusConflict, "Website URL already exists for this project")
			return
		}
		update.URL = &url
	}
	updated, err := s.deps.Websites.UpdateWebsite(r.Context(), site.ID, update)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to update website")
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) deleteWebsite(w http.ResponseWriter, r *http.Request) {
	site, err := s.projectWebsite(r)
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to delete website")
		return
	}
	deleted, err := s.deps.Websites.DeleteWebsite(r.Context(), site.ID)
	if err == nil && !deleted {
		err = store.ErrNotFound
	}
	if err != nil {
		s.writeStoreError(w, r, err, "Website not found", "Failed to delete website")
		return
	}
	writeMessage(w, http.StatusOK, nil, "Website deleted successfully")
}

// isClientError reports whether err maps to a 4xx response.
func isClientError(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrValidation) ||
		errors.Is(err, store.ErrConflict)
}
