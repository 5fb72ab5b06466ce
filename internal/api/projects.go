package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

type projectRequest struct {
	Name             *string              `json:"name"`
	Customer         *string              `json:"customer"`
	ProjectOwner     *string              `json:"project_owner"`
	ProjectStartDate *string              `json:"project_start_date"`
	HubspotHubs      []store.HubTag       `json:"hubspot_hubs"`
	Status           *store.ProjectStatus `json:"status"`
	Description      *string              `json:"description"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func (req projectRequest) startDate() (*time.Time, error) {
	if req.ProjectStartDate == nil || strings.TrimSpace(*req.ProjectStartDate) == "" {
		return nil, nil
	}
	t, err := parseDate(*req.ProjectStartDate)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (req projectRequest) validHubs() bool {
	for _, h := range req.HubspotHubs {
		if !h.Valid() {
			return false
		}
	}
	return true
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	var (
		projects []store.Project
		err      error
	)
	q := r.URL.Query()
	switch {
	case q.Get("status") != "":
		status := store.ProjectStatus(q.Get("status"))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		projects, err = s.deps.Projects.ListProjectsByStatus(r.Context(), status)
	case q.Get("customer") != "":
		projects, err = s.deps.Projects.ListProjectsByCustomer(r.Context(), q.Get("customer"))
	default:
		projects, err = s.deps.Projects.ListProjects(r.Context())
	}
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to fetch projects")
		return
	}
	writeData(w, http.StatusOK, nonNil(projects))
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if trimmed(req.Name) == "" || trimmed(req.Customer) == "" || trimmed(req.ProjectOwner) == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: name, customer, project_owner")
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if !req.validHubs() {
		writeError(w, http.StatusBadRequest, "Invalid hubspot_hubs value")
		return
	}
	start, err := req.startDate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid project_start_date")
		return
	}
	np := store.NewProject{
		Name:             trimmed(req.Name),
		Customer:         trimmed(req.Customer),
		ProjectOwner:     trimmed(req.ProjectOwner),
		ProjectStartDate: start,
		HubspotHubs:      req.HubspotHubs,
		Description:      req.Description,
	}
	if req.Status != nil {
		np.Status = *req.Status
	}
	project, err := s.deps.Projects.CreateProject(r.Context(), np)
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to create project")
		return
	}
	writeData(w, http.StatusCreated, project)
}

func (s *Server) projectStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Projects.ProjectStats(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to fetch project stats")
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.deps.Projects.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to fetch project")
		return
	}
	writeData(w, http.StatusOK, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if !req.validHubs() {
		writeError(w, http.StatusBadRequest, "Invalid hubspot_hubs value")
		return
	}
	start, err := req.startDate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid project_start_date")
		return
	}
	update := store.ProjectUpdate{
		Name:             req.Name,
		Customer:         req.Customer,
		ProjectOwner:     req.ProjectOwner,
		ProjectStartDate: start,
		HubspotHubs:      req.HubspotHubs,
		Status:           req.Status,
		Description:      req.Description,
	}
	project, err := s.deps.Projects.UpdateProject(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to update project")
		return
	}
	writeData(w, http.StatusOK, project)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.deps.Projects.DeleteProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, "Project not found", "Failed to delete project")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeMessage(w, http.StatusOK, nil, "Project deleted successfully")
}
