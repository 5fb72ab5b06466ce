package store

import (
	"context"
	"time"
)

// ProjectStatus mirrors the projects.status column.
type ProjectStatus string

// Project lifecycle values.
const (
	ProjectPending   ProjectStatus = "pending"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPending, ProjectActive, ProjectCompleted, ProjectOnHold, ProjectCancelled:
		return true
	}
	return false
}

// ProjectStatuses lists every status in display order.
var ProjectStatuses = []ProjectStatus{
	ProjectPending,
	ProjectActive,
	ProjectCompleted,
	ProjectOnHold,
	ProjectCancelled,
}

// Project is one client onboarding engagement.
type Project struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Customer         string        `json:"customer"`
	CreatedDate      time.Time     `json:"created_date"`
	ProjectStartDate *time.Time    `json:"project_start_date,omitempty"`
	ProjectOwner     string        `json:"project_owner"`
	HubspotHubs      []HubTag      `json:"hubspot_hubs"`
	Status           ProjectStatus `json:"status"`
	Description      *string       `json:"description,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewProject carries the fields accepted on creation. Name, Customer and
// ProjectOwner are required; the caller validates them.
type NewProject struct {
	Name             string
	Customer         string
	ProjectOwner     string
	ProjectStartDate *time.Time
	HubspotHubs      []HubTag
	Status           ProjectStatus
	Description      *string
}

// ProjectUpdate is a partial update; nil fields are left untouched.
type ProjectUpdate struct {
	Name             *string
	Customer         *string
	ProjectOwner     *string
	ProjectStartDate *time.Time
	HubspotHubs      []HubTag
	Status           *ProjectStatus
	Description      *string
}

// Empty reports whether the update carries no fields.
func (u ProjectUpdate) Empty() bool {
	return u.Name == nil && u.Customer == nil && u.ProjectOwner == nil &&
		u.ProjectStartDate == nil && u.HubspotHubs == nil && u.Status == nil &&
		u.Description == nil
}

// ProjectStats aggregates project counts for dashboards.
type ProjectStats struct {
	Total    int64                   `json:"total"`
	ByStatus map[ProjectStatus]int64 `json:"by_status"`
	ByHub    map[HubTag]int64        `json:"by_hub"`
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	// ListProjects returns every project, newest first.
	ListProjects(ctx context.Context) ([]Project, error)
	// GetProject returns ErrNotFound when id does not exist.
	GetProject(ctx context.Context, id string) (Project, error)
	CreateProject(ctx context.Context, p NewProject) (Project, error)
	// UpdateProject applies the non-nil fields and refreshes updated_at. It
	// returns ErrNoFields for an empty update and ErrNotFound for a missing row.
	UpdateProject(ctx context.Context, id string, u ProjectUpdate) (Project, error)
	// DeleteProject reports whether a row was removed.
	DeleteProject(ctx context.Context, id string) (bool, error)
	ListProjectsByStatus(ctx context.Context, status ProjectStatus) ([]Project, error)
	// ListProjectsByCustomer matches customer names case-insensitively by substring.
	ListProjectsByCustomer(ctx context.Context, customer string) ([]Project, error)
	ProjectStats(ctx context.Context) (ProjectStats, error)
}
