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

const projectColumns = `id, name, customer, created_date, project_start_date, project_owner,
	hubspot_hubs, status, description, updated_at`

// ProjectStore implements store.ProjectRepository.
type ProjectStore struct {
	db     database.DB
	logger *zap.Logger
}

// NewProjectStore wraps a pool (or any database.DB, e.g. pgxmock in tests).
func NewProjectStore(db database.DB, logger *zap.Logger) *ProjectStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectStore{db: db, logger: logger}
}

func (s *ProjectStore) scan(row rowScanner) (store.Project, error) {
	var (
		p    store.Project
		hubs any
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Customer,
		&p.CreatedDate,
		&p.ProjectStartDate,
		&p.ProjectOwner,
		&hubs,
		&p.Status,
		&p.Description,
		&p.UpdatedAt,
	); err != nil {
		return store.Project{}, err //nolint:wrapcheck // callers wrap with context
	}
	p.HubspotHubs = store.ParseHubs(hubs, s.logger)
	return p, nil
}

func (s *ProjectStore) list(ctx context.Context, query string, args ...any) ([]store.Project, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []store.Project{}
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// ListProjects returns all projects ordered by created_date descending.
func (s *ProjectStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	return s.list(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_date DESC`)
}

// GetProject loads one project.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (store.Project, error) {
	row := s.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := s.scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Project{}, store.ErrNotFound
		}
		return store.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// CreateProject inserts a project and returns the stored row.
func (s *ProjectStore) CreateProject(ctx context.Context, in store.NewProject) (store.Project, error) {
	status := in.Status
	if status == "" {
		status = store.ProjectPending
	}
	query := `
		INSERT INTO projects (name, customer, project_owner, project_start_date, hubspot_hubs, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + projectColumns
	row := s.db.QueryRow(ctx, query,
		in.Name,
		in.Customer,
		in.ProjectOwner,
		in.ProjectStartDate,
		store.HubStrings(in.HubspotHubs),
		string(status),
		in.Description,
	)
	p, err := s.scan(row)
	if err != nil {
		return store.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// UpdateProject applies a partial update. Only supplied fields are written;
// updated_at is always refreshed.
func (s *ProjectStore) UpdateProject(ctx context.Context, id string, u store.ProjectUpdate) (store.Project, error) {
	if u.Empty() {
		return store.Project{}, store.ErrNoFields
	}
	var b setBuilder
	if u.Name != nil {
		b.add("name", *u.Name)
	}
	if u.Customer != nil {
		b.add("customer", *u.Customer)
	}
	if u.ProjectOwner != nil {
		b.add("project_owner", *u.ProjectOwner)
	}
	if u.ProjectStartDate != nil {
		b.add("project_start_date", *u.ProjectStartDate)
	}
	if u.HubspotHubs != nil {
		b.add("hubspot_hubs", store.HubStrings(u.HubspotHubs))
	}
	if u.Status != nil {
		b.add("status", string(*u.Status))
	}
	if u.Description != nil {
		b.add("description", *u.Description)
	}
	b.raw("updated_at = CURRENT_TIMESTAMP")

	query, args := b.build("projects", id, projectColumns)
	p, err := s.scan(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Project{}, store.ErrNotFound
		}
		return store.Project{}, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project; websites cascade at the storage layer.
func (s *ProjectStore) DeleteProject(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListProjectsByStatus filters on status.
func (s *ProjectStore) ListProjectsByStatus(ctx context.Context, status store.ProjectStatus) ([]store.Project, error) {
	return s.list(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE status = $1 ORDER BY created_date DESC`,
		string(status),
	)
}

// ListProjectsByCustomer matches customer names by case-insensitive substring.
func (s *ProjectStore) ListProjectsByCustomer(ctx context.Context, customer string) ([]store.Project, error) {
	return s.list(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE customer ILIKE $1 ORDER BY created_date DESC`,
		containsPattern(customer),
	)
}

// ProjectStats runs three independent aggregate queries; the results are
// for display and need not be mutually consistent.
func (s *ProjectStore) ProjectStats(ctx context.Context) (store.ProjectStats, error) {
	stats := store.ProjectStats{
		ByStatus: map[store.ProjectStatus]int64{},
		ByHub:    map[store.HubTag]int64{},
	}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&stats.Total); err != nil {
		return store.ProjectStats{}, fmt.Errorf("count projects: %w", err)
	}

	if err := s.countInto(ctx,
		`SELECT status::text, COUNT(*) FROM projects GROUP BY status`,
		func(key string, n int64) { stats.ByStatus[store.ProjectStatus(key)] = n },
	); err != nil {
		return store.ProjectStats{}, fmt.Errorf("count projects by status: %w", err)
	}

	if err := s.countInto(ctx,
		`SELECT hub::text, COUNT(*) FROM projects, UNNEST(hubspot_hubs) AS hub GROUP BY hub`,
		func(key string, n int64) { stats.ByHub[store.HubTag(key)] = n },
	); err != nil {
		return store.ProjectStats{}, fmt.Errorf("count projects by hub: %w", err)
	}
	return stats, nil
}

func (s *ProjectStore) countInto(ctx context.Context, query string, put func(string, int64)) error {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return err //nolint:wrapcheck // wrapped by ProjectStats
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err //nolint:wrapcheck // wrapped by ProjectStats
		}
		put(key, n)
	}
	return rows.Err() //nolint:wrapcheck // wrapped by ProjectStats
}
