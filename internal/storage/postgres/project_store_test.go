package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

var projectColumnNames = []string{
	"id", "name", "customer", "created_date", "project_start_date", "project_owner",
	"hubspot_hubs", "status", "description", "updated_at",
}

func projectRow(rows *pgxmock.Rows, id, name string, hubs any, status store.ProjectStatus) *pgxmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, name, "Acme", now, (*time.Time)(nil), "dana",
		hubs, status, (*string)(nil), now,
	)
}

func TestProjectStoreListParsesHubs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(projectColumnNames)
	projectRow(rows, "p1", "Website relaunch", "{marketing_hub,sales_hub}", store.ProjectActive)
	projectRow(rows, "p2", "CRM import", []string{"service_hub"}, store.ProjectPending)
	mock.ExpectQuery("SELECT .* FROM projects ORDER BY created_date DESC").WillReturnRows(rows)

	s := NewProjectStore(mock, zap.NewNop())
	got, err := s.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []store.HubTag{store.HubMarketing, store.HubSales}, got[0].HubspotHubs)
	require.Equal(t, []store.HubTag{store.HubService}, got[1].HubspotHubs)
	require.Equal(t, store.ProjectPending, got[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStoreListEmptyIsNotNil(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .* FROM projects").WillReturnRows(pgxmock.NewRows(projectColumnNames))

	got, err := NewProjectStore(mock, nil).ListProjects(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestProjectStoreGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .* FROM projects WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(projectColumnNames))

	_, err = NewProjectStore(mock, nil).GetProject(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStoreCreateDefaultsStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	in := store.NewProject{
		Name:         "Portal setup",
		Customer:     "Acme",
		ProjectOwner: "dana",
		HubspotHubs:  []store.HubTag{store.HubContent},
	}
	mock.ExpectQuery("INSERT INTO projects").
		WithArgs(in.Name, in.Customer, in.ProjectOwner, in.ProjectStartDate, []string{"content_hub"}, "pending", in.Description).
		WillReturnRows(projectRow(pgxmock.NewRows(projectColumnNames), "p1", in.Name, []string{"content_hub"}, store.ProjectPending))

	got, err := NewProjectStore(mock, nil).CreateProject(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "p1", got.ID)
	require.Equal(t, store.ProjectPending, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStoreUpdateBuildsPartialSet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	name := "Renamed"
	status := store.ProjectOnHold
	mock.ExpectQuery(`UPDATE projects SET name = \$1, status = \$2, updated_at = CURRENT_TIMESTAMP WHERE id = \$3`).
		WithArgs("Renamed", "on_hold", "p1").
		WillReturnRows(projectRow(pgxmock.NewRows(projectColumnNames), "p1", name, nil, status))

	got, err := NewProjectStore(mock, nil).UpdateProject(context.Background(), "p1", store.ProjectUpdate{
		Name:   &name,
		Status: &status,
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)
	require.Equal(t, []store.HubTag{}, got.HubspotHubs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStoreUpdateEmptyIsValidationError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewProjectStore(mock, nil).UpdateProject(context.Background(), "p1", store.ProjectUpdate{})
	require.ErrorIs(t, err, store.ErrNoFields)
	require.ErrorIs(t, err, store.ErrValidation)
	require.EqualError(t, err, "validation failed: No fields to update")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStoreUpdateMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	name := "x"
	mock.ExpectQuery("UPDATE projects").
		WithArgs("x", "nope").
		WillReturnRows(pgxmock.NewRows(projectColumnNames))

	_, err = NewProjectStore(mock, nil).UpdateProject(context.Background(), "nope", store.ProjectUpdate{Name: &name})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProjectStoreDeleteReportsRowsAffected(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM projects").WithArgs("p1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM projects").WithArgs("p2").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	s := NewProjectStore(mock, nil)
	ok, err := s.DeleteProject(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.DeleteProject(context.Background(), "p2")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStoreByCustomerEscapesPattern(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("WHERE customer ILIKE \\$1").
		WithArgs(`%50\%\_off%`).
		WillReturnRows(pgxmock.NewRows(projectColumnNames))

	got, err := NewProjectStore(mock, nil).ListProjectsByCustomer(context.Background(), "50%_off")
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	t.Parallel()

	require.Equal(t, `%50\%\_off%`, containsPattern("50%_off"))
	require.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}

func TestProjectStoreStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM projects`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery("GROUP BY status").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("active", int64(2)).
			AddRow("pending", int64(1)))
	mock.ExpectQuery("UNNEST\\(hubspot_hubs\\)").
		WillReturnRows(pgxmock.NewRows([]string{"hub", "count"}).
			AddRow("sales_hub", int64(2)))

	stats, err := NewProjectStore(mock, nil).ProjectStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Total)
	require.Equal(t, int64(2), stats.ByStatus[store.ProjectActive])
	require.Equal(t, int64(1), stats.ByStatus[store.ProjectPending])
	require.Equal(t, int64(2), stats.ByHub[store.HubSales])
	require.NoError(t, mock.ExpectationsWereMet())
}
