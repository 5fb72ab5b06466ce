package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/database"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

// mockBrowser returns a Browser whose connector hands out one pgxmock
// connection and records the database it was asked for.
func mockBrowser(t *testing.T) (*Browser, pgxmock.PgxConnIface, *[]string) {
	t.Helper()

	mock, err := pgxmock.NewConn()
	require.NoError(t, err)

	var targets []string
	cfg := database.Config{Host: "localhost", Port: 5432, Name: "hubspot_onboarding"}
	b := NewBrowserWithConnector(cfg, func(_ context.Context, c database.Config) (Conn, error) {
		targets = append(targets, c.Name)
		return mock, nil
	}, zap.NewNop())
	return b, mock, &targets
}

func TestBrowserListDatabasesUsesMaintenanceDB(t *testing.T) {
	t.Parallel()

	b, mock, targets := mockBrowser(t)
	mock.ExpectQuery("FROM pg_database d").
		WillReturnRows(pgxmock.NewRows([]string{"name", "size", "owner", "encoding", "collate"}).
			AddRow("hubspot_onboarding", "8 MB", "postgres", "UTF8", "en_US.utf8"))
	mock.ExpectClose()

	got, err := b.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"postgres"}, *targets)
	require.Len(t, got, 1)
	require.Equal(t, "hubspot_onboarding", got[0].Name)
	require.Equal(t, "UTF8", got[0].Encoding)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserListTablesToleratesCountFailure(t *testing.T) {
	t.Parallel()

	b, mock, _ := mockBrowser(t)
	mock.ExpectQuery("FROM information_schema.tables t").
		WillReturnRows(pgxmock.NewRows([]string{"name", "size", "columns"}).
			AddRow("pages", "64 kB", 14).
			AddRow("projects", "16 kB", 10))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "pages"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "projects"`).
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied"})
	mock.ExpectClose()

	got, err := b.ListTables(context.Background(), "hubspot_onboarding")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(12), got[0].RowCount)
	require.Equal(t, 14, got[0].ColumnCount)
	require.Equal(t, int64(0), got[1].RowCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserOpenMissingDatabase(t *testing.T) {
	t.Parallel()

	b := NewBrowserWithConnector(database.Config{}, func(context.Context, database.Config) (Conn, error) {
		return nil, &pgconn.PgError{Code: codeInvalidCatalogName}
	}, nil)

	_, err := b.ListTables(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = b.ListTables(context.Background(), "  ")
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestBrowserListRowsPaginates(t *testing.T) {
	t.Parallel()

	b, mock, _ := mockBrowser(t)
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("projects").
		WillReturnRows(pgxmock.NewRows([]string{"name", "type", "nullable", "default"}).
			AddRow("id", "uuid", false, (*string)(nil)).
			AddRow("name", "character varying", false, (*string)(nil)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "projects"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectQuery(`SELECT \* FROM "projects" ORDER BY 1 LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow([16]byte{0x01}, "Relaunch").
			AddRow([16]byte{0x02}, []byte("CRM")))
	mock.ExpectClose()

	got, err := b.ListRows(context.Background(), "hubspot_onboarding", "projects", 2, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.TotalRows)
	require.Equal(t, 3, got.TotalPages)
	require.Equal(t, 2, got.Page)
	require.Len(t, got.Columns, 2)
	require.Len(t, got.Rows, 2)
	require.Equal(t, "01000000-0000-0000-0000-000000000000", got.Rows[0]["id"])
	require.Equal(t, "CRM", got.Rows[1]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserListRowsUnknownTable(t *testing.T) {
	t.Parallel()

	b, mock, _ := mockBrowser(t)
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"name", "type", "nullable", "default"}))
	mock.ExpectClose()

	_, err := b.ListRows(context.Background(), "hubspot_onboarding", "nope", 1, 0)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBrowserDropDatabaseRejectsProtected(t *testing.T) {
	t.Parallel()

	b, mock, targets := mockBrowser(t)
	for _, name := range []string{"postgres", "template0", " Template1 "} {
		err := b.DropDatabase(context.Background(), name)
		require.ErrorIs(t, err, store.ErrProtectedDatabase)
		require.ErrorIs(t, err, store.ErrValidation)
	}
	require.Empty(t, *targets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserDropDatabaseTerminatesSessions(t *testing.T) {
	t.Parallel()

	b, mock, targets := mockBrowser(t)
	mock.ExpectExec("pg_terminate_backend").
		WithArgs("scratch").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`DROP DATABASE "scratch"`).
		WillReturnResult(pgxmock.NewResult("DROP DATABASE", 0))
	mock.ExpectClose()

	require.NoError(t, b.DropDatabase(context.Background(), "scratch"))
	require.Equal(t, []string{"postgres"}, *targets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserDropTableQuotesIdentifier(t *testing.T) {
	t.Parallel()

	b, mock, _ := mockBrowser(t)
	mock.ExpectExec(`DROP TABLE "weird""name"`).
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectClose()

	require.NoError(t, b.DropTable(context.Background(), "hubspot_onboarding", `weird"name`))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserDeleteRowByPrimaryKey(t *testing.T) {
	t.Parallel()

	b, mock, _ := mockBrowser(t)
	mock.ExpectQuery("FROM pg_index").
		WithArgs(`"public"."websites"`).
		WillReturnRows(pgxmock.NewRows([]string{"attname"}).AddRow("id"))
	mock.ExpectExec(`DELETE FROM "websites" WHERE "id" = \$1`).
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectClose()

	n, err := b.DeleteRow(context.Background(), "hubspot_onboarding", "websites",
		map[string]any{"id": json.Number("42")})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserDeleteRowKeyMismatch(t *testing.T) {
	t.Parallel()

	b, mock, _ := mockBrowser(t)
	mock.ExpectQuery("FROM pg_index").
		WithArgs(`"public"."websites"`).
		WillReturnRows(pgxmock.NewRows([]string{"attname"}).AddRow("id"))
	mock.ExpectClose()

	_, err := b.DeleteRow(context.Background(), "hubspot_onboarding", "websites",
		map[string]any{"url": "https://example.com"})
	require.ErrorIs(t, err, store.ErrValidation)
	require.Contains(t, err.Error(), "[id]")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBrowserDeleteRowWithoutPrimaryKey(t *testing.T) {
	t.Parallel()

	b, mock, _ := mockBrowser(t)
	mock.ExpectQuery("FROM pg_index").
		WithArgs(`"public"."log"`).
		WillReturnRows(pgxmock.NewRows([]string{"attname"}))
	mock.ExpectClose()

	_, err := b.DeleteRow(context.Background(), "hubspot_onboarding", "log", map[string]any{"id": 1})
	require.ErrorIs(t, err, store.ErrValidation)
	require.Contains(t, err.Error(), "no primary key")
	require.NoError(t, mock.ExpectationsWereMet())
}
