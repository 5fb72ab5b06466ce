package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/database"
	"github.com/JakeFAU/hubspot-onboarding/internal/store"
)

// maintenanceDatabase hosts server-wide statements such as DROP DATABASE.
const maintenanceDatabase = "postgres"

// Conn is a short-lived admin session. *pgx.Conn satisfies it.
type Conn interface {
	database.DB
	Close(ctx context.Context) error
}

// Connector opens a Conn for cfg.
type Connector func(ctx context.Context, cfg database.Config) (Conn, error)

// Browser implements store.DatabaseBrowser by opening one connection per
// call against the requested database.
type Browser struct {
	cfg     database.Config
	connect Connector
	logger  *zap.Logger
}

// NewBrowser returns a Browser that dials with pgx.
func NewBrowser(cfg database.Config, logger *zap.Logger) *Browser {
	return NewBrowserWithConnector(cfg, func(ctx context.Context, c database.Config) (Conn, error) {
		return database.Connect(ctx, c)
	}, logger)
}

// NewBrowserWithConnector injects the connection factory, which tests use to
// hand out pgxmock connections.
func NewBrowserWithConnector(cfg database.Config, connect Connector, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, connect: connect, logger: logger}
}

func (b *Browser) open(ctx context.Context, name string) (Conn, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: Database parameter is required", store.ErrValidation)
	}
	cfg, err := b.cfg.ForDatabase(name)
	if err != nil {
		return nil, err //nolint:wrapcheck // already wrapped by ForDatabase
	}
	conn, err := b.connect(ctx, cfg)
	if err != nil {
		if pgErrorCode(err) == codeInvalidCatalogName {
			return nil, fmt.Errorf("database %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("open database %q: %w", name, err)
	}
	return conn, nil
}

func (b *Browser) close(conn Conn) {
	if err := conn.Close(context.Background()); err != nil {
		b.logger.Warn("close admin connection", zap.Error(err))
	}
}

// ListDatabases lists every non-template database.
func (b *Browser) ListDatabases(ctx context.Context) ([]store.DatabaseInfo, error) {
	conn, err := b.open(ctx, maintenanceDatabase)
	if err != nil {
		return nil, err
	}
	defer b.close(conn)

	rows, err := conn.Query(ctx, `
		SELECT d.datname::text,
			pg_size_pretty(pg_database_size(d.datname)),
			r.rolname::text,
			pg_encoding_to_char(d.encoding)::text,
			d.datcollate::text
		FROM pg_database d
		JOIN pg_roles r ON d.datdba = r.oid
		WHERE d.datistemplate = false
		ORDER BY d.datname`)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()

	out := []store.DatabaseInfo{}
	for rows.Next() {
		var d store.DatabaseInfo
		if err := rows.Scan(&d.Name, &d.Size, &d.Owner, &d.Encoding, &d.Collation); err != nil {
			return nil, fmt.Errorf("scan database: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate databases: %w", err)
	}
	return out, nil
}

// ListTables lists public tables with their exact row counts. A table whose
// count fails is reported with zero rows.
func (b *Browser) ListTables(ctx context.Context, name string) ([]store.TableInfo, error) {
	conn, err := b.open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.close(conn)

	rows, err := conn.Query(ctx, `
		SELECT t.table_name::text,
			COALESCE(pg_size_pretty(pg_total_relation_size(c.oid)), '0 bytes'),
			(SELECT COUNT(*) FROM information_schema.columns col
				WHERE col.table_schema = 'public' AND col.table_name = t.table_name)::int
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
			AND c.relnamespace = 'public'::regnamespace
		WHERE t.table_schema = 'public' AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables := []store.TableInfo{}
	for rows.Next() {
		var t store.TableInfo
		if err := rows.Scan(&t.Name, &t.Size, &t.ColumnCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	for i := range tables {
		query := `SELECT COUNT(*) FROM ` + pgx.Identifier{tables[i].Name}.Sanitize()
		if err := conn.QueryRow(ctx, query).Scan(&tables[i].RowCount); err != nil {
			b.logger.Warn("count table rows",
				zap.String("database", name),
				zap.String("table", tables[i].Name),
				zap.Error(err),
			)
			tables[i].RowCount = 0
		}
	}
	return tables, nil
}

func (b *Browser) columns(ctx context.Context, conn Conn, table string) ([]store.ColumnInfo, error) {
	rows, err := conn.Query(ctx, `
		SELECT column_name::text, data_type::text, is_nullable = 'YES', column_default::text
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	cols := []store.ColumnInfo{}
	for rows.Next() {
		var c store.ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.Default); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

// ListRows returns one page of rows ordered by the first column.
func (b *Browser) ListRows(ctx context.Context, name, table string, page, perPage int) (store.RowPage, error) {
	if strings.TrimSpace(table) == "" {
		return store.RowPage{}, fmt.Errorf("%w: Table parameter is required", store.ErrValidation)
	}
	page = store.ClampPage(page)
	perPage = store.ClampPerPage(perPage)

	conn, err := b.open(ctx, name)
	if err != nil {
		return store.RowPage{}, err
	}
	defer b.close(conn)

	cols, err := b.columns(ctx, conn, table)
	if err != nil {
		return store.RowPage{}, err
	}
	if len(cols) == 0 {
		return store.RowPage{}, fmt.Errorf("table %q: %w", table, store.ErrNotFound)
	}

	ident := pgx.Identifier{table}.Sanitize()
	var total int64
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM `+ident).Scan(&total); err != nil {
		return store.RowPage{}, fmt.Errorf("count rows: %w", err)
	}

	rows, err := conn.Query(ctx,
		`SELECT * FROM `+ident+` ORDER BY 1 LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage,
	)
	if err != nil {
		return store.RowPage{}, fmt.Errorf("select rows: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return store.RowPage{}, fmt.Errorf("collect rows: %w", err)
	}
	for _, r := range records {
		for k, v := range r {
			r[k] = normalizeValue(v)
		}
	}
	if records == nil {
		records = []map[string]any{}
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return store.RowPage{
		Database:   name,
		Table:      table,
		Columns:    cols,
		Rows:       records,
		TotalRows:  total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// normalizeValue makes driver values JSON friendly.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	default:
		return v
	}
}

// DropTable drops one table from the public schema.
func (b *Browser) DropTable(ctx context.Context, name, table string) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("%w: Table parameter is required", store.ErrValidation)
	}
	conn, err := b.open(ctx, name)
	if err != nil {
		return err
	}
	defer b.close(conn)

	if _, err := conn.Exec(ctx, `DROP TABLE `+pgx.Identifier{table}.Sanitize()); err != nil {
		if pgErrorCode(err) == codeUndefinedTable {
			return fmt.Errorf("table %q: %w", table, store.ErrNotFound)
		}
		return fmt.Errorf("drop table: %w", err)
	}
	b.logger.Info("table dropped", zap.String("database", name), zap.String("table", table))
	return nil
}

// DropDatabase terminates other sessions on the target and drops it.
func (b *Browser) DropDatabase(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: Database parameter is required", store.ErrValidation)
	}
	if store.IsProtectedDatabase(name) {
		return store.ErrProtectedDatabase
	}
	conn, err := b.open(ctx, maintenanceDatabase)
	if err != nil {
		return err
	}
	defer b.close(conn)

	if _, err := conn.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`,
		name,
	); err != nil {
		return fmt.Errorf("terminate connections: %w", err)
	}
	if _, err := conn.Exec(ctx, `DROP DATABASE `+pgx.Identifier{name}.Sanitize()); err != nil {
		if pgErrorCode(err) == codeInvalidCatalogName {
			return fmt.Errorf("database %q: %w", name, store.ErrNotFound)
		}
		return fmt.Errorf("drop database: %w", err)
	}
	b.logger.Info("database dropped", zap.String("database", name))
	return nil
}

func (b *Browser) primaryKey(ctx context.Context, conn Conn, table string) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT a.attname::text
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = to_regclass($1) AND i.indisprimary
		ORDER BY a.attnum`,
		pgx.Identifier{"public", table}.Sanitize(),
	)
	if err != nil {
		return nil, fmt.Errorf("read primary key: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read primary key: %w", err)
	}
	return cols, nil
}

// DeleteRow deletes by primary key. key must name every primary key column
// and nothing else.
func (b *Browser) DeleteRow(ctx context.Context, name, table string, key map[string]any) (int64, error) {
	if strings.TrimSpace(table) == "" {
		return 0, fmt.Errorf("%w: Table parameter is required", store.ErrValidation)
	}
	if len(key) == 0 {
		return 0, fmt.Errorf("%w: Row key is required", store.ErrValidation)
	}
	conn, err := b.open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer b.close(conn)

	pk, err := b.primaryKey(ctx, conn, table)
	if err != nil {
		return 0, err
	}
	if len(pk) == 0 {
		return 0, fmt.Errorf("%w: table %q has no primary key", store.ErrValidation, table)
	}
	if err := matchKey(pk, key); err != nil {
		return 0, err
	}

	clauses := make([]string, 0, len(pk))
	args := make([]any, 0, len(pk))
	for _, col := range pk {
		args = append(args, keyValue(key[col]))
		clauses = append(clauses, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}
	query := `DELETE FROM ` + pgx.Identifier{table}.Sanitize() + ` WHERE ` + strings.Join(clauses, " AND ")
	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete row: %w", err)
	}
	return tag.RowsAffected(), nil
}

func matchKey(pk []string, key map[string]any) error {
	if len(pk) == len(key) {
		missing := false
		for _, col := range pk {
			if _, ok := key[col]; !ok {
				missing = true
				break
			}
		}
		if !missing {
			return nil
		}
	}
	got := make([]string, 0, len(key))
	for k := range key {
		got = append(got, k)
	}
	sort.Strings(got)
	return fmt.Errorf("%w: row key must name primary key columns [%s], got [%s]",
		store.ErrValidation, strings.Join(pk, ", "), strings.Join(got, ", "))
}

// keyValue turns JSON-decoded numbers into something pgx can encode.
func keyValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

var _ store.DatabaseBrowser = (*Browser)(nil)
