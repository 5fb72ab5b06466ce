package store

import "context"

// DatabaseInfo describes one non-template database on the server.
type DatabaseInfo struct {
	Name      string `json:"name"`
	Size      string `json:"size"`
	Owner     string `json:"owner"`
	Encoding  string `json:"encoding"`
	Collation string `json:"collation"`
}

// TableInfo describes one table in the public schema.
type TableInfo struct {
	Name        string `json:"name"`
	Size        string `json:"size"`
	ColumnCount int    `json:"column_count"`
	RowCount    int64  `json:"row_count"`
}

// ColumnInfo describes one table column.
type ColumnInfo struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

// RowPage is one page of arbitrary table rows.
type RowPage struct {
	Database   string           `json:"database"`
	Table      string           `json:"table"`
	Columns    []ColumnInfo     `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	TotalRows  int64            `json:"total_rows"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

// DatabaseBrowser is the schema-agnostic admin surface over a Postgres server.
type DatabaseBrowser interface {
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)
	ListTables(ctx context.Context, database string) ([]TableInfo, error)
	// ListRows pages through a table. perPage is clamped with ClampPerPage.
	ListRows(ctx context.Context, database, table string, page, perPage int) (RowPage, error)
	DropTable(ctx context.Context, database, table string) error
	// DropDatabase returns ErrProtectedDatabase for system databases.
	DropDatabase(ctx context.Context, database string) error
	// DeleteRow deletes the row whose primary key equals key and returns the
	// number of rows removed.
	DeleteRow(ctx context.Context, database, table string, key map[string]any) (int64, error)
}
