package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type deleteRowRequest struct {
	Key map[string]any `json:"key"`
}

func (s *Server) requireBrowser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Browser == nil {
			writeError(w, http.StatusServiceUnavailable, "Database browser is not available")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func queryParam(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

func intParam(r *http.Request, name string) int {
	v, err := strconv.Atoi(queryParam(r, name))
	if err != nil {
		return 0
	}
	return v
}

func (s *Server) listDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := s.deps.Browser.ListDatabases(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "Database not found", "Failed to list databases")
		return
	}
	writeData(w, http.StatusOK, nonNil(dbs))
}

func (s *Server) dropDatabase(w http.ResponseWriter, r *http.Request) {
	name := queryParam(r, "database")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Database parameter is required")
		return
	}
	if err := s.deps.Browser.DropDatabase(r.Context(), name); err != nil {
		s.writeStoreError(w, r, err, "Database not found", "Failed to delete database")
		return
	}
	writeMessage(w, http.StatusOK, nil, fmt.Sprintf("Database %q has been deleted successfully", name))
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	name := queryParam(r, "database")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Database parameter is required")
		return
	}
	tables, err := s.deps.Browser.ListTables(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, r, err, "Database not found", "Failed to list tables")
		return
	}
	writeData(w, http.StatusOK, nonNil(tables))
}

func (s *Server) dropTable(w http.ResponseWriter, r *http.Request) {
	name, table := queryParam(r, "database"), queryParam(r, "table")
	if name == "" || table == "" {
		writeError(w, http.StatusBadRequest, "Database and table parameters are required")
		return
	}
	if err := s.deps.Browser.DropTable(r.Context(), name, table); err != nil {
		s.writeStoreError(w, r, err, "Table not found", "Failed to delete table")
		return
	}
	writeMessage(w, http.StatusOK, nil, fmt.Sprintf("Table %q has been deleted successfully", table))
}

func (s *Server) listRows(w http.ResponseWriter, r *http.Request) {
	name, table := queryParam(r, "database"), queryParam(r, "table")
	if name == "" || table == "" {
		writeError(w, http.StatusBadRequest, "Database and table parameters are required")
		return
	}
	rows, err := s.deps.Browser.ListRows(r.Context(), name, table, intParam(r, "page"), intParam(r, "per_page"))
	if err != nil {
		s.writeStoreError(w, r, err, "Table not found", "Failed to fetch table data")
		return
	}
	writeData(w, http.StatusOK, rows)
}

func (s *Server) deleteRow(w http.ResponseWriter, r *http.Request) {
	name, table := queryParam(r, "database"), queryParam(r, "table")
	if name == "" || table == "" {
		writeError(w, http.StatusBadRequest, "Database and table parameters are required")
		return
	}
	var req deleteRowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Key) == 0 {
		writeError(w, http.StatusBadRequest, "Row key is required")
		return
	}
	n, err := s.deps.Browser.DeleteRow(r.Context(), name, table, req.Key)
	if err != nil {
		s.writeStoreError(w, r, err, "Table not found", "Failed to delete row")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Row not found")
		return
	}
	writeMessage(w, http.StatusOK, map[string]int64{"deleted": n}, "Row deleted successfully")
}
