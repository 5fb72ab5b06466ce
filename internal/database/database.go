// Package database builds Postgres connection descriptors from configuration
// and opens pgx pools and connections from them.
package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Config describes how to reach the onboarding database. A non-empty URL
// takes precedence over the discrete fields.
type Config struct {
	URL            string `mapstructure:"url"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	SSL            bool   `mapstructure:"ssl"`
	MaxConnections int32  `mapstructure:"max_connections"`
	// Memory serves every repository from process memory instead of
	// Postgres. The admin browser is unavailable in this mode.
	Memory bool `mapstructure:"memory"`
}

// DB is the query surface shared by *pgxpool.Pool, *pgx.Conn and pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Resolve parses URL and copies its host, port, database, credentials and
// TLS setting into the discrete fields. When URL does not parse, Resolve
// returns a copy without URL so callers fall back to the discrete fields,
// along with the parse error for logging.
func (c Config) Resolve() (Config, error) {
	if strings.TrimSpace(c.URL) == "" {
		return c, nil
	}
	cc, err := pgx.ParseConfig(c.URL)
	if err != nil {
		fallback := c
		fallback.URL = ""
		return fallback, fmt.Errorf("parse database url: %w", err)
	}
	out := c
	out.Host = cc.Host
	out.Port = int(cc.Port)
	out.Name = cc.Database
	out.Username = cc.User
	out.Password = cc.Password
	out.SSL = cc.TLSConfig != nil
	return out, nil
}

// DSN returns a connection string for pgx.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	q := url.Values{}
	if c.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ForDatabase returns a copy of c that targets another database on the
// same server.
func (c Config) ForDatabase(name string) (Config, error) {
	out := c
	out.Name = name
	if c.URL == "" {
		return out, nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return Config{}, fmt.Errorf("parse database url: %w", err)
	}
	u.Path = "/" + name
	u.RawPath = ""
	out.URL = u.String()
	return out, nil
}

// Target renders host:port/database without credentials for logs.
func (c Config) Target() string {
	if c.URL != "" {
		cc, err := pgx.ParseConfig(c.URL)
		if err != nil {
			return "invalid"
		}
		return fmt.Sprintf("%s:%d/%s", cc.Host, cc.Port, cc.Database)
	}
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Name)
}
