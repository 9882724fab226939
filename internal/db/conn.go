package db

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// Target identifies the database to connect to. Fields are used exactly as
// given: an empty User stays empty instead of falling back to PGUSER or the
// OS user, and an empty Password does not consult ~/.pgpass.
type Target struct {
	Host     string
	Port     uint16
	Database string
	User     string
	Password string
	// SSLMode is a libpq sslmode ("disable", "prefer", "require", ...).
	// Empty leaves pgx's default.
	SSLMode string
}

type Options struct {
	// ApplicationName is reported to the server (pg_stat_activity).
	ApplicationName string
}

// URL renders t as a postgres:// connection string. The password is
// included; do not log the result.
func (t Target) URL() string {
	port := t.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(t.Host, strconv.Itoa(int(port))),
		Path:   "/" + t.Database,
	}
	if t.User != "" || t.Password != "" {
		u.User = url.UserPassword(t.User, t.Password)
	}
	q := url.Values{}
	if t.SSLMode != "" {
		q.Set("sslmode", t.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseConfig builds the pgx connection config for t.
func ParseConfig(t Target, opts Options) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(t.URL())
	if err != nil {
		return nil, err
	}
	// Undo libpq-style fallbacks (PGUSER, PGDATABASE, passfile, OS user).
	cfg.User = t.User
	cfg.Password = t.Password
	cfg.Database = t.Database

	if opts.ApplicationName != "" {
		cfg.RuntimeParams["application_name"] = opts.ApplicationName
	}
	return cfg, nil
}

// Connect opens a single connection to t. It does not run a query; a
// completed startup handshake (including authentication) is the check.
// The attempt is bounded only by ctx.
//
// Errors from pgx are returned unwrapped so callers can surface the
// driver's message verbatim.
func Connect(ctx context.Context, t Target, opts Options) (*pgx.Conn, error) {
	if ctx == nil {
		return nil, errors.New("db: nil context")
	}

	cfg, err := ParseConfig(t, opts)
	if err != nil {
		return nil, err
	}

	return pgx.ConnectConfig(ctx, cfg)
}
