package telemetry

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens a traced postgres handle whose connections all resolve
// unqualified tables in schema.
func OpenDB(dsn, schema string) (*sql.DB, error) {
	dsn, err := WithSearchPath(dsn, schema)
	if err != nil {
		return nil, err
	}

	return otelsql.Open("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
}

// WithSearchPath adds search_path to a postgres:// URL. lib/pq sends unknown
// URL parameters to the server as run-time parameters, so the setting applies
// to every pooled connection.
func WithSearchPath(dsn, schema string) (string, error) {
	if schema == "" {
		return dsn, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse postgres url: %w", err)
	}

	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
