// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/scigraph/pkg/types"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// dialect captures the differences between the supported backends.
type dialect struct {
	name        types.StoreDriver
	placeholder sq.PlaceholderFormat
	idColumn    string
	timestamp   string
	createView  string
}

var sqliteDialect = dialect{
	name:        types.DriverSQLite,
	placeholder: sq.Question,
	idColumn:    "INTEGER PRIMARY KEY AUTOINCREMENT",
	timestamp:   "DATETIME",
	createView:  "CREATE VIEW IF NOT EXISTS",
}

var postgresDialect = dialect{
	name:        types.DriverPostgres,
	placeholder: sq.Dollar,
	idColumn:    "BIGSERIAL PRIMARY KEY",
	timestamp:   "TIMESTAMPTZ",
	createView:  "CREATE OR REPLACE VIEW",
}

// isUniqueViolation reports whether err is a unique-constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
