package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pqUniqueViolation = "23505"

// IsNoRows reports whether err means the query matched nothing
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint failure. When
// columns are given, the violation must also name one of them.
func IsUniqueViolation(err error, columns ...string) bool {
	var detail string

	var pqErr *pq.Error
	var liteErr *sqlite.Error
	switch {
	case errors.As(err, &pqErr):
		if pqErr.Code != pqUniqueViolation {
			return false
		}
		detail = pqErr.Constraint + " " + pqErr.Detail + " " + pqErr.Message
	case errors.As(err, &liteErr):
		code := liteErr.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return false
		}
		detail = liteErr.Error()
	default:
		return false
	}

	if len(columns) == 0 {
		return true
	}
	for _, c := range columns {
		if strings.Contains(detail, c) {
			return true
		}
	}
	return false
}
