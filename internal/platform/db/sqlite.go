package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteLower is a Unicode-aware replacement for SQLite's LOWER, which
// only folds ASCII letters. It folds the same way strings.ToLower does, so
// patterns lower-cased in Go match the stored text.
const SQLiteLower = "unicode_lower"

func init() {
	msqlite.MustRegisterDeterministicScalarFunction(SQLiteLower, 1, unicodeLower)
}

func unicodeLower(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return strings.ToLower(fmt.Sprint(v)), nil
	}
}

// IsSQLiteUniqueViolation reports whether err is a SQLite primary key or
// unique constraint failure.
func IsSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
