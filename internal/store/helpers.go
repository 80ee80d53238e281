package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// DSN types returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite"
)

// DetectDSNType classifies a DSN as Postgres or SQLite. Anything that is not
// recognizably a Postgres URL or key/value string is treated as an SQLite
// file path.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DSNTypePostgres
	case strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname="):
		return DSNTypePostgres
	default:
		return DSNTypeSQLite
	}
}

// NewFromDSN opens the store matching the DSN type.
func NewFromDSN(dsn string) (Store, error) {
	switch DetectDSNType(dsn) {
	case DSNTypePostgres:
		return NewPostgresStore(WithDSN(dsn))
	default:
		return NewSQLiteStore(WithDSN(dsn))
	}
}

// scanTranscript scans a TranscriptEntry from sql.Rows.
func scanTranscript(rows *sql.Rows) (TranscriptEntry, error) {
	var e TranscriptEntry
	var step sql.NullString
	err := rows.Scan(&e.ID, &e.UserID, &e.Direction, &e.Body, &step, &e.CreatedAt)
	if err != nil {
		return e, fmt.Errorf("scan transcript entry failed: %w", err)
	}
	e.Step = step.String
	return e, nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
