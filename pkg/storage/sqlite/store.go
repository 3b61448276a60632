package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// timeLayout is the column format for timestamps. Unlike RFC 3339 with
// trimmed fractional zeros, the fixed width keeps lexicographic TEXT
// comparison chronological, which ORDER BY and range deletes rely on.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store implements storage.Store using SQLite.
type Store struct {
	wrapper *DB
	db      *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a SQLite-backed Store on top of an opened database.
func New(db *DB) *Store {
	return &Store{wrapper: db, db: db.DB()}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.wrapper.Close()
}

// Counts implements storage.Store.
func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	var c storage.Counts
	for _, q := range []struct {
		table string
		dest  *int64
	}{
		{"users", &c.Users},
		{"minions", &c.Minions},
		{"events", &c.Events},
		{"jobs", &c.Jobs},
		{"sessions", &c.Sessions},
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dest); err != nil {
			return storage.Counts{}, fmt.Errorf("counting %s: %w", q.table, err)
		}
	}
	return c, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

// limitClause appends LIMIT/OFFSET to a query. SQLite requires a LIMIT
// before OFFSET; -1 means unlimited.
func limitClause(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return query + ` LIMIT ? OFFSET ?`, append(args, limit, offset)
}

// timeText renders a timestamp for storage.
func timeText(t models.Time) string {
	return t.UTC().Format(timeLayout)
}

// timeTextPtr renders an optional timestamp, mapping nil to SQL NULL.
func timeTextPtr(t *models.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}

// parseTimeText parses a stored timestamp.
func parseTimeText(s string) (models.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return models.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return models.NewTime(t), nil
}

// nullString converts a nullable column into an optional string.
func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// nullInt converts a nullable column into an optional int.
func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

// nullTime converts a nullable timestamp column into an optional Time.
func nullTime(v sql.NullString) (*models.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTimeText(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// strPtr converts an optional string into a bindable value.
func strPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// intPtr converts an optional int into a bindable value.
func intPtr(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isForeignKeyViolation checks for a SQLite FOREIGN KEY constraint
// violation, raised when a membership references an absent row.
func isForeignKeyViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}
