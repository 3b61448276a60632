package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// InsertEvent implements storage.EventStore.
func (s *Store) InsertEvent(ctx context.Context, event models.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, tag, data) VALUES (?, ?, ?, ?)`,
		event.ID, timeText(event.Timestamp), event.Tag, event.Data)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent implements storage.EventStore.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, tag, data FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// ListEvents implements storage.EventStore. Newest events come first;
// the rowid tiebreak keeps same-stamp events in reverse insertion order.
func (s *Store) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	query, args := limitClause(
		`SELECT id, timestamp, tag, data FROM events ORDER BY timestamp DESC, rowid DESC`,
		nil, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []models.Event{}
	for rows.Next() {
		e, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// scanEvent scans one event row.
func scanEvent(sc scanner) (*models.Event, error) {
	var (
		e         models.Event
		timestamp string
	)
	err := sc.Scan(&e.ID, &timestamp, &e.Tag, &e.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning event row: %w", err)
	}
	if e.Timestamp, err = parseTimeText(timestamp); err != nil {
		return nil, err
	}
	return &e, nil
}
