package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// InsertJob implements storage.JobStore. Duplicate jids return
// ErrAlreadyExists so concurrent observers insert each job once.
func (s *Store) InsertJob(ctx context.Context, job models.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, timestamp, jid, user, event_id) VALUES (?, ?, ?, ?, ?)`,
		job.ID, timeText(job.Timestamp), job.JID, strPtr(job.User), strPtr(job.EventID))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetJobByJID implements storage.JobStore.
func (s *Store) GetJobByJID(ctx context.Context, jid string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, jid, user, event_id FROM jobs WHERE jid = ?`, jid)
	return scanJob(row)
}

// ListJobs implements storage.JobStore. Newest jobs come first.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]models.Job, error) {
	query, args := limitClause(
		`SELECT id, timestamp, jid, user, event_id FROM jobs ORDER BY timestamp DESC, rowid DESC`,
		nil, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []models.Job{}
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job rows: %w", err)
	}
	return jobs, nil
}

// InsertJobReturn implements storage.JobStore.
func (s *Store) InsertJobReturn(ctx context.Context, ret models.JobReturn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_returns (id, timestamp, jid, job_id, event_id, minion_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ret.ID, timeText(ret.Timestamp), ret.JID, ret.JobID, ret.EventID, ret.MinionID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting job return: %w", err)
	}
	return nil
}

// ListJobReturns implements storage.JobStore. Returns come back in the
// order the minions reported.
func (s *Store) ListJobReturns(ctx context.Context, jobID string) ([]models.JobReturn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, jid, job_id, event_id, minion_id
		FROM job_returns WHERE job_id = ?
		ORDER BY timestamp ASC, rowid ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying job returns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rets := []models.JobReturn{}
	for rows.Next() {
		var (
			r         models.JobReturn
			timestamp string
		)
		if err := rows.Scan(&r.ID, &timestamp, &r.JID, &r.JobID, &r.EventID, &r.MinionID); err != nil {
			return nil, fmt.Errorf("scanning job return row: %w", err)
		}
		if r.Timestamp, err = parseTimeText(timestamp); err != nil {
			return nil, err
		}
		rets = append(rets, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job return rows: %w", err)
	}
	return rets, nil
}

// scanJob scans one job row.
func scanJob(sc scanner) (*models.Job, error) {
	var (
		j         models.Job
		timestamp string
		user      sql.NullString
		eventID   sql.NullString
	)
	err := sc.Scan(&j.ID, &timestamp, &j.JID, &user, &eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job row: %w", err)
	}
	if j.Timestamp, err = parseTimeText(timestamp); err != nil {
		return nil, err
	}
	j.User = nullString(user)
	j.EventID = nullString(eventID)
	return &j, nil
}
