package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// minionColumns is the SELECT column list shared by minion queries.
const minionColumns = `id, last_seen, grains, pillars, pkgs,
		last_updated_grains, last_updated_pillars, last_updated_pkgs,
		conformity, conformity_success, conformity_incorrect, conformity_error,
		last_updated_conformity, os_type`

// SaveMinion implements storage.MinionStore. The full row is written;
// callers merge sparse updates before saving.
func (s *Store) SaveMinion(ctx context.Context, m models.Minion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO minions (
			id, last_seen, grains, pillars, pkgs,
			last_updated_grains, last_updated_pillars, last_updated_pkgs,
			conformity, conformity_success, conformity_incorrect, conformity_error,
			last_updated_conformity, os_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_seen = excluded.last_seen,
			grains = excluded.grains,
			pillars = excluded.pillars,
			pkgs = excluded.pkgs,
			last_updated_grains = excluded.last_updated_grains,
			last_updated_pillars = excluded.last_updated_pillars,
			last_updated_pkgs = excluded.last_updated_pkgs,
			conformity = excluded.conformity,
			conformity_success = excluded.conformity_success,
			conformity_incorrect = excluded.conformity_incorrect,
			conformity_error = excluded.conformity_error,
			last_updated_conformity = excluded.last_updated_conformity,
			os_type = excluded.os_type`,
		m.ID,
		timeText(m.LastSeen),
		strPtr(m.Grains),
		strPtr(m.Pillars),
		strPtr(m.Pkgs),
		timeTextPtr(m.LastUpdatedGrains),
		timeTextPtr(m.LastUpdatedPillars),
		timeTextPtr(m.LastUpdatedPkgs),
		strPtr(m.Conformity),
		intPtr(m.ConformitySuccess),
		intPtr(m.ConformityIncorrect),
		intPtr(m.ConformityError),
		timeTextPtr(m.LastUpdatedConformity),
		strPtr(m.OSType),
	)
	if err != nil {
		return fmt.Errorf("saving minion: %w", err)
	}
	return nil
}

// GetMinion implements storage.MinionStore.
func (s *Store) GetMinion(ctx context.Context, id string) (*models.Minion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+minionColumns+` FROM minions WHERE id = ?`, id)
	return scanMinion(row)
}

// ListMinions implements storage.MinionStore.
func (s *Store) ListMinions(
	ctx context.Context, order storage.MinionSort, limit, offset int,
) ([]models.Minion, error) {
	query, args := limitClause(
		`SELECT `+minionColumns+` FROM minions ORDER BY `+minionOrderClause(order),
		nil, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying minions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	minions := []models.Minion{}
	for rows.Next() {
		m, scanErr := scanMinion(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		minions = append(minions, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating minion rows: %w", err)
	}
	return minions, nil
}

// minionOrderClause maps a validated sort order onto ORDER BY terms. The
// id tiebreak keeps pagination stable.
func minionOrderClause(order storage.MinionSort) string {
	switch order {
	case storage.MinionSortIDDesc:
		return `id DESC`
	case storage.MinionSortLastSeenAsc:
		return `last_seen ASC, id ASC`
	case storage.MinionSortLastSeenDesc:
		return `last_seen DESC, id ASC`
	case storage.MinionSortOSTypeAsc:
		return `os_type ASC, id ASC`
	case storage.MinionSortOSTypeDesc:
		return `os_type DESC, id ASC`
	case storage.MinionSortConformityAsc:
		return `conformity_success ASC, id ASC`
	case storage.MinionSortConformityDesc:
		return `conformity_success DESC, id ASC`
	case storage.MinionSortIncorrectAsc:
		return `conformity_incorrect ASC, id ASC`
	case storage.MinionSortIncorrectDesc:
		return `conformity_incorrect DESC, id ASC`
	case storage.MinionSortErrorAsc:
		return `conformity_error ASC, id ASC`
	case storage.MinionSortErrorDesc:
		return `conformity_error DESC, id ASC`
	default:
		return `id ASC`
	}
}

// DeleteMinion implements storage.MinionStore.
func (s *Store) DeleteMinion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM minions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting minion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PruneMinions implements storage.MinionStore.
func (s *Store) PruneMinions(ctx context.Context, knownIDs []string) (int64, error) {
	query := `DELETE FROM minions`
	args := make([]any, 0, len(knownIDs))
	if len(knownIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(knownIDs)), ", ")
		query += ` WHERE id NOT IN (` + placeholders + `)`
		for _, id := range knownIDs {
			args = append(args, id)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pruning minions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected, nil
}

// scanMinion scans one minion row.
func scanMinion(sc scanner) (*models.Minion, error) {
	var (
		m         models.Minion
		lastSeen  string
		grains    sql.NullString
		pillars   sql.NullString
		pkgs      sql.NullString
		updGrains sql.NullString
		updPill   sql.NullString
		updPkgs   sql.NullString
		conf      sql.NullString
		confOK    sql.NullInt64
		confBad   sql.NullInt64
		confErr   sql.NullInt64
		updConf   sql.NullString
		osType    sql.NullString
	)
	err := sc.Scan(
		&m.ID, &lastSeen, &grains, &pillars, &pkgs,
		&updGrains, &updPill, &updPkgs,
		&conf, &confOK, &confBad, &confErr,
		&updConf, &osType,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning minion row: %w", err)
	}
	if m.LastSeen, err = parseTimeText(lastSeen); err != nil {
		return nil, err
	}
	m.Grains = nullString(grains)
	m.Pillars = nullString(pillars)
	m.Pkgs = nullString(pkgs)
	if m.LastUpdatedGrains, err = nullTime(updGrains); err != nil {
		return nil, err
	}
	if m.LastUpdatedPillars, err = nullTime(updPill); err != nil {
		return nil, err
	}
	if m.LastUpdatedPkgs, err = nullTime(updPkgs); err != nil {
		return nil, err
	}
	m.Conformity = nullString(conf)
	m.ConformitySuccess = nullInt(confOK)
	m.ConformityIncorrect = nullInt(confBad)
	m.ConformityError = nullInt(confErr)
	if m.LastUpdatedConformity, err = nullTime(updConf); err != nil {
		return nil, err
	}
	m.OSType = nullString(osType)
	return &m, nil
}
