package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// CreatePreset implements storage.PresetStore.
func (s *Store) CreatePreset(ctx context.Context, preset models.MinionPreset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO minion_presets (id, name, filter) VALUES (?, ?, ?)`,
		preset.ID, preset.Name, preset.Filter)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting preset: %w", err)
	}
	return nil
}

// GetPreset implements storage.PresetStore.
func (s *Store) GetPreset(ctx context.Context, id string) (*models.MinionPreset, error) {
	var p models.MinionPreset
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, filter FROM minion_presets WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Filter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning preset row: %w", err)
	}
	return &p, nil
}

// ListPresets implements storage.PresetStore.
func (s *Store) ListPresets(ctx context.Context) ([]models.MinionPreset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, filter FROM minion_presets ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("querying presets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	presets := []models.MinionPreset{}
	for rows.Next() {
		var p models.MinionPreset
		if err := rows.Scan(&p.ID, &p.Name, &p.Filter); err != nil {
			return nil, fmt.Errorf("scanning preset row: %w", err)
		}
		presets = append(presets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating preset rows: %w", err)
	}
	return presets, nil
}

// UpdatePreset implements storage.PresetStore.
func (s *Store) UpdatePreset(ctx context.Context, preset models.MinionPreset) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE minion_presets SET name = ?, filter = ? WHERE id = ?`,
		preset.Name, preset.Filter, preset.ID)
	if err != nil {
		return fmt.Errorf("updating preset: %w", err)
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

// DeletePreset implements storage.PresetStore.
func (s *Store) DeletePreset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM minion_presets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting preset: %w", err)
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
