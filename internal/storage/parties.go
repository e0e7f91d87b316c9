package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/google/uuid"
)

// AddParty registers a responsible party.
func (s *SQLiteStorage) AddParty(ctx context.Context, name string) (*model.Party, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	party := &model.Party{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Active:    true,
		CreatedAt: s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (id, name, active, created_at) VALUES (?, ?, ?, ?)
	`, party.ID, party.Name, party.Active, party.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("party %q: %w", party.Name, common.ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("failed to add party: %w", err)
	}

	return party, nil
}

// ListParties returns all parties, active or not, in the order they were added.
func (s *SQLiteStorage) ListParties(ctx context.Context) ([]model.Party, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active, created_at FROM parties ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parties []model.Party
	for rows.Next() {
		var p model.Party
		if err := rows.Scan(&p.ID, &p.Name, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}

	return parties, rows.Err()
}

// RemoveParty deactivates a party. Existing allocations keep referencing it.
func (s *SQLiteStorage) RemoveParty(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE parties SET active = 0 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove party: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("party %s", id))
}

// ListResponsibleParties returns the ids of active parties.
func (s *SQLiteStorage) ListResponsibleParties(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listResponsiblePartiesTx(ctx, s.db)
}

func (s *SQLiteStorage) listResponsiblePartiesTx(ctx context.Context, q queryable) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM parties WHERE active = 1 ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query responsible parties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan party id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
