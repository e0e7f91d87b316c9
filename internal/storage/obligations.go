package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/shopspring/decimal"
)

// SaveObligation inserts an obligation or updates the one with the same vendor.
// The obligation's ID is populated on return.
func (s *SQLiteStorage) SaveObligation(ctx context.Context, obligation *model.RecurringObligation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if obligation == nil {
		return fmt.Errorf("%w: obligation", ErrNilParameter)
	}
	if err := obligation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidObligation, err)
	}

	patterns, err := json.Marshal(obligation.MatchPatterns)
	if err != nil {
		return fmt.Errorf("failed to marshal match patterns: %w", err)
	}

	var fixed decimal.NullDecimal
	if amount := obligation.AmountPolicy.FixedAmount(); amount != nil {
		fixed = decimal.NewNullDecimal(*amount)
	}

	now := s.now()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO recurring_obligations (
			vendor, vendor_category, match_patterns, amount_kind,
			fixed_amount, due_day_of_month, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vendor) DO UPDATE SET
			vendor_category = excluded.vendor_category,
			match_patterns = excluded.match_patterns,
			amount_kind = excluded.amount_kind,
			fixed_amount = excluded.fixed_amount,
			due_day_of_month = excluded.due_day_of_month,
			active = excluded.active,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		obligation.Vendor,
		string(obligation.VendorCategory),
		string(patterns),
		string(obligation.AmountPolicy.Kind),
		fixed,
		obligation.DueDayOfMonth,
		obligation.Active,
		now,
		now,
	).Scan(&obligation.ID)
	if err != nil {
		return fmt.Errorf("failed to save obligation: %w", err)
	}

	slog.Debug("saved recurring obligation", "id", obligation.ID, "vendor", obligation.Vendor)
	return nil
}

// ListObligations returns every obligation in catalog order.
func (s *SQLiteStorage) ListObligations(ctx context.Context) ([]model.RecurringObligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listObligations(ctx, false)
}

// ListActiveObligations returns active obligations in catalog order.
// Catalog order is insertion order, which keeps matching deterministic.
func (s *SQLiteStorage) ListActiveObligations(ctx context.Context) ([]model.RecurringObligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listObligations(ctx, true)
}

func (s *SQLiteStorage) listObligations(ctx context.Context, activeOnly bool) ([]model.RecurringObligation, error) {
	query := `
		SELECT id, vendor, vendor_category, match_patterns, amount_kind,
			fixed_amount, due_day_of_month, active
		FROM recurring_obligations`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var obligations []model.RecurringObligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, *o)
	}

	return obligations, rows.Err()
}

func scanObligation(row interface{ Scan(...any) error }) (*model.RecurringObligation, error) {
	var (
		o        model.RecurringObligation
		category string
		patterns string
		kind     string
		fixed    decimal.NullDecimal
	)

	if err := row.Scan(&o.ID, &o.Vendor, &category, &patterns, &kind, &fixed, &o.DueDayOfMonth, &o.Active); err != nil {
		return nil, fmt.Errorf("failed to scan obligation: %w", err)
	}

	if err := json.Unmarshal([]byte(patterns), &o.MatchPatterns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match patterns for %q: %w", o.Vendor, err)
	}

	o.VendorCategory = model.VendorCategory(category)
	o.AmountPolicy.Kind = model.AmountKind(kind)
	if fixed.Valid {
		amount := fixed.Decimal
		o.AmountPolicy.Amount = &amount
	}

	return &o, nil
}

// DeactivateObligation removes an obligation from matching without deleting it.
func (s *SQLiteStorage) DeactivateObligation(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE recurring_obligations SET active = 0, updated_at = ? WHERE id = ?
	`, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate obligation: %w", err)
	}

	return requireAffected(result, fmt.Sprintf("obligation %d", id))
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}
