package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/billflow/internal/model"
)

// ReplaceAllocations swaps the allocation rows of a bill for the given set.
func (s *SQLiteStorage) ReplaceAllocations(ctx context.Context, billID string, allocations []model.AllocatedPayment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(billID, "billID"); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.replaceAllocationsTx(ctx, tx, billID, allocations)
	})
}

func (s *SQLiteStorage) replaceAllocationsTx(ctx context.Context, q queryable, billID string, allocations []model.AllocatedPayment) error {
	for i := range allocations {
		if err := validateAllocation(&allocations[i]); err != nil {
			return fmt.Errorf("allocation at index %d: %w", i, err)
		}
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM allocated_payments WHERE bill_instance_id = ?`, billID); err != nil {
		return fmt.Errorf("failed to clear allocations: %w", err)
	}

	for _, a := range allocations {
		var paidDate sql.NullTime
		if a.PaidDate != nil {
			paidDate = sql.NullTime{Time: a.PaidDate.UTC(), Valid: true}
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO allocated_payments (id, bill_instance_id, party_id, amount, status, paid_date)
			VALUES (?, ?, ?, ?, ?, ?)
		`, a.ID, billID, a.PartyID, a.Amount, string(a.Status), paidDate)
		if err != nil {
			return fmt.Errorf("failed to insert allocation for party %s: %w", a.PartyID, err)
		}
	}

	return nil
}

// GetAllocations returns a bill's allocations in the order they were written.
func (s *SQLiteStorage) GetAllocations(ctx context.Context, billID string) ([]model.AllocatedPayment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAllocationsTx(ctx, s.db, billID)
}

func (s *SQLiteStorage) getAllocationsTx(ctx context.Context, q queryable, billID string) ([]model.AllocatedPayment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, bill_instance_id, party_id, amount, status, paid_date
		FROM allocated_payments
		WHERE bill_instance_id = ?
		ORDER BY rowid
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var allocations []model.AllocatedPayment
	for rows.Next() {
		var (
			a        model.AllocatedPayment
			status   string
			paidDate sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.BillInstanceID, &a.PartyID, &a.Amount, &status, &paidDate); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.Status = model.BillStatus(status)
		if paidDate.Valid {
			t := paidDate.Time.UTC()
			a.PaidDate = &t
		}
		allocations = append(allocations, a)
	}

	return allocations, rows.Err()
}
