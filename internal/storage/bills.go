package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/billflow/internal/common"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/service"
	"github.com/shopspring/decimal"
)

const dueDateLayout = "2006-01-02"

const billColumns = `
	id, vendor, billing_period, recurring_obligation_id, vendor_category,
	amount, due_date, status, paid_date, paid_via, source_message_id,
	source_summary, created_at, updated_at`

// CreateBillInstance inserts a new bill instance. It returns
// common.ErrDuplicateEntry when the vendor already has an instance for the period.
func (s *SQLiteStorage) CreateBillInstance(ctx context.Context, bill *model.BillInstance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBillInstance(bill); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.createBillInstanceTx(ctx, tx, bill)
	})
}

func (s *SQLiteStorage) createBillInstanceTx(ctx context.Context, q queryable, bill *model.BillInstance) error {
	now := s.now().UTC()
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = now
	}
	if bill.UpdatedAt.IsZero() {
		bill.UpdatedAt = bill.CreatedAt
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO bill_instances (`+billColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, billArgs(bill)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bill instance for %q in %s: %w", bill.Vendor, bill.BillingPeriod, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create bill instance: %w", err)
	}

	slog.Debug("created bill instance",
		"id", bill.ID,
		"vendor", bill.Vendor,
		"period", bill.BillingPeriod,
		"status", bill.Status)
	return nil
}

func billArgs(bill *model.BillInstance) []any {
	var obligationID sql.NullInt64
	if bill.RecurringObligationID != nil {
		obligationID = sql.NullInt64{Int64: *bill.RecurringObligationID, Valid: true}
	}

	var amount decimal.NullDecimal
	if bill.Amount != nil {
		amount = decimal.NewNullDecimal(*bill.Amount)
	}

	var paidDate sql.NullTime
	if bill.PaidDate != nil {
		paidDate = sql.NullTime{Time: bill.PaidDate.UTC(), Valid: true}
	}

	return []any{
		bill.ID,
		bill.Vendor,
		bill.BillingPeriod,
		obligationID,
		string(bill.VendorCategory),
		amount,
		bill.DueDate.Format(dueDateLayout),
		string(bill.Status),
		paidDate,
		bill.PaidVia,
		bill.SourceMessageID,
		bill.SourceSummary,
		bill.CreatedAt.UTC(),
		bill.UpdatedAt.UTC(),
	}
}

// UpdateBillInstance persists changes to an existing bill instance.
// A PAID instance can never be moved back to PENDING.
func (s *SQLiteStorage) UpdateBillInstance(ctx context.Context, bill *model.BillInstance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBillInstance(bill); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateBillInstanceTx(ctx, tx, bill)
	})
}

func (s *SQLiteStorage) updateBillInstanceTx(ctx context.Context, q queryable, bill *model.BillInstance) error {
	var current string
	err := q.QueryRowContext(ctx, `SELECT status FROM bill_instances WHERE id = ?`, bill.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("bill instance %s: %w", bill.ID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read bill status: %w", err)
	}

	if model.BillStatus(current) == model.BillPaid && bill.Status != model.BillPaid {
		return fmt.Errorf("%w: bill instance %s is already paid", common.ErrInvalidTransition, bill.ID)
	}

	bill.UpdatedAt = s.now().UTC()
	args := billArgs(bill)
	// Identity columns (id, vendor, billing_period) and created_at are immutable.
	updateArgs := make([]any, 0, 11)
	updateArgs = append(updateArgs, args[3:12]...)
	updateArgs = append(updateArgs, args[13], bill.ID)
	_, err = q.ExecContext(ctx, `
		UPDATE bill_instances SET
			recurring_obligation_id = ?,
			vendor_category = ?,
			amount = ?,
			due_date = ?,
			status = ?,
			paid_date = ?,
			paid_via = ?,
			source_message_id = ?,
			source_summary = ?,
			updated_at = ?
		WHERE id = ?
	`, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update bill instance: %w", err)
	}

	return nil
}

// GetBillInstance retrieves a bill instance and its allocations.
func (s *SQLiteStorage) GetBillInstance(ctx context.Context, id string) (*model.BillInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getBillInstanceTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getBillInstanceTx(ctx context.Context, q queryable, id string) (*model.BillInstance, error) {
	row := q.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bill_instances WHERE id = ?`, id)
	bill, err := scanBillInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill instance %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	bill.Allocations, err = s.getAllocationsTx(ctx, q, bill.ID)
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// ListBillInstancesByPeriod returns every instance in the period, oldest first.
func (s *SQLiteStorage) ListBillInstancesByPeriod(ctx context.Context, period string) ([]model.BillInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	return s.listBillInstancesTx(ctx, s.db, service.BillFilter{BillingPeriod: period})
}

// ListBillInstances returns bill instances matching the filter, oldest first.
func (s *SQLiteStorage) ListBillInstances(ctx context.Context, filter service.BillFilter) ([]model.BillInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.BillingPeriod != "" {
		if err := validatePeriod(filter.BillingPeriod); err != nil {
			return nil, err
		}
	}
	return s.listBillInstancesTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listBillInstancesTx(ctx context.Context, q queryable, filter service.BillFilter) ([]model.BillInstance, error) {
	query := `SELECT ` + billColumns + ` FROM bill_instances WHERE 1 = 1`
	var args []any

	if filter.BillingPeriod != "" {
		query += ` AND billing_period = ?`
		args = append(args, filter.BillingPeriod)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill instances: %w", err)
	}

	var bills []model.BillInstance
	for rows.Next() {
		bill, scanErr := scanBillInstance(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		bills = append(bills, *bill)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate bill instances: %w", err)
	}
	// Close before loading allocations: the pool has a single connection.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close rows: %w", err)
	}

	for i := range bills {
		bills[i].Allocations, err = s.getAllocationsTx(ctx, q, bills[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return bills, nil
}

func scanBillInstance(row interface{ Scan(...any) error }) (*model.BillInstance, error) {
	var (
		bill         model.BillInstance
		obligationID sql.NullInt64
		category     string
		amount       decimal.NullDecimal
		dueDate      string
		status       string
		paidDate     sql.NullTime
		paidVia      sql.NullString
		summary      sql.NullString
	)

	err := row.Scan(
		&bill.ID,
		&bill.Vendor,
		&bill.BillingPeriod,
		&obligationID,
		&category,
		&amount,
		&dueDate,
		&status,
		&paidDate,
		&paidVia,
		&bill.SourceMessageID,
		&summary,
		&bill.CreatedAt,
		&bill.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bill instance: %w", err)
	}

	if obligationID.Valid {
		id := obligationID.Int64
		bill.RecurringObligationID = &id
	}
	if amount.Valid {
		a := amount.Decimal
		bill.Amount = &a
	}
	if paidDate.Valid {
		t := paidDate.Time.UTC()
		bill.PaidDate = &t
	}

	bill.DueDate, err = time.Parse(dueDateLayout, dueDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", dueDate, err)
	}

	bill.VendorCategory = model.VendorCategory(category)
	bill.Status = model.BillStatus(status)
	bill.PaidVia = paidVia.String
	bill.SourceSummary = summary.String
	bill.CreatedAt = bill.CreatedAt.UTC()
	bill.UpdatedAt = bill.UpdatedAt.UTC()

	return &bill, nil
}
