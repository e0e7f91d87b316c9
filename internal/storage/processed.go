package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/service"
)

// AlreadyProcessed reports whether a source message has been recorded.
func (s *SQLiteStorage) AlreadyProcessed(ctx context.Context, sourceMessageID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(sourceMessageID, "sourceMessageID"); err != nil {
		return false, err
	}
	return s.alreadyProcessedTx(ctx, s.db, sourceMessageID)
}

func (s *SQLiteStorage) alreadyProcessedTx(ctx context.Context, q queryable, sourceMessageID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM processed_messages WHERE source_message_id = ?)
	`, sourceMessageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed message: %w", err)
	}
	return exists, nil
}

// MarkProcessed records a source message unless it is already recorded.
// A conflicting row is reported through inserted=false, never as an error,
// so unrelated write failures are still surfaced.
func (s *SQLiteStorage) MarkProcessed(ctx context.Context, record *model.ProcessedMessage) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateProcessed(record); err != nil {
		return false, err
	}
	return s.markProcessedTx(ctx, s.db, record)
}

func (s *SQLiteStorage) markProcessedTx(ctx context.Context, q queryable, record *model.ProcessedMessage) (bool, error) {
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = s.now()
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO processed_messages (
			source_message_id, matched_vendor, bill_instance_id,
			action, classifier_error, processed_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_message_id) DO NOTHING
	`,
		record.SourceMessageID,
		nullIfEmpty(record.MatchedVendor),
		nullIfEmpty(record.BillInstanceID),
		string(record.Action),
		record.ClassifierError,
		record.ProcessedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record processed message: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// ListProcessed returns processed message records, newest first.
func (s *SQLiteStorage) ListProcessed(ctx context.Context, filter service.ProcessedFilter) ([]model.ProcessedMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT source_message_id, matched_vendor, bill_instance_id,
			action, classifier_error, processed_at
		FROM processed_messages WHERE 1 = 1`
	var args []any

	if filter.OnlyFailures {
		query += ` AND classifier_error != ''`
	}
	if filter.Since != nil {
		query += ` AND processed_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY processed_at DESC, source_message_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ProcessedMessage
	for rows.Next() {
		var (
			r      model.ProcessedMessage
			vendor sql.NullString
			billID sql.NullString
			action string
		)
		if err := rows.Scan(&r.SourceMessageID, &vendor, &billID, &action, &r.ClassifierError, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processed message: %w", err)
		}
		r.MatchedVendor = vendor.String
		r.BillInstanceID = billID.String
		r.Action = model.Action(action)
		r.ProcessedAt = r.ProcessedAt.UTC()
		records = append(records, r)
	}

	return records, rows.Err()
}

// ForgetProcessed deletes a processed record so the next run picks the
// message up again. Ledger rows the message produced are left untouched.
func (s *SQLiteStorage) ForgetProcessed(ctx context.Context, sourceMessageID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(sourceMessageID, "sourceMessageID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM processed_messages WHERE source_message_id = ?`, sourceMessageID)
	if err != nil {
		return fmt.Errorf("failed to forget processed message: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("processed message %s", sourceMessageID))
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
