package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

const transactionColumns = `id, user_id, merchant, amount, currency, date, category, summary, is_pending, type`

func scanTransaction(row pgx.Row) (*api.Transaction, error) {
	var (
		t    api.Transaction
		kind string
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Merchant, &t.Amount, &t.Currency,
		&t.Date, &t.Category, &t.Summary, &t.IsPending, &kind,
	); err != nil {
		return nil, err
	}
	t.Type = api.Kind(kind)
	return &t, nil
}

// ListTransactions returns every transaction owned by userID, newest date first.
// An unknown user yields an empty, non-nil slice.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]api.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	out := make([]api.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return out, nil
}

// StreamTransactions sends every transaction owned by userID to out and
// closes out when done.
func (s *Store) StreamTransactions(ctx context.Context, userID string, out chan<- *api.Transaction) error {
	defer close(out)

	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return fmt.Errorf("scanning transaction: %w", err)
		}
		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return rows.Err()
}

// GetTransaction returns one transaction owned by userID.
func (s *Store) GetTransaction(ctx context.Context, userID, id string) (*api.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return t, nil
}

// UpsertTransaction creates t or replaces the stored fields of an existing
// record with the same id. An id owned by a different user is api.ErrConflict.
func (s *Store) UpsertTransaction(ctx context.Context, t *api.Transaction) (*api.Transaction, error) {
	if t.Type == "" {
		t.Type = api.KindExpense
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (
			id, user_id, merchant, amount, currency, date, category, summary, is_pending, type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			merchant = EXCLUDED.merchant,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			date = EXCLUDED.date,
			category = EXCLUDED.category,
			summary = EXCLUDED.summary,
			is_pending = EXCLUDED.is_pending,
			type = EXCLUDED.type,
			updated_at = NOW()
		WHERE transactions.user_id = EXCLUDED.user_id
		RETURNING `+transactionColumns,
		t.ID, t.UserID, t.Merchant, t.Amount, t.Currency,
		t.Date, t.Category, t.Summary, t.IsPending, string(t.Type),
	)

	saved, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s belongs to another user: %w", t.ID, api.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("upserting transaction %s: %w", t.ID, err)
	}
	return saved, nil
}

// DeleteTransaction removes one transaction owned by userID.
func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

// InsertIfAbsent stores t under a fresh identifier unless the user already
// has a transaction with the same amount and date (and merchant, when
// matchMerchant is set). It reports whether a row was inserted.
//
// The check and the insert run in one transaction holding a per-user
// advisory lock, so concurrent scans for the same user cannot both insert.
func (s *Store) InsertIfAbsent(ctx context.Context, t *api.Transaction, matchMerchant bool) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.UserID); err != nil {
		return false, fmt.Errorf("locking user %s: %w", t.UserID, err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = $1 AND amount = $2 AND date = $3
			  AND (NOT $4::boolean OR merchant = $5)
		)`,
		t.UserID, t.Amount, t.Date, matchMerchant, t.Merchant,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking duplicate: %w", err)
	}
	if exists {
		return false, nil
	}

	t.ID = uuid.NewString()
	if t.Type == "" {
		t.Type = api.KindExpense
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (
			id, user_id, merchant, amount, currency, date, category, summary, is_pending, type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.UserID, t.Merchant, t.Amount, t.Currency,
		t.Date, t.Category, t.Summary, t.IsPending, string(t.Type),
	)
	if err != nil {
		return false, fmt.Errorf("inserting transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}
