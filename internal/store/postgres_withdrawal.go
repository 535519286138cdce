/**
 * @description
 * Withdrawal settlement queries. The wallet debit happens in the same
 * transaction that inserts the pending request, so reserved funds can never
 * be withdrawn twice; the reversing credit happens in the same transaction
 * as the rejection. Mark-paid is a pure bookkeeping transition guarded on
 * the request still being pending, which is what makes a repeated operator
 * click a no-op instead of a second payout.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sokoni/settlement-service/internal/domain"
)

const withdrawalColumns = `
	id, user_id, user_type, amount, currency,
	withdrawal_method, mobile_money_provider, mobile_money_phone,
	status, admin_reference, admin_notes, failure_reason,
	processed_by, processed_at, paid_at, created_at, updated_at
`

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	err := row.Scan(
		&w.ID, &w.UserID, &w.UserType, &w.Amount, &w.Currency,
		&w.WithdrawalMethod, &w.MobileMoneyProvider, &w.MobileMoneyPhone,
		&w.Status, &w.AdminReference, &w.AdminNotes, &w.FailureReason,
		&w.ProcessedBy, &w.ProcessedAt, &w.PaidAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWithdrawalRequestAtomic reserves the funds and records the request
// as one unit. The wallet row is locked first so a concurrent request for
// the same user cannot both pass the balance check.
func (r *PostgresRepository) CreateWithdrawalRequestAtomic(ctx context.Context, req *domain.WithdrawalRequest) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, req.UserID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		return err
	}
	if balance < req.Amount {
		return ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, `UPDATE wallets SET balance = balance - $1, updated_at = NOW() WHERE user_id = $2`, req.Amount, req.UserID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_entries (id, user_id, amount, reason, reference_id)
		VALUES ($1, $2, $3, 'withdrawal_reserve', $4)
	`, uuid.New(), req.UserID, -req.Amount, req.ID)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (
			id, user_id, user_type, amount, currency,
			withdrawal_method, mobile_money_provider, mobile_money_phone, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING created_at, updated_at
	`,
		req.ID, req.UserID, req.UserType, req.Amount, req.Currency,
		req.WithdrawalMethod, req.MobileMoneyProvider, req.MobileMoneyPhone,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return err
	}
	req.Status = domain.WithdrawalStatusPending

	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindWithdrawalRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return w, nil
}

func (r *PostgresRepository) ListWithdrawalRequests(ctx context.Context, opts domain.WithdrawalListOptions) ([]domain.WithdrawalRequest, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE ($1 = '' OR status = $1)
		  AND ($2::uuid IS NULL OR user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, opts.Status, opts.UserID, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *w)
	}
	return requests, rows.Err()
}

// MarkWithdrawalPaidAtomic records the out-of-band payout. The conditional
// update on status = 'pending' is the idempotency guard: a second call for
// the same id affects zero rows and is classified as already processed.
func (r *PostgresRepository) MarkWithdrawalPaidAtomic(ctx context.Context, requestID uuid.UUID, processedBy, adminReference, notes string) (*domain.WithdrawalRequest, error) {
	query := `
		UPDATE withdrawal_requests
		SET status = 'paid', admin_reference = $2, admin_notes = NULLIF($3, ''),
		    processed_by = $4, processed_at = NOW(), paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + withdrawalColumns
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, requestID, adminReference, notes, processedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyWithdrawalConflict(ctx, requestID)
		}
		return nil, err
	}
	return w, nil
}

// RejectWithdrawalAtomic reverses the reservation: the status transition and
// the wallet credit-back commit together or not at all.
func (r *PostgresRepository) RejectWithdrawalAtomic(ctx context.Context, requestID uuid.UUID, processedBy, reason string) (*domain.WithdrawalRequest, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE withdrawal_requests
		SET status = 'rejected', failure_reason = $2,
		    processed_by = $3, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + withdrawalColumns
	w, err := scanWithdrawal(tx.QueryRow(ctx, query, requestID, reason, processedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyWithdrawalConflict(ctx, requestID)
		}
		return nil, err
	}

	if err := creditWalletTx(ctx, tx, w.UserID, w.Amount, "withdrawal_reject_reversal", w.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *PostgresRepository) classifyWithdrawalConflict(ctx context.Context, requestID uuid.UUID) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM withdrawal_requests WHERE id = $1`, requestID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWithdrawalNotFound
		}
		return err
	}
	return ErrWithdrawalNotPending
}
