/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. This file holds
 * the shared plumbing (pool, sentinel errors, wallet helpers) and the escrow
 * engine's queries. Withdrawal and arrival queries live in their own files.
 *
 * The exactly-once discipline is enforced here: every transition is a single
 * conditional `UPDATE ... WHERE status = $expected` inside one transaction,
 * with wallet movements and audit entries written before the same commit.
 * A zero-row update means the caller lost the race; the loser is classified
 * into a typed error by re-reading the current status.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/google/uuid: Record identifiers.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sokoni/settlement-service/internal/domain"
)

var (
	ErrEscrowNotFound       = errors.New("escrow not found")
	ErrEscrowNotHeld        = errors.New("escrow is not held")
	ErrEscrowNotDisputed    = errors.New("escrow is not disputed")
	ErrEscrowClosed         = errors.New("escrow already released or refunded")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrWithdrawalNotFound   = errors.New("withdrawal request not found")
	ErrWithdrawalNotPending = errors.New("withdrawal request already processed")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrArrivalConfirmed     = errors.New("arrival already confirmed")
	ErrNoRideCredits        = errors.New("no ride credits remaining")
	ErrSubscriptionNotFound = errors.New("driver subscription not found")
	ErrSubscriptionInactive = errors.New("driver subscription inactive")
)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const escrowColumns = `
	id, order_id, buyer_id, seller_id, driver_id,
	total_amount, seller_amount, driver_amount, platform_fee, currency,
	status, confirmation_code, dispute_reason, dispute_opened_by, resolved_by,
	held_at, timeout_date, released_at, completed_at, created_at, updated_at
`

func scanEscrow(row pgx.Row) (*domain.EscrowTransaction, error) {
	var e domain.EscrowTransaction
	err := row.Scan(
		&e.ID, &e.OrderID, &e.BuyerID, &e.SellerID, &e.DriverID,
		&e.TotalAmount, &e.SellerAmount, &e.DriverAmount, &e.PlatformFee, &e.Currency,
		&e.Status, &e.ConfirmationCode, &e.DisputeReason, &e.DisputeOpenedBy, &e.ResolvedBy,
		&e.HeldAt, &e.TimeoutDate, &e.ReleasedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEscrow inserts a new held escrow record. Amount fields never change
// after this insert.
func (r *PostgresRepository) CreateEscrow(ctx context.Context, escrow *domain.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions (
			id, order_id, buyer_id, seller_id, driver_id,
			total_amount, seller_amount, driver_amount, platform_fee, currency,
			status, confirmation_code, held_at, timeout_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		escrow.ID, escrow.OrderID, escrow.BuyerID, escrow.SellerID, escrow.DriverID,
		escrow.TotalAmount, escrow.SellerAmount, escrow.DriverAmount, escrow.PlatformFee, escrow.Currency,
		escrow.Status, escrow.ConfirmationCode, escrow.HeldAt, escrow.TimeoutDate,
	).Scan(&escrow.CreatedAt, &escrow.UpdatedAt)
}

func (r *PostgresRepository) FindEscrowByID(ctx context.Context, escrowID uuid.UUID) (*domain.EscrowTransaction, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_transactions WHERE id = $1`
	e, err := scanEscrow(r.db.QueryRow(ctx, query, escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *PostgresRepository) ListEscrows(ctx context.Context, opts domain.EscrowListOptions) ([]domain.EscrowTransaction, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + escrowColumns + `
		FROM escrow_transactions
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, opts.Status, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escrows []domain.EscrowTransaction
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}

// FindReleasableEscrows selects held escrows whose timeout date has elapsed.
// The result is advisory only; the sweep re-checks every candidate through
// ReleaseEscrowAtomic, so a stale row here cannot cause a double credit.
func (r *PostgresRepository) FindReleasableEscrows(ctx context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + escrowColumns + `
		FROM escrow_transactions
		WHERE status = 'held' AND timeout_date <= $1
		ORDER BY timeout_date ASC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escrows []domain.EscrowTransaction
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}

// ReleaseEscrowAtomic performs the release transition and the three wallet
// credits as one transaction. The conditional update is the guard: of any
// number of concurrent callers (buyer confirmation, admin force-release,
// timeout sweep), exactly one sees a row transition and commits the credits.
func (r *PostgresRepository) ReleaseEscrowAtomic(ctx context.Context, escrowID uuid.UUID, expectFrom string, resolvedBy string, platformAccountID uuid.UUID) (*domain.EscrowTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE escrow_transactions
		SET status = 'released', resolved_by = $3,
		    released_at = NOW(), completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + escrowColumns
	e, err := scanEscrow(tx.QueryRow(ctx, query, escrowID, expectFrom, resolvedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyEscrowConflict(ctx, escrowID, expectFrom)
		}
		return nil, err
	}

	if err := creditWalletTx(ctx, tx, e.SellerID, e.SellerAmount, "escrow_release_seller", e.ID); err != nil {
		return nil, err
	}
	if e.DriverID != nil && e.DriverAmount > 0 {
		if err := creditWalletTx(ctx, tx, *e.DriverID, e.DriverAmount, "escrow_release_driver", e.ID); err != nil {
			return nil, err
		}
	}
	if e.PlatformFee > 0 {
		if err := creditWalletTx(ctx, tx, platformAccountID, e.PlatformFee, "escrow_release_platform_fee", e.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// RefundEscrowAtomic performs the refund transition and the buyer credit as
// one transaction, under the same conditional guard as release.
func (r *PostgresRepository) RefundEscrowAtomic(ctx context.Context, escrowID uuid.UUID, expectFrom string, resolvedBy string) (*domain.EscrowTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE escrow_transactions
		SET status = 'refunded', resolved_by = $3,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + escrowColumns
	e, err := scanEscrow(tx.QueryRow(ctx, query, escrowID, expectFrom, resolvedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyEscrowConflict(ctx, escrowID, expectFrom)
		}
		return nil, err
	}

	if err := creditWalletTx(ctx, tx, e.BuyerID, e.TotalAmount, "escrow_refund_buyer", e.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// OpenEscrowDisputeAtomic moves a held escrow to disputed. Only valid from
// held; refunds and releases remain possible afterwards via resolve_dispute.
func (r *PostgresRepository) OpenEscrowDisputeAtomic(ctx context.Context, escrowID uuid.UUID, openedBy uuid.UUID, reason string) (*domain.EscrowTransaction, error) {
	query := `
		UPDATE escrow_transactions
		SET status = 'disputed', dispute_reason = $3, dispute_opened_by = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + escrowColumns
	e, err := scanEscrow(r.db.QueryRow(ctx, query, escrowID, domain.EscrowStatusHeld, reason, openedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyEscrowConflict(ctx, escrowID, domain.EscrowStatusHeld)
		}
		return nil, err
	}
	return e, nil
}

// classifyEscrowConflict turns a zero-row conditional update into a typed
// error by re-reading the record's current status.
func (r *PostgresRepository) classifyEscrowConflict(ctx context.Context, escrowID uuid.UUID, expectFrom string) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM escrow_transactions WHERE id = $1`, escrowID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEscrowNotFound
		}
		return err
	}
	return escrowConflictError(status, expectFrom)
}

// escrowConflictError maps an observed status to the error a losing caller
// should see. Terminal statuses always present as ErrEscrowClosed so the
// caller can report "already processed" rather than a generic failure.
func escrowConflictError(status, expectFrom string) error {
	switch status {
	case domain.EscrowStatusReleased, domain.EscrowStatusRefunded:
		return ErrEscrowClosed
	}
	if expectFrom == domain.EscrowStatusDisputed {
		return ErrEscrowNotDisputed
	}
	return ErrEscrowNotHeld
}

// creditWalletTx credits a wallet and writes the audit entry inside the
// caller's transaction. The wallet row is created on first credit.
func creditWalletTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, reason string, referenceID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + $2, updated_at = NOW()
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_entries (id, user_id, amount, reason, reference_id)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), userID, amount, reason, referenceID)
	if err != nil {
		return fmt.Errorf("failed to record wallet entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetWalletBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (r *PostgresRepository) ListWalletEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, reason, reference_id, created_at
		FROM wallet_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WalletEntry
	for rows.Next() {
		var entry domain.WalletEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.Reason, &entry.ReferenceID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
