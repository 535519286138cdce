/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the settlement service performs. The interface decouples the engine
 * logic from PostgreSQL and lets tests substitute stub implementations.
 *
 * Every state-mutating method here is a single transactional unit: the lock
 * scope equals one transaction, and competing callers for the same record are
 * totally ordered by the conditional update inside it. The first committer
 * wins; later competitors get a typed conflict error and no side effect.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For record identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Escrow methods
	CreateEscrow(ctx context.Context, escrow *domain.EscrowTransaction) error
	FindEscrowByID(ctx context.Context, escrowID uuid.UUID) (*domain.EscrowTransaction, error)
	ListEscrows(ctx context.Context, opts domain.EscrowListOptions) ([]domain.EscrowTransaction, error)
	// FindReleasableEscrows returns held escrows whose timeout date has
	// elapsed. Read-only; each candidate still goes through the atomic guard.
	FindReleasableEscrows(ctx context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error)
	// ReleaseEscrowAtomic transitions an escrow to released and credits the
	// seller, driver (if any) and platform wallets in one transaction. The
	// transition is guarded on the current status equalling expectFrom, so
	// exactly one of any number of concurrent callers succeeds.
	ReleaseEscrowAtomic(ctx context.Context, escrowID uuid.UUID, expectFrom string, resolvedBy string, platformAccountID uuid.UUID) (*domain.EscrowTransaction, error)
	// RefundEscrowAtomic transitions an escrow to refunded and credits the
	// buyer the full total, under the same conditional guard.
	RefundEscrowAtomic(ctx context.Context, escrowID uuid.UUID, expectFrom string, resolvedBy string) (*domain.EscrowTransaction, error)
	// OpenEscrowDisputeAtomic moves a held escrow to disputed. No wallet effect.
	OpenEscrowDisputeAtomic(ctx context.Context, escrowID uuid.UUID, openedBy uuid.UUID, reason string) (*domain.EscrowTransaction, error)

	// Withdrawal methods
	// CreateWithdrawalRequestAtomic checks the wallet balance, debits it and
	// inserts the pending request in one transaction.
	CreateWithdrawalRequestAtomic(ctx context.Context, req *domain.WithdrawalRequest) error
	FindWithdrawalRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error)
	ListWithdrawalRequests(ctx context.Context, opts domain.WithdrawalListOptions) ([]domain.WithdrawalRequest, error)
	// MarkWithdrawalPaidAtomic transitions pending -> paid, recording the
	// operator and external reference. Returns ErrWithdrawalNotPending when
	// the request was already processed.
	MarkWithdrawalPaidAtomic(ctx context.Context, requestID uuid.UUID, processedBy, adminReference, notes string) (*domain.WithdrawalRequest, error)
	// RejectWithdrawalAtomic transitions pending -> rejected and credits the
	// reserved amount back to the wallet in the same transaction.
	RejectWithdrawalAtomic(ctx context.Context, requestID uuid.UUID, processedBy, reason string) (*domain.WithdrawalRequest, error)

	// Wallet methods
	GetWalletBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	ListWalletEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error)

	// Arrival credit gate methods
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	GetDriverSubscription(ctx context.Context, driverID uuid.UUID) (*domain.DriverSubscription, error)
	// ConfirmArrivalAtomic marks the booking arrived and decrements the
	// driver's ride credits in one transaction, keyed on the booking still
	// being en route and the subscription having credits remaining. Returns
	// the credits remaining after the decrement.
	ConfirmArrivalAtomic(ctx context.Context, bookingID, driverID uuid.UUID) (int, error)
}
