/**
 * @description
 * Domain models for the withdrawal settlement engine. A withdrawal request
 * reserves wallet funds at creation; the payout itself happens out of band
 * (a manual mobile-money transfer) and is reconciled here by an operator who
 * supplies the external transaction reference as proof.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal request statuses.
const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusPaid     = "paid"
	WithdrawalStatusRejected = "rejected"
)

// User types that may request withdrawals.
const (
	UserTypeClient  = "client"
	UserTypeDriver  = "driver"
	UserTypeSeller  = "seller"
	UserTypePartner = "partner"
)

// Withdrawal methods.
const (
	WithdrawalMethodMobileMoney = "mobile_money"
)

// Batch mark-paid outcomes, one per request id.
const (
	BatchOutcomePaid             = "paid"
	BatchOutcomeAlreadyProcessed = "already_processed"
	BatchOutcomeNotFound         = "not_found"
	BatchOutcomeFailed           = "failed"
)

// WithdrawalRequest maps to the `withdrawal_requests` table. The user's
// wallet is debited in the same transaction that inserts the row, so pending
// requests always have their funds reserved.
type WithdrawalRequest struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              uuid.UUID  `json:"user_id"`
	UserType            string     `json:"user_type"`
	Amount              int64      `json:"amount"`
	Currency            string     `json:"currency"`
	WithdrawalMethod    string     `json:"withdrawal_method"`
	MobileMoneyProvider string     `json:"mobile_money_provider"`
	MobileMoneyPhone    string     `json:"mobile_money_phone"`
	Status              string     `json:"status"`
	AdminReference      *string    `json:"admin_reference,omitempty"` // external transaction id, mandatory to enter paid
	AdminNotes          *string    `json:"admin_notes,omitempty"`
	FailureReason       *string    `json:"failure_reason,omitempty"`
	ProcessedBy         *string    `json:"processed_by,omitempty"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CreateWithdrawalPayload is the DTO for incoming withdrawal requests.
type CreateWithdrawalPayload struct {
	UserType            string `json:"user_type"`
	Amount              int64  `json:"amount"`
	Currency            string `json:"currency"`
	WithdrawalMethod    string `json:"withdrawal_method"`
	MobileMoneyProvider string `json:"mobile_money_provider"`
	MobileMoneyPhone    string `json:"mobile_money_phone"`
}

// MarkPaidPayload is the DTO for an operator marking a request paid.
type MarkPaidPayload struct {
	AdminReference string `json:"admin_reference"`
	Notes          string `json:"notes,omitempty"`
}

// RejectWithdrawalPayload is the DTO for an operator rejecting a request.
type RejectWithdrawalPayload struct {
	Reason string `json:"reason"`
}

// BatchMarkPaidItem is one entry of a batch payout reconciliation. Each
// request carries its own external reference; a reference is never shared
// across requests.
type BatchMarkPaidItem struct {
	RequestID      uuid.UUID `json:"request_id"`
	AdminReference string    `json:"admin_reference"`
	Notes          string    `json:"notes,omitempty"`
}

// BatchMarkPaidRow is the per-id result of a batch mark-paid run.
type BatchMarkPaidRow struct {
	RequestID uuid.UUID `json:"request_id"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// WithdrawalListOptions controls filtering and pagination for listings.
type WithdrawalListOptions struct {
	Status string
	UserID *uuid.UUID
	Limit  int
	Offset int
}

// WalletEntry is one audit row for a wallet movement. Every credit or debit
// performed by an engine inserts an entry in the same transaction.
type WalletEntry struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Amount      int64     `json:"amount"` // signed: positive credit, negative debit
	Reason      string    `json:"reason"`
	ReferenceID uuid.UUID `json:"reference_id"` // escrow or withdrawal id
	CreatedAt   time.Time `json:"created_at"`
}
