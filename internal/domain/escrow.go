/**
 * @description
 * This file defines the domain models for the escrow engine. An escrow
 * transaction holds the funds of a marketplace or delivery order until the
 * buyer confirms delivery, an admin intervenes, or the release window elapses.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - Amount fields are immutable after creation; only status and the timestamp
 *   fields change through the engine's transition operations.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Escrow lifecycle statuses. Released and refunded are terminal.
const (
	EscrowStatusHeld     = "held"
	EscrowStatusDisputed = "disputed"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// Admin actions accepted by the escrow engine.
const (
	EscrowActionForceRelease   = "force_release"
	EscrowActionForceRefund    = "force_refund"
	EscrowActionOpenDispute    = "open_dispute"
	EscrowActionResolveDispute = "resolve_dispute"
)

// Dispute resolutions accepted by resolve_dispute.
const (
	EscrowResolutionRelease = "release"
	EscrowResolutionRefund  = "refund"
)

// EscrowTransaction is the central custody record for one order's funds.
// It maps directly to the `escrow_transactions` table.
type EscrowTransaction struct {
	ID               uuid.UUID  `json:"id"`
	OrderID          uuid.UUID  `json:"order_id"`
	BuyerID          uuid.UUID  `json:"buyer_id"`
	SellerID         uuid.UUID  `json:"seller_id"`
	DriverID         *uuid.UUID `json:"driver_id,omitempty"` // absent for non-delivered marketplace sales
	TotalAmount      int64      `json:"total_amount"`
	SellerAmount     int64      `json:"seller_amount"`
	DriverAmount     int64      `json:"driver_amount"`
	PlatformFee      int64      `json:"platform_fee"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	ConfirmationCode string     `json:"confirmation_code"`
	DisputeReason    *string    `json:"dispute_reason,omitempty"`
	DisputeOpenedBy  *uuid.UUID `json:"dispute_opened_by,omitempty"`
	ResolvedBy       *string    `json:"resolved_by,omitempty"` // operator id or "auto_release"/"buyer"
	HeldAt           time.Time  `json:"held_at"`
	TimeoutDate      time.Time  `json:"timeout_date"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the escrow has reached a terminal status.
func (e *EscrowTransaction) IsTerminal() bool {
	return e.Status == EscrowStatusReleased || e.Status == EscrowStatusRefunded
}

// SplitPolicy describes how an escrow total is divided between the seller,
// the driver and the platform. Percentages are whole numbers and must sum to
// 100. When the order has no driver the driver share folds into the seller's.
type SplitPolicy struct {
	SellerPercent   int `json:"seller_percent"`
	DriverPercent   int `json:"driver_percent"`
	PlatformPercent int `json:"platform_percent"`
}

// CreateEscrowPayload is the DTO for escrow creation requests. Explicit
// amounts take precedence over the split policy when all three are provided.
type CreateEscrowPayload struct {
	OrderID      uuid.UUID    `json:"order_id"`
	BuyerID      uuid.UUID    `json:"buyer_id"`
	SellerID     uuid.UUID    `json:"seller_id"`
	DriverID     *uuid.UUID   `json:"driver_id,omitempty"`
	TotalAmount  int64        `json:"total_amount"`
	SellerAmount *int64       `json:"seller_amount,omitempty"`
	DriverAmount *int64       `json:"driver_amount,omitempty"`
	PlatformFee  *int64       `json:"platform_fee,omitempty"`
	Currency     string       `json:"currency"`
	SplitPolicy  *SplitPolicy `json:"split_policy,omitempty"`
}

// AdminEscrowActionPayload is the DTO for administrative escrow actions.
type AdminEscrowActionPayload struct {
	Action     string `json:"action"`
	Notes      string `json:"notes,omitempty"`
	Reason     string `json:"reason,omitempty"`     // required for open_dispute
	Resolution string `json:"resolution,omitempty"` // required for resolve_dispute
}

// EscrowListOptions controls pagination for escrow listings.
type EscrowListOptions struct {
	Status string
	Limit  int
	Offset int
}

// EscrowSweepResult summarizes one run of the timeout auto-release sweep.
type EscrowSweepResult struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Skipped  int `json:"skipped"` // lost the race to a concurrent transition
	Failed   int `json:"failed"`
}
