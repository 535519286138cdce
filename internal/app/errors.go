/**
 * @description
 * Business-rule errors raised by the settlement engines. Race-lost and
 * stale-state conditions reuse the store's sentinel errors; this file holds
 * the errors that originate in engine validation itself.
 */

package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSplit is returned when seller + driver + platform amounts do
	// not sum exactly to the escrow total. Creation is rejected outright.
	ErrInvalidSplit = errors.New("escrow amounts do not sum to total")

	// ErrNotAuthorized is returned when the acting identity does not match
	// the party the operation requires. Not retryable.
	ErrNotAuthorized = errors.New("actor is not authorized for this operation")

	// ErrBadConfirmationCode is returned when a supplied confirmation code
	// does not match the escrow's code.
	ErrBadConfirmationCode = errors.New("confirmation code does not match")

	ErrDisputeReasonRequired  = errors.New("dispute reason is required")
	ErrInvalidAdminAction     = errors.New("unknown admin action")
	ErrInvalidResolution      = errors.New("resolution must be 'release' or 'refund'")
	ErrAdminReferenceRequired = errors.New("admin reference is required to mark a request paid")
	ErrRejectReasonRequired   = errors.New("rejection reason is required")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrRateLimited            = errors.New("rate limit exceeded")
)

// OutOfRangeError is returned when a driver confirms arrival from outside
// the geofence. It carries the measured distance so the client can explain
// the rejection.
type OutOfRangeError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("driver is %.0fm from the reference point (limit %.0fm)", e.DistanceMeters, e.RadiusMeters)
}
