/**
 * @description
 * Shared plumbing for the settlement service's HTTP handlers: the handler
 * set, JSON helpers, and the mapping from engine errors to HTTP responses.
 * A lost race always presents as "already processed" with 409, never as a
 * generic error, since no financial harm occurred.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - internal/app, internal/store: Engine logic and typed errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sokoni/settlement-service/internal/app"
	"github.com/sokoni/settlement-service/internal/store"
)

// SettlementHandlers holds the engine services the handlers dispatch to.
type SettlementHandlers struct {
	escrow      *app.EscrowService
	withdrawals *app.WithdrawalService
	arrivals    *app.ArrivalService
}

// NewSettlementHandlers creates a new handler set.
func NewSettlementHandlers(escrow *app.EscrowService, withdrawals *app.WithdrawalService, arrivals *app.ArrivalService) *SettlementHandlers {
	return &SettlementHandlers{
		escrow:      escrow,
		withdrawals: withdrawals,
		arrivals:    arrivals,
	}
}

type errorResponse struct {
	Error          string   `json:"error"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError maps typed engine and store errors onto HTTP responses.
func (h *SettlementHandlers) writeEngineError(w http.ResponseWriter, err error) {
	var outOfRange *app.OutOfRangeError
	switch {
	case errors.Is(err, store.ErrEscrowNotFound),
		errors.Is(err, store.ErrWithdrawalNotFound),
		errors.Is(err, store.ErrBookingNotFound),
		errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, store.ErrWalletNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, store.ErrEscrowClosed),
		errors.Is(err, store.ErrWithdrawalNotPending):
		h.writeError(w, http.StatusConflict, "already processed")

	case errors.Is(err, store.ErrEscrowNotHeld),
		errors.Is(err, store.ErrEscrowNotDisputed),
		errors.Is(err, store.ErrArrivalConfirmed):
		h.writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, app.ErrNotAuthorized):
		h.writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrNoRideCredits),
		errors.Is(err, store.ErrSubscriptionInactive):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.As(err, &outOfRange):
		distance := outOfRange.DistanceMeters
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:          outOfRange.Error(),
			DistanceMeters: &distance,
		})

	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())

	case errors.Is(err, app.ErrInvalidSplit),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrBadConfirmationCode),
		errors.Is(err, app.ErrDisputeReasonRequired),
		errors.Is(err, app.ErrInvalidAdminAction),
		errors.Is(err, app.ErrInvalidResolution),
		errors.Is(err, app.ErrAdminReferenceRequired),
		errors.Is(err, app.ErrRejectReasonRequired):
		h.writeError(w, http.StatusBadRequest, err.Error())

	default:
		log.Printf("level=error component=api msg=\"unhandled engine error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
