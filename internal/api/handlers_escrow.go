/**
 * @description
 * HTTP handlers for the escrow engine: creation (internal, invoked by the
 * order workflow after payment capture), buyer delivery confirmation, admin
 * overrides, listings, and the internal sweep trigger.
 */

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
)

// CreateEscrowHandler records a new held escrow. The payment capture
// collaborator has already confirmed the funds before this is called.
func (h *SettlementHandlers) CreateEscrowHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.CreateEscrowPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	escrow, err := h.escrow.CreateEscrow(r.Context(), payload)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, escrow)
}

// GetEscrowHandler returns one escrow record, including its full audit
// timestamps after it has reached a terminal state.
func (h *SettlementHandlers) GetEscrowHandler(w http.ResponseWriter, r *http.Request) {
	escrowID, err := uuid.Parse(chi.URLParam(r, "escrowID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid escrow id")
		return
	}

	escrow, err := h.escrow.GetEscrow(r.Context(), escrowID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, escrow)
}

// ListEscrowsHandler returns escrows filtered by status for admin views.
func (h *SettlementHandlers) ListEscrowsHandler(w http.ResponseWriter, r *http.Request) {
	opts := domain.EscrowListOptions{
		Status: r.URL.Query().Get("status"),
	}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	escrows, err := h.escrow.ListEscrows(r.Context(), opts)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"escrows": escrows})
}

// ConfirmDeliveryHandler releases a held escrow on the buyer's confirmation.
// The body is optional; a confirmation code is verified when present.
func (h *SettlementHandlers) ConfirmDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	actorIDStr, ok := GetActorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	actorID, err := uuid.Parse(actorIDStr)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid actor identity")
		return
	}
	escrowID, err := uuid.Parse(chi.URLParam(r, "escrowID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid escrow id")
		return
	}

	var payload struct {
		ConfirmationCode string `json:"confirmation_code"`
	}
	if decodeErr := json.NewDecoder(r.Body).Decode(&payload); decodeErr != nil && decodeErr != io.EOF {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	released, err := h.escrow.ConfirmDelivery(r.Context(), escrowID, actorID, payload.ConfirmationCode)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, released)
}

// AdminEscrowActionHandler applies force_release, force_refund, open_dispute
// or resolve_dispute with the operator identity recorded on the record.
func (h *SettlementHandlers) AdminEscrowActionHandler(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := GetOperatorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}
	escrowID, err := uuid.Parse(chi.URLParam(r, "escrowID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid escrow id")
		return
	}

	var payload domain.AdminEscrowActionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	escrow, err := h.escrow.AdminAction(r.Context(), escrowID, operatorID, payload)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, escrow)
}

// SweepTimeoutsHandler triggers one auto-release sweep run. The scheduler
// calls this; overlapping calls are safe.
func (h *SettlementHandlers) SweepTimeoutsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := h.escrow.SweepTimeouts(r.Context(), time.Now().UTC(), limit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
