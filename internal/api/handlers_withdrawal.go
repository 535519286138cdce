/**
 * @description
 * HTTP handlers for the withdrawal settlement engine: user-initiated
 * requests, operator mark-paid/reject, batch payout reconciliation, and the
 * wallet read surfaces.
 */

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
)

// RequestWithdrawalHandler reserves wallet funds and records a pending
// withdrawal request for the authenticated user.
func (h *SettlementHandlers) RequestWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	actorIDStr, ok := GetActorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	userID, err := uuid.Parse(actorIDStr)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid actor identity")
		return
	}

	var payload domain.CreateWithdrawalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.withdrawals.RequestWithdrawal(r.Context(), userID, payload)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, req)
}

// GetWithdrawalHandler returns one withdrawal request.
func (h *SettlementHandlers) GetWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	req, err := h.withdrawals.GetRequest(r.Context(), requestID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// ListWithdrawalsHandler returns withdrawal requests filtered by status and
// optionally by user, for admin reconciliation views.
func (h *SettlementHandlers) ListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	opts := domain.WithdrawalListOptions{
		Status: r.URL.Query().Get("status"),
	}
	if userParam := r.URL.Query().Get("user_id"); userParam != "" {
		userID, err := uuid.Parse(userParam)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		opts.UserID = &userID
	}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	requests, err := h.withdrawals.ListRequests(r.Context(), opts)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// MarkPaidHandler records an operator's out-of-band payout against a pending
// request. Repeating the call yields 409 "already processed".
func (h *SettlementHandlers) MarkPaidHandler(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := GetOperatorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var payload domain.MarkPaidPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	paid, err := h.withdrawals.MarkPaid(r.Context(), requestID, operatorID, payload)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, paid)
}

// RejectWithdrawalHandler rejects a pending request and restores the wallet.
func (h *SettlementHandlers) RejectWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := GetOperatorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var payload domain.RejectWithdrawalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rejected, err := h.withdrawals.Reject(r.Context(), requestID, operatorID, payload.Reason)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rejected)
}

// BatchMarkPaidHandler applies mark-paid to each listed request id in its
// own atomic unit and returns one outcome row per id.
func (h *SettlementHandlers) BatchMarkPaidHandler(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := GetOperatorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing operator identity")
		return
	}

	var payload struct {
		Items []domain.BatchMarkPaidItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "items are required")
		return
	}

	rows := h.withdrawals.BatchMarkPaid(r.Context(), operatorID, payload.Items)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"results": rows})
}

// GetWalletHandler returns the wallet balance and recent audit entries.
func (h *SettlementHandlers) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	balance, err := h.withdrawals.GetWalletBalance(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	entries, err := h.withdrawals.ListWalletEntries(r.Context(), userID, 20, 0)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
		"entries": entries,
	})
}
