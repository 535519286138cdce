/**
 * @description
 * HTTP handlers for the arrival credit gate: the driver's arrival ping and
 * the subscription read surface.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
)

// ConfirmArrivalHandler processes a driver's GPS-gated arrival confirmation.
// Out-of-range pings return the measured distance so the app can explain it.
func (h *SettlementHandlers) ConfirmArrivalHandler(w http.ResponseWriter, r *http.Request) {
	actorIDStr, ok := GetActorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing actor identity")
		return
	}
	driverID, err := uuid.Parse(actorIDStr)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid actor identity")
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var payload domain.ConfirmArrivalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	confirmation, err := h.arrivals.ConfirmArrival(r.Context(), bookingID, driverID, payload)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, confirmation)
}

// GetDriverSubscriptionHandler returns the driver's ride-credit counters.
func (h *SettlementHandlers) GetDriverSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	driverID, err := uuid.Parse(chi.URLParam(r, "driverID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid driver id")
		return
	}

	sub, err := h.arrivals.GetDriverSubscription(r.Context(), driverID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}
