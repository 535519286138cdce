/**
 * @description
 * HTTP router for the settlement service. Actor routes (buyer confirmation,
 * withdrawal requests, driver arrival) require a bearer JWT; admin and
 * internal routes require the shared internal API key plus an operator id
 * header.
 *
 * @dependencies
 * - net/http: Standard Go library.
 * - github.com/go-chi/chi/v5: HTTP router and middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SettlementRoutes creates and returns the router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Actor routes: the JWT subject is the acting party.
	r.Group(func(r chi.Router) {
		r.Use(ActorAuthMiddleware(jwksURL))

		r.Post("/escrows/{escrowID}/confirm", h.ConfirmDeliveryHandler)
		r.Post("/withdrawals", h.RequestWithdrawalHandler)
		r.Post("/bookings/{bookingID}/arrival", h.ConfirmArrivalHandler)
	})

	// Admin and internal routes: internal API key plus X-Operator-Id.
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalAPIKey))

		r.Post("/escrows", h.CreateEscrowHandler)
		r.Get("/escrows", h.ListEscrowsHandler)
		r.Get("/escrows/{escrowID}", h.GetEscrowHandler)
		r.Post("/escrows/{escrowID}/admin", h.AdminEscrowActionHandler)
		r.Post("/internal/escrows/sweep", h.SweepTimeoutsHandler)

		r.Get("/withdrawals", h.ListWithdrawalsHandler)
		r.Get("/withdrawals/{requestID}", h.GetWithdrawalHandler)
		r.Post("/withdrawals/{requestID}/pay", h.MarkPaidHandler)
		r.Post("/withdrawals/{requestID}/reject", h.RejectWithdrawalHandler)
		r.Post("/withdrawals/batch-pay", h.BatchMarkPaidHandler)

		r.Get("/wallets/{userID}", h.GetWalletHandler)
		r.Get("/drivers/{driverID}/subscription", h.GetDriverSubscriptionHandler)
	})

	return r
}
