package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sokoni/settlement-service/internal/app"
	"github.com/sokoni/settlement-service/internal/store"
)

func TestWriteEngineError_StatusMapping(t *testing.T) {
	h := NewSettlementHandlers(nil, nil, nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing escrow is 404",
			err:        store.ErrEscrowNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "closed escrow is already processed",
			err:        store.ErrEscrowClosed,
			wantStatus: http.StatusConflict,
			wantBody:   "already processed",
		},
		{
			name:       "non-pending withdrawal is already processed",
			err:        store.ErrWithdrawalNotPending,
			wantStatus: http.StatusConflict,
			wantBody:   "already processed",
		},
		{
			name:       "not-held escrow is a conflict",
			err:        store.ErrEscrowNotHeld,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "repeated arrival is a conflict",
			err:        store.ErrArrivalConfirmed,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "wrong actor is forbidden",
			err:        app.ErrNotAuthorized,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "insufficient funds is unprocessable",
			err:        store.ErrInsufficientFunds,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "exhausted ride credits is unprocessable",
			err:        store.ErrNoRideCredits,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "rate limit is 429",
			err:        app.ErrRateLimited,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "missing admin reference is a bad request",
			err:        app.ErrAdminReferenceRequired,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid split is a bad request",
			err:        app.ErrInvalidSplit,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown errors stay internal",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeEngineError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if tt.wantBody != "" && body.Error != tt.wantBody {
				t.Fatalf("expected body %q, got %q", tt.wantBody, body.Error)
			}
		})
	}
}

func TestWriteEngineError_OutOfRangeCarriesDistance(t *testing.T) {
	h := NewSettlementHandlers(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.writeEngineError(rec, &app.OutOfRangeError{DistanceMeters: 152.4, RadiusMeters: 100})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.DistanceMeters == nil {
		t.Fatal("expected distance_meters in the response")
	}
	if *body.DistanceMeters != 152.4 {
		t.Fatalf("expected distance 152.4, got %v", *body.DistanceMeters)
	}
}
